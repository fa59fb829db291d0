// Package bugs implements the record operations shared by the HTTP API, the
// CLI and the MCP server.
package bugs

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/logger"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
	"github.com/joescharf/bugboard/internal/store"
	"github.com/joescharf/bugboard/internal/validate"
)

var tracer = otel.Tracer("github.com/joescharf/bugboard/internal/bugs")

// DeletedMessage is returned by a successful delete.
const DeletedMessage = "Bug deleted successfully"

// ListResult is one page of bugs plus paging totals.
type ListResult struct {
	Bugs        []*models.Bug `json:"bugs"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Total       int64         `json:"total"`
}

// DeleteResult confirms a delete.
type DeleteResult struct {
	ID      string `json:"-"`
	Message string `json:"message"`
}

// Service orchestrates validation, sanitization and persistence.
type Service struct {
	store  store.Store
	log    *logger.Logger
	paging query.Defaults
}

// Option configures a Service.
type Option func(*Service)

// WithPaging overrides the default pagination policy.
func WithPaging(d query.Defaults) Option {
	return func(s *Service) { s.paging = d }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService returns a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, log: logger.Nop(), paging: query.DefaultPaging}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "bugs")
	return s
}

// List returns the page of bugs matching filters, newest first.
// Invalid filters and paging values never fail.
func (s *Service) List(ctx context.Context, filters map[string]string, page, limit string) (_ *ListResult, err error) {
	ctx, span := tracer.Start(ctx, "bugs.List")
	defer func() { endSpan(span, err) }()

	pred := query.BuildPredicate(filters)
	p := query.ParsePage(page, limit, s.paging)

	bugs, err := s.store.FindMany(ctx, pred, query.NewestFirst, p.Offset(), p.Limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, pred)
	if err != nil {
		return nil, err
	}
	if bugs == nil {
		bugs = []*models.Bug{}
	}

	s.log.Debug("list bugs", "filters", pred.Terms, "page", p.Number, "limit", p.Limit, "returned", len(bugs), "total", total)
	return &ListResult{
		Bugs:        bugs,
		TotalPages:  query.TotalPages(total, p.Limit),
		CurrentPage: p.Number,
		Total:       total,
	}, nil
}

// Get returns one bug.
func (s *Service) Get(ctx context.Context, id string) (_ *models.Bug, err error) {
	ctx, span := tracer.Start(ctx, "bugs.Get", trace.WithAttributes(attribute.String("bug.id", id)))
	defer func() { endSpan(span, err) }()

	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		s.log.Debug("get bug failed", "id", id, "error", err)
		return nil, err
	}
	return b, nil
}

// Create validates, sanitizes and stores a new bug.
func (s *Service) Create(ctx context.Context, in models.BugInput) (_ *models.Bug, err error) {
	ctx, span := tracer.Start(ctx, "bugs.Create")
	defer func() { endSpan(span, err) }()

	if err := validate.Error(validate.Validate(in, validate.ModeCreate)); err != nil {
		s.log.Debug("create bug rejected", "error", err)
		return nil, err
	}
	b := models.NewBug(validate.Sanitize(in))
	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	s.log.Debug("created bug", "id", b.ID, "priority", b.Priority)
	return b, nil
}

// Update merges the present fields of in onto an existing bug.
func (s *Service) Update(ctx context.Context, id string, in models.BugInput) (_ *models.Bug, err error) {
	ctx, span := tracer.Start(ctx, "bugs.Update", trace.WithAttributes(attribute.String("bug.id", id)))
	defer func() { endSpan(span, err) }()

	if err := validate.Error(validate.Validate(in, validate.ModeUpdate)); err != nil {
		s.log.Debug("update bug rejected", "id", id, "error", err)
		return nil, err
	}
	b, err := s.store.UpdateByID(ctx, id, validate.Sanitize(in))
	if err != nil {
		return nil, err
	}
	s.log.Debug("updated bug", "id", b.ID, "status", b.Status)
	return b, nil
}

// Delete permanently removes a bug.
func (s *Service) Delete(ctx context.Context, id string) (_ *DeleteResult, err error) {
	ctx, span := tracer.Start(ctx, "bugs.Delete", trace.WithAttributes(attribute.String("bug.id", id)))
	defer func() { endSpan(span, err) }()

	if err := s.store.DeleteByID(ctx, id); err != nil {
		return nil, err
	}
	s.log.Debug("deleted bug", "id", id)
	return &DeleteResult{ID: strings.TrimSpace(id), Message: DeletedMessage}, nil
}

// Search returns every bug matching q, most relevant first.
func (s *Service) Search(ctx context.Context, q string) (_ []*models.Bug, err error) {
	ctx, span := tracer.Start(ctx, "bugs.Search")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(q) == "" {
		return nil, apierr.ErrEmptyQuery
	}
	terms := search.Terms(q)
	if len(terms) == 0 {
		return []*models.Bug{}, nil
	}
	matches, err := s.store.TextSearch(ctx, terms)
	if err != nil {
		return nil, err
	}
	bugs := search.Rank(matches)
	s.log.Debug("search bugs", "terms", terms, "matches", len(bugs))
	return bugs, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
