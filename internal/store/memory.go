package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
)

// MemoryStore implements Store in process. Records are lost on Close.
type MemoryStore struct {
	mu   sync.RWMutex
	bugs map[string]*models.Bug
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bugs: make(map[string]*models.Bug)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bugs = make(map[string]*models.Bug)
	return nil
}

func (s *MemoryStore) FindMany(ctx context.Context, pred query.Predicate, order query.Sort, skip, limit int) ([]*models.Bug, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := s.filter(pred)
	s.mu.RUnlock()

	sortBugs(matched, order)

	skip = max(skip, 0)
	if skip >= len(matched) {
		return []*models.Bug{}, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Count(ctx context.Context, pred query.Predicate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, b := range s.bugs {
		if pred.Matches(b) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bugs[key]
	if !ok {
		return nil, notFound(key)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, b *models.Bug) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = newULID()
	} else {
		key, err := checkID(b.ID)
		if err != nil {
			return err
		}
		b.ID = key
	}
	if b.StepsToReproduce == nil {
		b.StepsToReproduce = []string{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if err := checkSchema(b); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bugs[b.ID]; exists {
		return apierr.ErrDuplicate
	}
	s.bugs[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) UpdateByID(ctx context.Context, id string, patch models.BugInput) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bugs[key]
	if !ok {
		return nil, notFound(key)
	}
	b := current.Clone()
	patch.ApplyTo(b)
	if err := checkSchema(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now().UTC()
	if b.UpdatedAt.Before(b.CreatedAt) {
		b.UpdatedAt = b.CreatedAt
	}
	s.bugs[key] = b
	return b.Clone(), nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	key, err := checkID(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bugs[key]; !ok {
		return notFound(key)
	}
	delete(s.bugs, key)
	return nil
}

// TextSearch scores by term frequency over title and description.
func (s *MemoryStore) TextSearch(ctx context.Context, terms []string) ([]search.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := []search.Match{}
	if len(terms) == 0 {
		return matches, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bugs {
		if score := search.Score(b, terms); score > 0 {
			matches = append(matches, search.Match{Bug: b.Clone(), Score: score})
		}
	}
	return matches, nil
}

// filter must be called with at least a read lock held.
func (s *MemoryStore) filter(pred query.Predicate) []*models.Bug {
	out := []*models.Bug{}
	for _, b := range s.bugs {
		if pred.Matches(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}

func sortBugs(bugs []*models.Bug, order query.Sort) {
	if _, ok := sortColumns[order.Field]; !ok {
		order = query.NewestFirst
	}
	sort.Slice(bugs, func(i, j int) bool {
		a, b := bugs[i], bugs[j]
		var c int
		switch order.Field {
		case "updatedAt":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case "title":
			c = strings.Compare(a.Title, b.Title)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order.Desc {
			return c > 0
		}
		return c < 0
	})
}
