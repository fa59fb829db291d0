package store

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
)

// Store defines the persistence interface for bug records.
//
// FindByID, UpdateByID and DeleteByID return an error wrapping
// apierr.ErrMalformedID for ids that are not ULIDs and an *apierr.NotFoundError
// for well-formed ids with no record. Writes that fail the record schema
// return an *apierr.ValidationError.
type Store interface {
	FindMany(ctx context.Context, pred query.Predicate, sort query.Sort, skip, limit int) ([]*models.Bug, error)
	Count(ctx context.Context, pred query.Predicate) (int64, error)
	FindByID(ctx context.Context, id string) (*models.Bug, error)
	// Insert assigns ID, CreatedAt and UpdatedAt on b.
	Insert(ctx context.Context, b *models.Bug) error
	// UpdateByID merges the present fields of patch and returns the updated record.
	UpdateByID(ctx context.Context, id string, patch models.BugInput) (*models.Bug, error)
	DeleteByID(ctx context.Context, id string) error
	// TextSearch returns every record matching any of terms with its score.
	TextSearch(ctx context.Context, terms []string) ([]search.Match, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// checkID normalizes id to canonical ULID form or reports it as malformed.
func checkID(id string) (string, error) {
	parsed, err := ulid.ParseStrict(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("%w: %q", apierr.ErrMalformedID, id)
	}
	return parsed.String(), nil
}

// checkSchema rejects records that would violate the stored schema.
func checkSchema(b *models.Bug) error {
	if msgs := b.SchemaViolations(); len(msgs) > 0 {
		return apierr.Validation(msgs...)
	}
	return nil
}

func notFound(id string) error {
	return apierr.NotFound("Bug", id)
}
