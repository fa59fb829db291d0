package store

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
)

func sampleBug(title, description string) *models.Bug {
	return &models.Bug{
		Title:            title,
		Description:      description,
		Status:           models.BugStatusOpen,
		Priority:         models.BugPriorityMedium,
		StepsToReproduce: []string{"Open the app", "Click the button"},
		Environment:      models.Environment{OS: "macOS", Browser: "Chrome"},
		Reporter:         "John Doe",
		Tags:             []string{"ui"},
	}
}

// runContract exercises behavior every Store adapter must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := sampleBug("Login bug", "Cannot log in")
		b.ExpectedBehavior = "Dashboard shows"
		b.Assignee = "Jane Smith"
		require.NoError(t, s.Insert(ctx, b))
		assert.NotEmpty(t, b.ID)
		assert.False(t, b.CreatedAt.IsZero())
		assert.True(t, b.CreatedAt.Equal(b.UpdatedAt))

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, "Login bug", got.Title)
		assert.Equal(t, "Dashboard shows", got.ExpectedBehavior)
		assert.Equal(t, "Jane Smith", got.Assignee)
		assert.Equal(t, []string{"Open the app", "Click the button"}, got.StepsToReproduce)
		assert.Equal(t, []string{"ui"}, got.Tags)
		assert.Equal(t, models.Environment{OS: "macOS", Browser: "Chrome"}, got.Environment)
		assert.True(t, b.CreatedAt.Equal(got.CreatedAt))

		// Lowercase ids are accepted.
		_, err = s.FindByID(ctx, toLower(b.ID))
		assert.NoError(t, err)
	})

	t.Run("InsertNilSlices", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b := sampleBug("No lists", "nothing")
		b.StepsToReproduce, b.Tags = nil, nil
		require.NoError(t, s.Insert(ctx, b))

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.StepsToReproduce)
		assert.NotNil(t, got.Tags)
	})

	t.Run("SchemaCheck", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := sampleBug("", "desc")
		b.Status = "bogus"
		err := s.Insert(ctx, b)
		var ve *apierr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"Title is required", "Invalid status value"}, ve.Violations())

		n, err := s.Count(ctx, query.Predicate{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("MalformedAndMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		missing := ulid.Make().String()

		_, err := s.FindByID(ctx, "not-an-id")
		assert.ErrorIs(t, err, apierr.ErrMalformedID)
		_, err = s.UpdateByID(ctx, "123", models.BugInput{})
		assert.ErrorIs(t, err, apierr.ErrMalformedID)
		assert.ErrorIs(t, s.DeleteByID(ctx, ""), apierr.ErrMalformedID)

		_, err = s.FindByID(ctx, missing)
		assert.ErrorIs(t, err, apierr.ErrNotFound)
		_, err = s.UpdateByID(ctx, missing, models.BugInput{})
		assert.ErrorIs(t, err, apierr.ErrNotFound)
		assert.ErrorIs(t, s.DeleteByID(ctx, missing), apierr.ErrNotFound)
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b := sampleBug("Login bug", "Cannot log in")
		require.NoError(t, s.Insert(ctx, b))

		status := models.BugStatusResolved
		got, err := s.UpdateByID(ctx, b.ID, models.BugInput{Status: &status, Tags: []string{"auth", "p1"}})
		require.NoError(t, err)
		assert.Equal(t, models.BugStatusResolved, got.Status)
		assert.Equal(t, []string{"auth", "p1"}, got.Tags)
		assert.Equal(t, "Login bug", got.Title)
		assert.Equal(t, models.BugPriorityMedium, got.Priority)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
		assert.True(t, b.CreatedAt.Equal(got.CreatedAt))

		fetched, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BugStatusResolved, fetched.Status)
		assert.True(t, got.UpdatedAt.Equal(fetched.UpdatedAt))
	})

	t.Run("UpdateSchemaCheck", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b := sampleBug("Login bug", "Cannot log in")
		require.NoError(t, s.Insert(ctx, b))

		blank := "  "
		_, err := s.UpdateByID(ctx, b.ID, models.BugInput{Reporter: &blank})
		var ve *apierr.ValidationError
		require.ErrorAs(t, err, &ve)

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "John Doe", got.Reporter)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b := sampleBug("Login bug", "Cannot log in")
		require.NoError(t, s.Insert(ctx, b))

		require.NoError(t, s.DeleteByID(ctx, b.ID))
		_, err := s.FindByID(ctx, b.ID)
		assert.ErrorIs(t, err, apierr.ErrNotFound)
		assert.ErrorIs(t, s.DeleteByID(ctx, b.ID), apierr.ErrNotFound)
	})

	t.Run("FindManyFilterSortPage", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		var ids []string
		for i := 0; i < 5; i++ {
			b := sampleBug("Bug", "desc")
			b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if i%2 == 0 {
				b.Status = models.BugStatusClosed
			}
			if i == 4 {
				b.Priority = models.BugPriorityCritical
			}
			require.NoError(t, s.Insert(ctx, b))
			ids = append(ids, b.ID)
		}

		all, err := s.FindMany(ctx, query.Predicate{}, query.NewestFirst, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, b := range all {
			assert.Equal(t, ids[4-i], b.ID, "newest first")
		}

		page2, err := s.FindMany(ctx, query.Predicate{}, query.NewestFirst, 2, 2)
		require.NoError(t, err)
		require.Len(t, page2, 2)
		assert.Equal(t, ids[2], page2[0].ID)
		assert.Equal(t, ids[1], page2[1].ID)

		beyond, err := s.FindMany(ctx, query.Predicate{}, query.NewestFirst, 10, 5)
		require.NoError(t, err)
		assert.NotNil(t, beyond)
		assert.Empty(t, beyond)

		closed := query.BuildPredicate(map[string]string{"status": "closed"})
		got, err := s.FindMany(ctx, closed, query.NewestFirst, 0, 10)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		n, err := s.Count(ctx, closed)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		both := query.BuildPredicate(map[string]string{"status": "closed", "priority": "critical"})
		got, err = s.FindMany(ctx, both, query.NewestFirst, 0, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ids[4], got[0].ID)

		asc, err := s.FindMany(ctx, query.Predicate{}, query.Sort{Field: "createdAt"}, 0, 1)
		require.NoError(t, err)
		require.Len(t, asc, 1)
		assert.Equal(t, ids[0], asc[0].ID)
	})

	t.Run("TextSearch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		login := sampleBug("Login bug", "The login page rejects valid login credentials")
		other := sampleBug("Chart colors", "Dashboard chart uses wrong palette")
		require.NoError(t, s.Insert(ctx, login))
		require.NoError(t, s.Insert(ctx, other))

		matches, err := s.TextSearch(ctx, []string{"login"})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, login.ID, matches[0].Bug.ID)
		assert.Greater(t, matches[0].Score, 0.0)

		matches, err = s.TextSearch(ctx, []string{"login", "chart"})
		require.NoError(t, err)
		assert.Len(t, matches, 2)

		matches, err = s.TextSearch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func toLower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}
