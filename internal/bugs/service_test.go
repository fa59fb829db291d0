package bugs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
	"github.com/joescharf/bugboard/internal/store"
)

func strp(s string) *string { return &s }

func createInput(title, description string) models.BugInput {
	return models.BugInput{
		Title:       strp(title),
		Description: strp(description),
		Reporter:    strp("John Doe"),
	}
}

type storeFactory struct {
	name string
	new  func(t *testing.T) store.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) store.Store { return store.NewMemoryStore() }},
		{"sqlite", func(t *testing.T) store.Store {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bugs.db"))
			require.NoError(t, err)
			require.NoError(t, s.Migrate(context.Background()))
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, svc *Service, st store.Store)) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			st := f.new(t)
			fn(t, NewService(st), st)
		})
	}
}

func TestCreate_DefaultsAndSanitizes(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		in := createInput("  Login bug  ", "  Cannot log in  ")
		in.Assignee = strp("  Jane  ")

		b, err := svc.Create(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, "Login bug", b.Title)
		assert.Equal(t, "Cannot log in", b.Description)
		assert.Equal(t, "Jane", b.Assignee)
		assert.Equal(t, models.BugStatusOpen, b.Status)
		assert.Equal(t, models.BugPriorityMedium, b.Priority)
		assert.NotNil(t, b.Tags)
		assert.NotNil(t, b.StepsToReproduce)

		got, err := svc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.Title, got.Title)
	})
}

func TestCreate_ValidationNothingPersisted(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, st store.Store) {
		ctx := context.Background()

		_, err := svc.Create(ctx, models.BugInput{Title: strp(strings.Repeat("x", 101))})
		var ve *apierr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{
			"Title cannot exceed 100 characters",
			"Description is required",
			"Reporter is required",
		}, ve.Violations())

		n, err := st.Count(ctx, query.Predicate{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestList_PaginationArithmetic(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, st store.Store) {
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 25; i++ {
			b := models.NewBug(createInput("Bug", "desc"))
			b.CreatedAt = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, st.Insert(ctx, b))
		}

		res, err := svc.List(ctx, nil, "3", "10")
		require.NoError(t, err)
		assert.Len(t, res.Bugs, 5)
		assert.Equal(t, 3, res.TotalPages)
		assert.Equal(t, 3, res.CurrentPage)
		assert.Equal(t, int64(25), res.Total)
		// Page 3 holds the five oldest, still newest first.
		assert.True(t, res.Bugs[0].CreatedAt.Equal(base.Add(4*time.Second)))
		assert.True(t, res.Bugs[4].CreatedAt.Equal(base))

		res, err = svc.List(ctx, nil, "4", "10")
		require.NoError(t, err)
		assert.NotNil(t, res.Bugs)
		assert.Empty(t, res.Bugs)
		assert.Equal(t, 3, res.TotalPages)

		res, err = svc.List(ctx, nil, "922337203685477581", "100")
		require.NoError(t, err)
		assert.NotNil(t, res.Bugs)
		assert.Empty(t, res.Bugs)
		assert.Equal(t, int64(25), res.Total)

		res, err = svc.List(ctx, nil, "abc", "-1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.CurrentPage)
		assert.Len(t, res.Bugs, 10)
	})
}

func TestList_FiltersAndIgnoresInvalid(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		statuses := []models.BugStatus{models.BugStatusOpen, models.BugStatusOpen, models.BugStatusClosed}
		for _, st := range statuses {
			in := createInput("Bug", "desc")
			st := st
			in.Status = &st
			_, err := svc.Create(ctx, in)
			require.NoError(t, err)
		}

		res, err := svc.List(ctx, map[string]string{"status": "open"}, "", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Total)
		for _, b := range res.Bugs {
			assert.Equal(t, models.BugStatusOpen, b.Status)
		}

		res, err = svc.List(ctx, map[string]string{"status": "bogus", "color": "red"}, "", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Total)
	})
}

func TestList_Empty(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		res, err := svc.List(context.Background(), nil, "", "")
		require.NoError(t, err)
		assert.NotNil(t, res.Bugs)
		assert.Zero(t, res.Total)
		assert.Zero(t, res.TotalPages)
		assert.Equal(t, 1, res.CurrentPage)
	})
}

func TestUpdate_MergeSemantics(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		in := createInput("Login bug", "Cannot log in")
		priority := models.BugPriorityHigh
		in.Priority = &priority
		in.Tags = []string{"auth"}
		b, err := svc.Create(ctx, in)
		require.NoError(t, err)

		status := models.BugStatusResolved
		got, err := svc.Update(ctx, b.ID, models.BugInput{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, models.BugStatusResolved, got.Status)
		assert.Equal(t, models.BugPriorityHigh, got.Priority)
		assert.Equal(t, "Login bug", got.Title)
		assert.Equal(t, []string{"auth"}, got.Tags)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})
}

func TestUpdate_Errors(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		b, err := svc.Create(ctx, createInput("Login bug", "Cannot log in"))
		require.NoError(t, err)

		bad := models.BugStatus("done")
		_, err = svc.Update(ctx, b.ID, models.BugInput{Status: &bad})
		var ve *apierr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"Invalid status value"}, ve.Violations())

		_, err = svc.Update(ctx, "nope", models.BugInput{})
		assert.ErrorIs(t, err, apierr.ErrMalformedID)

		_, err = svc.Update(ctx, ulid.Make().String(), models.BugInput{Title: strp("x")})
		assert.ErrorIs(t, err, apierr.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		b, err := svc.Create(ctx, createInput("Login bug", "Cannot log in"))
		require.NoError(t, err)

		res, err := svc.Delete(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, DeletedMessage, res.Message)

		_, err = svc.Get(ctx, b.ID)
		assert.ErrorIs(t, err, apierr.ErrNotFound)

		_, err = svc.Delete(ctx, b.ID)
		assert.ErrorIs(t, err, apierr.ErrNotFound)
	})
}

func TestGet_MalformedVersusMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()

		_, err := svc.Get(ctx, "123")
		status, body := apierr.Normalize(err, false)
		assert.Equal(t, 400, status)
		assert.Equal(t, "Invalid resource ID", body.Error)

		_, err = svc.Get(ctx, ulid.Make().String())
		status, body = apierr.Normalize(err, false)
		assert.Equal(t, 404, status)
		assert.Equal(t, "Bug not found", body.Error)
	})
}

func TestSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service, _ store.Store) {
		ctx := context.Background()
		_, err := svc.Create(ctx, createInput("Chart colors", "Dashboard palette is wrong"))
		require.NoError(t, err)
		login, err := svc.Create(ctx, createInput("Login bug", "Login button does nothing"))
		require.NoError(t, err)
		_, err = svc.Create(ctx, createInput("Profile photo", "Upload fails after login redirect"))
		require.NoError(t, err)

		_, err = svc.Search(ctx, "   ")
		assert.ErrorIs(t, err, apierr.ErrEmptyQuery)

		got, err := svc.Search(ctx, "login")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, login.ID, got[0].ID)

		got, err = svc.Search(ctx, "?!")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) FindMany(context.Context, query.Predicate, query.Sort, int, int) ([]*models.Bug, error) {
	return nil, f.err
}

func (f failingStore) TextSearch(context.Context, []string) ([]search.Match, error) {
	return nil, f.err
}

func TestStoreFailuresPropagate(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(failingStore{Store: store.NewMemoryStore(), err: boom})

	_, err := svc.List(context.Background(), nil, "", "")
	assert.ErrorIs(t, err, boom)

	_, err = svc.Search(context.Background(), "login")
	assert.ErrorIs(t, err, boom)

	status, body := apierr.Normalize(err, false)
	assert.Equal(t, 500, status)
	assert.Equal(t, "Internal Server Error", body.Error)
}

func TestWithPaging(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewService(st, WithPaging(query.Defaults{Limit: 2, MaxLimit: 3}))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, createInput("Bug", "desc"))
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, nil, "", "")
	require.NoError(t, err)
	assert.Len(t, res.Bugs, 2)
	assert.Equal(t, 3, res.TotalPages)

	res, err = svc.List(ctx, nil, "", "50")
	require.NoError(t, err)
	assert.Len(t, res.Bugs, 3)
}
