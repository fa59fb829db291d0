package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Categories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   Body
	}{
		{
			name:       "validation",
			err:        Validation("Title is required", "Reporter is required"),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Validation Error", Details: []string{"Title is required", "Reporter is required"}},
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("insert bug: %w", Validation("Invalid status value")),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Validation Error", Details: []string{"Invalid status value"}},
		},
		{
			name:       "duplicate",
			err:        fmt.Errorf("insert bug: %w", ErrDuplicate),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Duplicate field value entered"},
		},
		{
			name:       "malformed id",
			err:        fmt.Errorf("%w: %q", ErrMalformedID, "abc"),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Invalid resource ID"},
		},
		{
			name:       "not found with entity",
			err:        NotFound("Bug", "01HX"),
			wantStatus: http.StatusNotFound,
			wantBody:   Body{Error: "Bug not found"},
		},
		{
			name:       "bare not found",
			err:        fmt.Errorf("lookup: %w", ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantBody:   Body{Error: "Resource not found"},
		},
		{
			name:       "empty query",
			err:        ErrEmptyQuery,
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Search query is required"},
		},
		{
			name:       "declared status",
			err:        fmt.Errorf("decode: %w", BadRequest("Invalid JSON")),
			wantStatus: http.StatusBadRequest,
			wantBody:   Body{Error: "Invalid JSON"},
		},
		{
			name:       "declared 503 hides message",
			err:        New(http.StatusServiceUnavailable, "unavailable", errors.New("pool exhausted")),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   Body{Error: "Internal Server Error"},
		},
		{
			name:       "internal",
			err:        errors.New("disk I/O error on bugs.db"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   Body{Error: "Internal Server Error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Normalize(tt.err, false)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestNormalize_DebugExposesDetail(t *testing.T) {
	err := fmt.Errorf("count bugs: %w", errors.New("database is locked"))

	status, body := Normalize(err, true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "count bugs: database is locked", body.Error)
	assert.Equal(t, "count bugs: database is locked", body.Stack)

	_, body = Normalize(err, false)
	assert.Empty(t, body.Stack)
	assert.NotContains(t, body.Error, "database")
}

func TestNotFoundError_Is(t *testing.T) {
	err := fmt.Errorf("get bug: %w", NotFound("Bug", "x"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "bug not found: x", NotFound("Bug", "x").Error())
}
