package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/bugboard/internal/models"
)

func TestBuildPredicate(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		want    []Term
	}{
		{"none", nil, nil},
		{"status", map[string]string{"status": "open"}, []Term{{"status", "open"}}},
		{"priority", map[string]string{"priority": "critical"}, []Term{{"priority", "critical"}}},
		{
			"both",
			map[string]string{"status": "in-progress", "priority": "high"},
			[]Term{{"status", "in-progress"}, {"priority", "high"}},
		},
		{"empty value", map[string]string{"status": ""}, nil},
		{"invalid enum", map[string]string{"status": "bogus", "priority": "urgent"}, nil},
		{"unknown key", map[string]string{"reporter": "alice"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPredicate(tt.filters)
			assert.Equal(t, tt.want, p.Terms)
		})
	}
}

func TestPredicateMatches(t *testing.T) {
	bug := &models.Bug{Status: models.BugStatusOpen, Priority: models.BugPriorityHigh}

	assert.True(t, Predicate{}.Matches(bug))
	assert.True(t, BuildPredicate(map[string]string{"status": "open"}).Matches(bug))
	assert.True(t, BuildPredicate(map[string]string{"status": "open", "priority": "high"}).Matches(bug))
	assert.False(t, BuildPredicate(map[string]string{"status": "open", "priority": "low"}).Matches(bug))
	assert.False(t, BuildPredicate(map[string]string{"status": "closed"}).Matches(bug))
	assert.False(t, Predicate{Terms: []Term{{Field: "reporter", Value: "x"}}}.Matches(bug))
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		name        string
		page, limit string
		want        Page
	}{
		{"defaults", "", "", Page{Number: 1, Limit: 10}},
		{"explicit", "3", "25", Page{Number: 3, Limit: 25}},
		{"non-numeric", "abc", "xyz", Page{Number: 1, Limit: 10}},
		{"zero", "0", "0", Page{Number: 1, Limit: 10}},
		{"negative", "-2", "-5", Page{Number: 1, Limit: 10}},
		{"above max", "1", "500", Page{Number: 1, Limit: 100}},
		{"whitespace", " 2 ", " 5 ", Page{Number: 2, Limit: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePage(tt.page, tt.limit, DefaultPaging))
		})
	}
}

func TestParsePage_HugePage(t *testing.T) {
	p := ParsePage("922337203685477581", "100", DefaultPaging)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, math.MaxInt/100, p.Number)
	assert.Positive(t, p.Offset())

	p = ParsePage("99999999999999999999999", "99999999999999999999999", DefaultPaging)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, math.MaxInt/100, p.Number)
	assert.Positive(t, p.Offset())

	p = ParsePage("-99999999999999999999999", "", DefaultPaging)
	assert.Equal(t, Page{Number: 1, Limit: 10}, p)
}

func TestParsePage_CustomDefaults(t *testing.T) {
	d := Defaults{Limit: 20, MaxLimit: 50}
	assert.Equal(t, Page{Number: 1, Limit: 20}, ParsePage("", "", d))
	assert.Equal(t, Page{Number: 1, Limit: 50}, ParsePage("", "51", d))

	// Zero policy falls back to the package defaults.
	assert.Equal(t, Page{Number: 1, Limit: 10}, ParsePage("", "", Defaults{}))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Page{Number: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, Page{Number: 3, Limit: 10}.Offset())
	assert.Equal(t, 5, Page{Number: 2, Limit: 5}.Offset())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 3, TotalPages(25, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}
