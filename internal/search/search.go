// Package search tokenizes free-text queries and orders ranked matches.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/joescharf/bugboard/internal/models"
)

// Match is a bug with its relevance score. Higher scores rank first.
type Match struct {
	Bug   *models.Bug
	Score float64
}

// Terms lowercases q and splits it into unique letter/digit runs, in order of
// first appearance.
func Terms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// MatchExpression builds an FTS5 query that matches any of the terms.
// Each term is quoted so FTS5 operators in user input are taken literally.
func MatchExpression(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Rank sorts matches by score desc, then createdAt desc, then id desc, and
// returns the bugs in that order.
func Rank(matches []Match) []*models.Bug {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Bug.CreatedAt.Equal(b.Bug.CreatedAt) {
			return a.Bug.CreatedAt.After(b.Bug.CreatedAt)
		}
		return a.Bug.ID > b.Bug.ID
	})
	out := make([]*models.Bug, len(matches))
	for i, m := range matches {
		out[i] = m.Bug
	}
	return out
}

// Score counts how many tokens of the bug's title and description equal one
// of the terms. Zero means no match. Tokens are compared exactly, without
// stemming, so "crashes" does not match "crash" here even though the SQLite
// (porter) and Postgres (english) indexes treat them as the same word.
func Score(b *models.Bug, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	want := make(map[string]bool, len(terms))
	for _, t := range terms {
		want[t] = true
	}
	var score float64
	for _, text := range []string{b.Title, b.Description} {
		for _, tok := range tokens(text) {
			if want[tok] {
				score++
			}
		}
	}
	return score
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
