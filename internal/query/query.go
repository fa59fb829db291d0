// Package query turns request parameters into store-neutral filter, sort and
// pagination values.
package query

import (
	"github.com/joescharf/bugboard/internal/models"
)

// Term is one field = value equality.
type Term struct {
	Field string
	Value string
}

// Predicate is a conjunction of equality terms. The zero value matches everything.
type Predicate struct {
	Terms []Term
}

// BuildPredicate keeps the recognized filters with valid enum values.
// Unknown keys and invalid or empty values are silently dropped.
func BuildPredicate(filters map[string]string) Predicate {
	var p Predicate
	if v := filters["status"]; v != "" && models.BugStatus(v).Valid() {
		p.Terms = append(p.Terms, Term{Field: "status", Value: v})
	}
	if v := filters["priority"]; v != "" && models.BugPriority(v).Valid() {
		p.Terms = append(p.Terms, Term{Field: "priority", Value: v})
	}
	return p
}

// Empty reports whether the predicate has no terms.
func (p Predicate) Empty() bool { return len(p.Terms) == 0 }

// Matches evaluates the predicate against b in memory.
func (p Predicate) Matches(b *models.Bug) bool {
	for _, t := range p.Terms {
		switch t.Field {
		case "status":
			if string(b.Status) != t.Value {
				return false
			}
		case "priority":
			if string(b.Priority) != t.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Sort orders list results. Ties on Field are broken by id in the same direction.
type Sort struct {
	Field string
	Desc  bool
}

// NewestFirst is the default listing order.
var NewestFirst = Sort{Field: "createdAt", Desc: true}
