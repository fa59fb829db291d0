// Package validate checks and normalizes bug payloads before they reach a store.
package validate

import (
	"strings"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
)

// Mode selects which fields are required.
type Mode int

const (
	// ModeCreate requires every field in models.TextRules.
	ModeCreate Mode = iota
	// ModeUpdate treats all fields as optional; present fields must still pass.
	ModeUpdate
)

// Violation is one field-level constraint failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate returns the ordered violations for in. An empty result means accept.
func Validate(in models.BugInput, mode Mode) []Violation {
	var out []Violation

	for _, rule := range models.TextRules {
		value := textValue(in, rule.Field)
		if value == nil {
			if mode == ModeCreate {
				out = append(out, Violation{Field: rule.Field, Message: rule.RequiredMessage()})
			}
			continue
		}
		if msg := rule.Check(*value); msg != "" {
			out = append(out, Violation{Field: rule.Field, Message: msg})
		}
	}

	if in.Status != nil && !in.Status.Valid() {
		out = append(out, Violation{Field: "status", Message: models.InvalidStatusMessage})
	}
	if in.Priority != nil && !in.Priority.Valid() {
		out = append(out, Violation{Field: "priority", Message: models.InvalidPriorityMessage})
	}
	return out
}

// Error converts violations into a validation error, or nil when there are none.
func Error(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.Message
	}
	return apierr.Validation(msgs...)
}

// Sanitize trims the free-text identity fields that are present. It never
// rejects input and is idempotent.
func Sanitize(in models.BugInput) models.BugInput {
	out := in
	out.Title = trimmed(in.Title)
	out.Description = trimmed(in.Description)
	out.Reporter = trimmed(in.Reporter)
	out.Assignee = trimmed(in.Assignee)
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func textValue(in models.BugInput, field string) *string {
	switch field {
	case "title":
		return in.Title
	case "description":
		return in.Description
	case "reporter":
		return in.Reporter
	}
	return nil
}
