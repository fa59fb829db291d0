package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// BugStatus represents the lifecycle state of a bug.
type BugStatus string

const (
	BugStatusOpen       BugStatus = "open"
	BugStatusInProgress BugStatus = "in-progress"
	BugStatusResolved   BugStatus = "resolved"
	BugStatusClosed     BugStatus = "closed"
)

// BugPriority represents the urgency of a bug.
type BugPriority string

const (
	BugPriorityLow      BugPriority = "low"
	BugPriorityMedium   BugPriority = "medium"
	BugPriorityHigh     BugPriority = "high"
	BugPriorityCritical BugPriority = "critical"
)

// Statuses and Priorities are the complete enum sets, in display order.
var (
	Statuses   = []BugStatus{BugStatusOpen, BugStatusInProgress, BugStatusResolved, BugStatusClosed}
	Priorities = []BugPriority{BugPriorityLow, BugPriorityMedium, BugPriorityHigh, BugPriorityCritical}
)

// Valid reports whether s is one of Statuses.
func (s BugStatus) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Valid reports whether p is one of Priorities.
func (p BugPriority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// Environment describes where a bug was observed.
type Environment struct {
	OS      string `json:"os,omitempty" yaml:"os,omitempty"`
	Browser string `json:"browser,omitempty" yaml:"browser,omitempty"`
	Device  string `json:"device,omitempty" yaml:"device,omitempty"`
}

// Bug is a persisted bug report.
type Bug struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Status           BugStatus   `json:"status"`
	Priority         BugPriority `json:"priority"`
	StepsToReproduce []string    `json:"stepsToReproduce"`
	ExpectedBehavior string      `json:"expectedBehavior,omitempty"`
	ActualBehavior   string      `json:"actualBehavior,omitempty"`
	Environment      Environment `json:"environment"`
	Reporter         string      `json:"reporter"`
	Assignee         string      `json:"assignee,omitempty"`
	Tags             []string    `json:"tags"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy so callers can't mutate stored slices.
func (b *Bug) Clone() *Bug {
	if b == nil {
		return nil
	}
	c := *b
	c.StepsToReproduce = append([]string(nil), b.StepsToReproduce...)
	c.Tags = append([]string(nil), b.Tags...)
	return &c
}

// BugInput is a create or partial-update payload. Nil fields are absent.
type BugInput struct {
	Title            *string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description      *string      `json:"description,omitempty" yaml:"description,omitempty"`
	Status           *BugStatus   `json:"status,omitempty" yaml:"status,omitempty"`
	Priority         *BugPriority `json:"priority,omitempty" yaml:"priority,omitempty"`
	StepsToReproduce []string     `json:"stepsToReproduce,omitempty" yaml:"stepsToReproduce,omitempty"`
	ExpectedBehavior *string      `json:"expectedBehavior,omitempty" yaml:"expectedBehavior,omitempty"`
	ActualBehavior   *string      `json:"actualBehavior,omitempty" yaml:"actualBehavior,omitempty"`
	Environment      *Environment `json:"environment,omitempty" yaml:"environment,omitempty"`
	Reporter         *string      `json:"reporter,omitempty" yaml:"reporter,omitempty"`
	Assignee         *string      `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Tags             []string     `json:"tags,omitempty" yaml:"tags,omitempty"`

	// EnvPatch sets individual environment keys, leaving the others as
	// stored. It is applied after Environment. The CLI and MCP surfaces use
	// it; JSON bodies replace the whole environment instead.
	EnvPatch *EnvironmentPatch `json:"-" yaml:"-"`
}

// EnvironmentPatch is a per-key environment update. Nil keys are absent.
type EnvironmentPatch struct {
	OS      *string
	Browser *string
	Device  *string
}

// Empty reports whether no key is set.
func (p *EnvironmentPatch) Empty() bool {
	return p == nil || (p.OS == nil && p.Browser == nil && p.Device == nil)
}

// ApplyTo overlays the present keys onto env.
func (p *EnvironmentPatch) ApplyTo(env *Environment) {
	if p == nil {
		return
	}
	if p.OS != nil {
		env.OS = *p.OS
	}
	if p.Browser != nil {
		env.Browser = *p.Browser
	}
	if p.Device != nil {
		env.Device = *p.Device
	}
}

// NewBug builds a record from a create payload, applying status and priority defaults.
func NewBug(in BugInput) *Bug {
	b := &Bug{
		Status:           BugStatusOpen,
		Priority:         BugPriorityMedium,
		StepsToReproduce: []string{},
		Tags:             []string{},
	}
	in.ApplyTo(b)
	return b
}

// ApplyTo merges every present field of in onto b.
func (in BugInput) ApplyTo(b *Bug) {
	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.Description != nil {
		b.Description = *in.Description
	}
	if in.Status != nil {
		b.Status = *in.Status
	}
	if in.Priority != nil {
		b.Priority = *in.Priority
	}
	if in.StepsToReproduce != nil {
		b.StepsToReproduce = append([]string{}, in.StepsToReproduce...)
	}
	if in.ExpectedBehavior != nil {
		b.ExpectedBehavior = *in.ExpectedBehavior
	}
	if in.ActualBehavior != nil {
		b.ActualBehavior = *in.ActualBehavior
	}
	if in.Environment != nil {
		b.Environment = *in.Environment
	}
	in.EnvPatch.ApplyTo(&b.Environment)
	if in.Reporter != nil {
		b.Reporter = *in.Reporter
	}
	if in.Assignee != nil {
		b.Assignee = *in.Assignee
	}
	if in.Tags != nil {
		b.Tags = append([]string{}, in.Tags...)
	}
}

// CompactSteps drops blank reproduction steps, keeping order.
// A nil input stays nil so "absent" survives decoding.
func CompactSteps(steps []string) []string {
	if steps == nil {
		return nil
	}
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// TextRule constrains one required text field.
type TextRule struct {
	Field  string
	Label  string
	MaxLen int // 0 = unbounded
}

// TextRules is the single source of truth for required text fields, in
// violation-reporting order. Both the validator and the stores consult it.
var TextRules = []TextRule{
	{Field: "title", Label: "Title", MaxLen: 100},
	{Field: "description", Label: "Description", MaxLen: 1000},
	{Field: "reporter", Label: "Reporter"},
}

// RequiredMessage is reported when a required text field is missing or blank.
func (r TextRule) RequiredMessage() string {
	return r.Label + " is required"
}

// TooLongMessage is reported when a text field exceeds MaxLen.
func (r TextRule) TooLongMessage() string {
	return fmt.Sprintf("%s cannot exceed %d characters", r.Label, r.MaxLen)
}

// Check returns the violation message for value, or "" if it passes.
// Length is measured in characters after trimming.
func (r TextRule) Check(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return r.RequiredMessage()
	}
	if r.MaxLen > 0 && utf8.RuneCountInString(trimmed) > r.MaxLen {
		return r.TooLongMessage()
	}
	return ""
}

const (
	InvalidStatusMessage   = "Invalid status value"
	InvalidPriorityMessage = "Invalid priority value"
)

// TextField returns the value of a rule-governed field on b.
func (b *Bug) TextField(field string) string {
	switch field {
	case "title":
		return b.Title
	case "description":
		return b.Description
	case "reporter":
		return b.Reporter
	}
	return ""
}

// SchemaViolations checks a complete record against TextRules and the enum
// sets. Stores call it before every write.
func (b *Bug) SchemaViolations() []string {
	var msgs []string
	for _, r := range TextRules {
		if msg := r.Check(b.TextField(r.Field)); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if !b.Status.Valid() {
		msgs = append(msgs, InvalidStatusMessage)
	}
	if !b.Priority.Valid() {
		msgs = append(msgs, InvalidPriorityMessage)
	}
	return msgs
}
