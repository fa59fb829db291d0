package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/bugboard/internal/models"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	magenta       = color.New(color.FgHiMagenta, color.Bold).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// StatusColor returns the string colored by bug status.
func StatusColor(status string) string {
	switch strings.ToLower(status) {
	case string(models.BugStatusOpen):
		return green(status)
	case string(models.BugStatusInProgress):
		return yellow(status)
	case string(models.BugStatusResolved):
		return cyan(status)
	case string(models.BugStatusClosed):
		return red(status)
	default:
		return status
	}
}

// PriorityColor returns the string colored by bug priority.
func PriorityColor(priority string) string {
	switch strings.ToLower(priority) {
	case string(models.BugPriorityCritical):
		return magenta(priority)
	case string(models.BugPriorityHigh):
		return red(priority)
	case string(models.BugPriorityMedium):
		return yellow(priority)
	case string(models.BugPriorityLow):
		return green(priority)
	default:
		return priority
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// BugTable renders bugs as a compact table.
func (u *UI) BugTable(bugs []*models.Bug) error {
	table := u.Table([]string{"ID", "Status", "Priority", "Title", "Assignee", "Created"})
	for _, b := range bugs {
		assignee := b.Assignee
		if assignee == "" {
			assignee = "-"
		}
		if err := table.Append([]string{
			b.ID,
			StatusColor(string(b.Status)),
			PriorityColor(string(b.Priority)),
			Truncate(b.Title, 48),
			assignee,
			b.CreatedAt.Local().Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// BugDetail prints every field of one bug.
func (u *UI) BugDetail(b *models.Bug) {
	fmt.Fprintf(u.Out, "%s  %s\n", Cyan(b.ID), b.Title)
	fmt.Fprintf(u.Out, "  Status:    %s\n", StatusColor(string(b.Status)))
	fmt.Fprintf(u.Out, "  Priority:  %s\n", PriorityColor(string(b.Priority)))
	fmt.Fprintf(u.Out, "  Reporter:  %s\n", b.Reporter)
	if b.Assignee != "" {
		fmt.Fprintf(u.Out, "  Assignee:  %s\n", b.Assignee)
	}
	if env := b.Environment; env.OS != "" || env.Browser != "" || env.Device != "" {
		fmt.Fprintf(u.Out, "  Env:       %s\n", strings.Join(nonEmpty(env.OS, env.Browser, env.Device), " / "))
	}
	if len(b.Tags) > 0 {
		fmt.Fprintf(u.Out, "  Tags:      %s\n", strings.Join(b.Tags, ", "))
	}
	fmt.Fprintf(u.Out, "  Created:   %s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(u.Out, "  Updated:   %s\n", b.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(u.Out, "\n%s\n", b.Description)
	if len(b.StepsToReproduce) > 0 {
		fmt.Fprintln(u.Out, "\nSteps to reproduce:")
		for i, s := range b.StepsToReproduce {
			fmt.Fprintf(u.Out, "  %d. %s\n", i+1, s)
		}
	}
	if b.ExpectedBehavior != "" {
		fmt.Fprintf(u.Out, "\nExpected: %s\n", b.ExpectedBehavior)
	}
	if b.ActualBehavior != "" {
		fmt.Fprintf(u.Out, "Actual:   %s\n", b.ActualBehavior)
	}
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func nonEmpty(vals ...string) []string {
	var out []string
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
