package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/bugboard/internal/models"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestStatusColor(t *testing.T) {
	for _, st := range []string{"open", "in-progress", "resolved", "closed"} {
		assert.Contains(t, StatusColor(st), st)
	}
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestPriorityColor(t *testing.T) {
	for _, p := range []string{"low", "medium", "high", "critical"} {
		assert.Contains(t, PriorityColor(p), p)
	}
	assert.Equal(t, "urgent", PriorityColor("urgent"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "héll…", Truncate("héllo wörld", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Name", "Status"})
	require.NotNil(t, table)

	require.NoError(t, table.Append([]string{"bugboard", "active"}))
	require.NoError(t, table.Append([]string{"tracker", "stable"}))
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "bugboard"), "table output should contain row values")
	assert.True(t, strings.Contains(result, "tracker"), "table output should contain row values")
}

func TestBugTable(t *testing.T) {
	u, out, _ := newTestUI()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	bugs := []*models.Bug{
		{ID: "01HQ0000000000000000000001", Title: "Login button unresponsive", Status: models.BugStatusOpen, Priority: models.BugPriorityHigh, CreatedAt: now},
		{ID: "01HQ0000000000000000000002", Title: "Typo on pricing page", Status: models.BugStatusClosed, Priority: models.BugPriorityLow, Assignee: "dana", CreatedAt: now},
	}
	require.NoError(t, u.BugTable(bugs))

	result := out.String()
	assert.Contains(t, result, "01HQ0000000000000000000001")
	assert.Contains(t, result, "Login button unresponsive")
	assert.Contains(t, result, "dana")
}

func TestBugDetail(t *testing.T) {
	u, out, _ := newTestUI()
	u.BugDetail(&models.Bug{
		ID:               "01HQ0000000000000000000003",
		Title:            "Crash on save",
		Description:      "Editor crashes when saving large files",
		Status:           models.BugStatusInProgress,
		Priority:         models.BugPriorityCritical,
		Reporter:         "sam",
		Environment:      models.Environment{OS: "macOS", Browser: "Safari"},
		StepsToReproduce: []string{"Open a 50MB file", "Press save"},
		Tags:             []string{"editor", "crash"},
	})

	result := out.String()
	assert.Contains(t, result, "Crash on save")
	assert.Contains(t, result, "macOS / Safari")
	assert.Contains(t, result, "2. Press save")
	assert.Contains(t, result, "editor, crash")
}
