package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/output"
)

var (
	bugTitle    string
	bugDesc     string
	bugReporter string
	bugAssignee string
	bugStatus   string
	bugPriority string
	bugExpected string
	bugActual   string
	bugSteps    []string
	bugTags     []string
	bugOS       string
	bugBrowser  string
	bugDevice   string

	bugPage  string
	bugLimit string
	bugJSON  bool
	bugForce bool
)

var bugCmd = &cobra.Command{
	Use:   "bug",
	Short: "Manage bug reports",
	Long:  "Create, inspect, update and search bug reports in the configured store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugListRun()
	},
}

var bugListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List bugs, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugListRun()
	},
}

var bugShowCmd = &cobra.Command{
	Use:   "show <bug-id>",
	Short: "Show bug details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugShowRun(args[0])
	},
}

var bugAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a new bug",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAddRun(bugInputFromFlags(cmd.Flags()))
	},
}

var bugUpdateCmd = &cobra.Command{
	Use:   "update <bug-id>",
	Short: "Update fields of a bug",
	Long:  "Update a bug. Only the flags you pass are changed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugUpdateRun(args[0], bugInputFromFlags(cmd.Flags()))
	},
}

var bugRmCmd = &cobra.Command{
	Use:     "rm <bug-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a bug permanently",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugRmRun(args[0])
	},
}

var bugSearchCmd = &cobra.Command{
	Use:   "search <words...>",
	Short: "Full-text search over titles and descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugSearchRun(strings.Join(args, " "))
	},
}

func init() {
	bugCmd.PersistentFlags().BoolVar(&bugJSON, "json", false, "Print JSON instead of a table")

	addBugFieldFlags(bugAddCmd.Flags())
	bugAddCmd.Flags().Lookup("reporter").DefValue = os.Getenv("USER")
	_ = bugAddCmd.MarkFlagRequired("title")
	_ = bugAddCmd.MarkFlagRequired("desc")

	addBugFieldFlags(bugUpdateCmd.Flags())

	bugListCmd.Flags().StringVar(&bugStatus, "status", "", "Filter by status: open, in-progress, resolved, closed")
	bugListCmd.Flags().StringVar(&bugPriority, "priority", "", "Filter by priority: low, medium, high, critical")
	bugListCmd.Flags().StringVar(&bugPage, "page", "", "Page number (default 1)")
	bugListCmd.Flags().StringVar(&bugLimit, "limit", "", "Page size (default 10, max 100)")

	bugRmCmd.Flags().BoolVarP(&bugForce, "force", "f", false, "Do not ask for confirmation")

	bugCmd.AddCommand(bugListCmd)
	bugCmd.AddCommand(bugShowCmd)
	bugCmd.AddCommand(bugAddCmd)
	bugCmd.AddCommand(bugUpdateCmd)
	bugCmd.AddCommand(bugRmCmd)
	bugCmd.AddCommand(bugSearchCmd)
	rootCmd.AddCommand(bugCmd)
}

func addBugFieldFlags(fs *pflag.FlagSet) {
	fs.StringVar(&bugTitle, "title", "", "Bug title (max 100 characters)")
	fs.StringVar(&bugDesc, "desc", "", "Bug description (max 1000 characters)")
	fs.StringVar(&bugReporter, "reporter", "", "Who reported it")
	fs.StringVar(&bugAssignee, "assignee", "", "Who is working on it")
	fs.StringVar(&bugStatus, "status", "", "Status: open, in-progress, resolved, closed")
	fs.StringVar(&bugPriority, "priority", "", "Priority: low, medium, high, critical")
	fs.StringVar(&bugExpected, "expected", "", "Expected behavior")
	fs.StringVar(&bugActual, "actual", "", "Actual behavior")
	fs.StringArrayVar(&bugSteps, "step", nil, "Reproduction step (repeatable, in order)")
	fs.StringSliceVar(&bugTags, "tag", nil, "Tag (repeatable or comma-separated)")
	fs.StringVar(&bugOS, "os", "", "Operating system")
	fs.StringVar(&bugBrowser, "browser", "", "Browser")
	fs.StringVar(&bugDevice, "device", "", "Device")
}

// bugInputFromFlags builds a payload from the flags the user actually set.
// The reporter flag also counts when it carries a non-empty default.
func bugInputFromFlags(fs *pflag.FlagSet) models.BugInput {
	var in models.BugInput
	str := func(name string, v string) *string {
		if !fs.Changed(name) {
			return nil
		}
		return &v
	}
	in.Title = str("title", bugTitle)
	in.Description = str("desc", bugDesc)
	in.Assignee = str("assignee", bugAssignee)
	in.ExpectedBehavior = str("expected", bugExpected)
	in.ActualBehavior = str("actual", bugActual)
	in.Reporter = str("reporter", bugReporter)
	if in.Reporter == nil {
		if def := fs.Lookup("reporter").DefValue; def != "" {
			in.Reporter = &def
		}
	}
	if fs.Changed("status") {
		s := models.BugStatus(bugStatus)
		in.Status = &s
	}
	if fs.Changed("priority") {
		p := models.BugPriority(bugPriority)
		in.Priority = &p
	}
	if fs.Changed("step") {
		in.StepsToReproduce = models.CompactSteps(append([]string{}, bugSteps...))
	}
	if fs.Changed("tag") {
		in.Tags = append([]string{}, bugTags...)
	}
	env := &models.EnvironmentPatch{
		OS:      str("os", bugOS),
		Browser: str("browser", bugBrowser),
		Device:  str("device", bugDevice),
	}
	if !env.Empty() {
		in.EnvPatch = env
	}
	return in
}

func bugListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	res, err := svc.List(cmdContext(), map[string]string{
		"status":   bugStatus,
		"priority": bugPriority,
	}, bugPage, bugLimit)
	if err != nil {
		return cliError(err)
	}
	if bugJSON {
		return printJSON(res)
	}
	if len(res.Bugs) == 0 {
		ui.Info("No bugs found.")
		return nil
	}
	if err := ui.BugTable(res.Bugs); err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "\nPage %d of %d (%d bugs)\n", res.CurrentPage, res.TotalPages, res.Total)
	return nil
}

func bugShowRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	b, err := svc.Get(cmdContext(), id)
	if err != nil {
		return cliError(err)
	}
	if bugJSON {
		return printJSON(b)
	}
	ui.BugDetail(b)
	return nil
}

func bugAddRun(in models.BugInput) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would create bug %q", deref(in.Title))
		return nil
	}
	b, err := svc.Create(cmdContext(), in)
	if err != nil {
		return cliError(err)
	}
	if bugJSON {
		return printJSON(b)
	}
	ui.Success("Created bug %s: %s", output.Cyan(b.ID), b.Title)
	return nil
}

func bugUpdateRun(id string, in models.BugInput) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would update bug %s", id)
		return nil
	}
	b, err := svc.Update(cmdContext(), id, in)
	if err != nil {
		return cliError(err)
	}
	if bugJSON {
		return printJSON(b)
	}
	ui.Success("Updated bug %s [%s, %s]", output.Cyan(b.ID), output.StatusColor(string(b.Status)), output.PriorityColor(string(b.Priority)))
	return nil
}

func bugRmRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	b, err := svc.Get(cmdContext(), id)
	if err != nil {
		return cliError(err)
	}
	if dryRun {
		ui.DryRunMsg("Would delete bug %s: %s", b.ID, b.Title)
		return nil
	}
	if !bugForce && !confirm(fmt.Sprintf("Delete bug %s (%s)?", b.ID, b.Title)) {
		ui.Info("Aborted.")
		return nil
	}
	res, err := svc.Delete(cmdContext(), b.ID)
	if err != nil {
		return cliError(err)
	}
	ui.Success("%s (%s)", res.Message, b.ID)
	return nil
}

func bugSearchRun(q string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	found, err := svc.Search(cmdContext(), q)
	if err != nil {
		return cliError(err)
	}
	if bugJSON {
		return printJSON(found)
	}
	if len(found) == 0 {
		ui.Info("No bugs match %q.", q)
		return nil
	}
	return ui.BugTable(found)
}

// cliError renders err with the message an API caller would see.
func cliError(err error) error {
	_, body := apierr.Normalize(err, verbose)
	msg := body.Error
	if len(body.Details) > 0 {
		msg += ":\n  - " + strings.Join(body.Details, "\n  - ")
	}
	return errors.New(msg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirmInput is the reader for confirm prompts, replaceable in tests.
var confirmInput io.Reader = os.Stdin

func confirm(prompt string) bool {
	fmt.Fprintf(ui.Out, "%s [y/N] ", prompt)
	var answer string
	if _, err := fmt.Fscanln(confirmInput, &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
