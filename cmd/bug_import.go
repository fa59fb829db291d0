package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/bugboard/internal/bugs"
	"github.com/joescharf/bugboard/internal/llm"
	"github.com/joescharf/bugboard/internal/output"
)

var (
	importReporter string
	importNoLLM    bool
	importDryRun   bool
)

var bugImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import bug reports from a markdown file",
	Long: `Import bug reports from a markdown file.

With an Anthropic API key (ANTHROPIC_API_KEY or anthropic.api_key) an LLM
extracts titles, descriptions, priorities, steps and environments. Without
one, or with --no-llm, each top-level numbered or bulleted item becomes a
bug and its indented sub-items become reproduction steps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugImportRun(args[0])
	},
}

func init() {
	bugImportCmd.Flags().StringVar(&importReporter, "reporter", os.Getenv("USER"), "Reporter recorded on imported bugs")
	bugImportCmd.Flags().BoolVar(&importNoLLM, "no-llm", false, "Use the simple markdown parser")
	bugImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview extracted bugs without creating them")
	bugCmd.AddCommand(bugImportCmd)
}

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

func bugImportRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}
	if strings.TrimSpace(importReporter) == "" {
		return fmt.Errorf("--reporter is required")
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := cmdContext()

	var extracted []llm.ExtractedBug
	client := newLLMClient()
	switch {
	case importNoLLM:
		extracted = parseMarkdownBugs(content)
	case client == nil:
		ui.Warning("No Anthropic API key configured, using the simple markdown parser")
		extracted = parseMarkdownBugs(content)
	default:
		ui.Info("Extracting bugs with LLM (%s)...", viper.GetString("anthropic.model"))
		extracted, err = client.ExtractBugs(ctx, content)
		if err != nil {
			return fmt.Errorf("extract bugs: %w", err)
		}
	}

	if len(extracted) == 0 {
		ui.Info("No bugs extracted from file.")
		return nil
	}

	table := ui.Table([]string{"#", "Title", "Priority", "Steps"})
	for i, e := range extracted {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			output.Truncate(e.Title, 60),
			output.PriorityColor(e.Priority),
			fmt.Sprintf("%d", len(e.StepsToReproduce)),
		})
	}
	_ = table.Render()

	if importDryRun || dryRun {
		ui.DryRunMsg("Would create %d bugs", len(extracted))
		return nil
	}
	return createExtractedBugs(ctx, svc, extracted, importReporter)
}

// createExtractedBugs creates each extraction, skipping the ones that fail validation.
func createExtractedBugs(ctx context.Context, svc *bugs.Service, extracted []llm.ExtractedBug, reporter string) error {
	created, skipped := 0, 0
	for _, e := range extracted {
		b, err := svc.Create(ctx, e.Input(reporter))
		if err != nil {
			ui.Warning("Skipping %q: %v", e.Title, cliError(err))
			skipped++
			continue
		}
		ui.VerboseLog("Created %s: %s", b.ID, b.Title)
		created++
	}

	ui.Success("Imported %d bugs", created)
	if skipped > 0 {
		ui.Warning("%d skipped", skipped)
	}
	return nil
}

// parseMarkdownBugs does a simple parse of markdown to extract numbered/bulleted items.
// Top-level items become bugs; indented items under one become its steps.
// A "## Heading" becomes a tag on the bugs beneath it.
func parseMarkdownBugs(content string) []llm.ExtractedBug {
	var found []llm.ExtractedBug
	section := ""

	for _, raw := range strings.Split(content, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		indented := strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "## ") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			continue
		}

		item, ok := listItemText(line)
		if !ok {
			continue
		}
		if indented {
			if n := len(found); n > 0 {
				found[n-1].StepsToReproduce = append(found[n-1].StepsToReproduce, item)
			}
			continue
		}

		title, desc := item, item
		if head, rest, ok := strings.Cut(item, ": "); ok && strings.TrimSpace(rest) != "" {
			title, desc = strings.TrimSpace(head), strings.TrimSpace(rest)
		}
		var tags []string
		if section != "" {
			tags = append(tags, section)
		}
		for _, tag := range classifyBugTags(item) {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
		found = append(found, llm.ExtractedBug{
			Title:       output.Truncate(title, 100),
			Description: output.Truncate(desc, 1000),
			Priority:    classifyBugPriority(item),
			Tags:        tags,
		})
	}
	return found
}

// listItemText returns the text of a "1. text", "1) text", "- text" or "* text" line.
func listItemText(line string) (string, bool) {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		text := strings.TrimSpace(line[2:])
		return text, text != ""
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 || i >= len(line) || (line[i] != '.' && line[i] != ')') {
		return "", false
	}
	text := strings.TrimSpace(line[i+1:])
	return text, text != ""
}
