package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/seed"
)

var (
	seedFile  string
	seedReset bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample bugs into the store",
	Long: `Load sample bug reports into the configured store.

Without --file the built-in sample set is used. A seed file is a YAML list
of bugs using the API field names (title, description, reporter, status,
priority, stepsToReproduce, environment, tags, ...). Every entry is
validated like an API request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return seedRun()
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file of bugs to load instead of the samples")
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "Delete every existing bug first")
	rootCmd.AddCommand(seedCmd)
}

func seedRun() error {
	inputs, err := seedInputs()
	if err != nil {
		return err
	}

	if dryRun {
		if seedReset {
			ui.DryRunMsg("Would delete all existing bugs")
		}
		ui.DryRunMsg("Would add %d bugs", len(inputs))
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := cmdContext()

	if seedReset {
		removed, err := seed.Reset(ctx, svc)
		if err != nil {
			return err
		}
		ui.Info("Cleared %d existing bugs", removed)
	}

	created, err := seed.Load(ctx, svc, inputs)
	if err != nil {
		ui.Warning("Added %d bugs before failing", len(created))
		return cliError(err)
	}
	ui.Success("Added %d sample bugs", len(created))
	return nil
}

func seedInputs() ([]models.BugInput, error) {
	if seedFile == "" {
		return seed.Samples()
	}
	data, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return seed.Parse(data)
}
