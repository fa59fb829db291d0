// Package seed loads sample bug reports into a bug service.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/bugboard/internal/bugs"
	"github.com/joescharf/bugboard/internal/models"
)

//go:embed sample_bugs.yaml
var sampleBugs []byte

// Samples returns the built-in sample bug set.
func Samples() ([]models.BugInput, error) {
	return Parse(sampleBugs)
}

// Parse decodes a YAML list of bug payloads.
func Parse(data []byte) ([]models.BugInput, error) {
	var inputs []models.BugInput
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range inputs {
		inputs[i].StepsToReproduce = models.CompactSteps(inputs[i].StepsToReproduce)
	}
	return inputs, nil
}

// Reset deletes every stored bug and returns how many were removed.
func Reset(ctx context.Context, svc *bugs.Service) (int, error) {
	removed := 0
	for {
		page, err := svc.List(ctx, nil, "1", "100")
		if err != nil {
			return removed, fmt.Errorf("list bugs: %w", err)
		}
		if len(page.Bugs) == 0 {
			return removed, nil
		}
		for _, b := range page.Bugs {
			if _, err := svc.Delete(ctx, b.ID); err != nil {
				return removed, fmt.Errorf("delete %s: %w", b.ID, err)
			}
			removed++
		}
	}
}

// Load creates every input through svc so each is validated like an API call.
// It stops at the first rejected input.
func Load(ctx context.Context, svc *bugs.Service, inputs []models.BugInput) ([]*models.Bug, error) {
	created := make([]*models.Bug, 0, len(inputs))
	for i, in := range inputs {
		b, err := svc.Create(ctx, in)
		if err != nil {
			return created, fmt.Errorf("seed bug %d: %w", i+1, err)
		}
		created = append(created, b)
	}
	return created, nil
}
