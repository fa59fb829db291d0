package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/bugboard/internal/models"
)

// ExtractedBug holds a single bug report extracted from markdown content.
type ExtractedBug struct {
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Priority         string             `json:"priority"`
	StepsToReproduce []string           `json:"stepsToReproduce"`
	ExpectedBehavior string             `json:"expectedBehavior"`
	ActualBehavior   string             `json:"actualBehavior"`
	Environment      models.Environment `json:"environment"`
	Tags             []string           `json:"tags"`
}

// Input converts the extraction into a create payload reported by reporter.
// Unknown priorities fall back to the default.
func (e ExtractedBug) Input(reporter string) models.BugInput {
	in := models.BugInput{
		Title:            &e.Title,
		Description:      &e.Description,
		Reporter:         &reporter,
		StepsToReproduce: models.CompactSteps(e.StepsToReproduce),
		Tags:             e.Tags,
	}
	if p := models.BugPriority(strings.ToLower(strings.TrimSpace(e.Priority))); p.Valid() {
		in.Priority = &p
	}
	if e.ExpectedBehavior != "" {
		in.ExpectedBehavior = &e.ExpectedBehavior
	}
	if e.ActualBehavior != "" {
		in.ActualBehavior = &e.ActualBehavior
	}
	if e.Environment != (models.Environment{}) {
		env := e.Environment
		in.Environment = &env
	}
	return in
}

// Client wraps the Anthropic API for bug extraction.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for bug extraction.
func buildPrompt(content string) (system string, user string) {
	system = `You extract structured bug reports from markdown notes. Return ONLY a JSON array of objects with these fields:
- "title": concise bug title, at most 100 characters
- "description": what is wrong, at most 1000 characters
- "priority": one of "low", "medium", "high", "critical"
- "stepsToReproduce": array of short reproduction steps in order (empty array if none are given)
- "expectedBehavior": what should happen (empty string if unknown)
- "actualBehavior": what happens instead (empty string if unknown)
- "environment": object with optional "os", "browser" and "device" strings
- "tags": array of short lowercase labels

Rules:
- Each numbered/bulleted problem is one bug
- Default priority to "medium" unless the text signals data loss, crashes or security (use "high" or "critical") or cosmetics (use "low")
- Only describe problems; skip feature requests, chores and praise
- If the notes contain no bugs, return an empty array
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Extract bug reports from this markdown:\n\n")
	sb.WriteString(content)
	user = sb.String()
	return
}

// ExtractBugs sends markdown content to the LLM and returns structured bugs.
func (c *Client) ExtractBugs(ctx context.Context, content string) ([]ExtractedBug, error) {
	systemPrompt, userPrompt := buildPrompt(content)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return parseBugs(text)
}

// parseBugs decodes a model reply, tolerating markdown fencing.
func parseBugs(text string) ([]ExtractedBug, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var found []ExtractedBug
	if err := json.Unmarshal([]byte(text), &found); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return found, nil
}
