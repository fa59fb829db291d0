package cmd

import "strings"

// classifyBugPriority infers a priority from free text using keyword heuristics.
// Keywords are checked from most to least severe. Defaults to "medium".
func classifyBugPriority(text string) string {
	lower := strings.ToLower(text)

	tiers := []struct {
		priority string
		keywords []string
	}{
		{"critical", []string{"critical", "data loss", "security", "production down", "outage", "p0"}},
		{"high", []string{"crash", "urgent", "blocker", "broken", "cannot", "can't", "fails", "p1"}},
		{"low", []string{"minor", "nice to have", "cosmetic", "trivial", "typo", "low priority"}},
	}
	for _, tier := range tiers {
		for _, kw := range tier.keywords {
			if strings.Contains(lower, kw) {
				return tier.priority
			}
		}
	}
	return "medium"
}

// classifyBugTags picks area tags from free text.
func classifyBugTags(text string) []string {
	lower := strings.ToLower(text)

	areas := []struct {
		tag      string
		keywords []string
	}{
		{"mobile", []string{"mobile", "iphone", "android", "ios"}},
		{"ui", []string{"button", "layout", "css", "menu", "screen", "overlap"}},
		{"performance", []string{"slow", "latency", "timeout", "performance"}},
		{"auth", []string{"login", "logout", "password", "session", "auth"}},
		{"search", []string{"search"}},
	}
	var tags []string
	for _, area := range areas {
		for _, kw := range area.keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, area.tag)
				break
			}
		}
	}
	return tags
}
