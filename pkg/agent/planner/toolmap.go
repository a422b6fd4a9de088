package planner

import (
	"fmt"
	"strings"
)

// intentTools maps an intent to its default tool set. Unknown intents
// fall back to a bare click.
var intentTools = map[string][]string{
	IntentNavigation:       {"navigateToUrl"},
	IntentSearch:           {"fillInput", "clickElement"},
	IntentJobSearch:        {"fillInput", "clickElement", "getPageContent"},
	IntentJobFiltering:     {"fillInput", "clickElement", "scrollToElement"},
	IntentCareerNavigation: {"clickElement", "getPageContent"},
	IntentInteraction:      {"clickElement"},
	IntentAnalysis:         {"getPageContent"},
	IntentWebExplore:       {"getCurrentTab", "getPageContent"},
}

// selectTools resolves the tool set for an action: the intent's
// default set, entity-driven additions, filtered down to the tools the
// planner was constructed with, plus opportunistic web helpers when
// page context is available.
func (p *Planner) selectTools(intent string, entities []string, hasWebContext bool) []string {
	tools, ok := intentTools[intent]
	if !ok {
		tools = []string{"clickElement"}
	}
	tools = append([]string(nil), tools...)

	for _, e := range entities {
		lower := strings.ToLower(e)
		if strings.Contains(lower, "scroll") {
			tools = append(tools, "scrollToElement")
		}
		if strings.Contains(lower, "form") {
			tools = append(tools, "fillInput")
		}
	}

	filtered := tools[:0]
	seen := make(map[string]bool)
	for _, t := range tools {
		if p.hasTool(t) && !seen[t] {
			filtered = append(filtered, t)
			seen[t] = true
		}
	}

	if hasWebContext {
		if intent == IntentSearch && p.hasTool("searchGoogle") && !seen["searchGoogle"] {
			filtered = append([]string{"searchGoogle"}, filtered...)
			seen["searchGoogle"] = true
		}
		if strings.Contains(intent, "job") && p.hasTool("waitForElement") && !seen["waitForElement"] {
			filtered = append(filtered, "waitForElement")
		}
	}

	return filtered
}

func (p *Planner) hasTool(name string) bool {
	for _, t := range p.available {
		if t == name {
			return true
		}
	}
	return false
}

// describeAction renders a human-readable task description from the
// classified intent and its entities.
func describeAction(intent string, entities []string) string {
	primary := "target"
	if len(entities) > 0 {
		primary = entities[0]
	}

	switch intent {
	case IntentNavigation:
		return fmt.Sprintf("Navigate to %s", primary)
	case IntentSearch, IntentJobSearch:
		return fmt.Sprintf("Search for %s", strings.Join(entities, " "))
	case IntentInteraction:
		return fmt.Sprintf("Interact with %s", primary)
	case IntentJobFiltering:
		return fmt.Sprintf("Filter by %s", strings.Join(entities, " and "))
	case IntentAnalysis:
		return fmt.Sprintf("Analyze %s", primary)
	default:
		return fmt.Sprintf("Execute action on %s", primary)
	}
}
