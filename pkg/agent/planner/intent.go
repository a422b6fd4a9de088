package planner

import (
	"regexp"
	"strings"

	"github.com/entrhq/surf/pkg/types"
)

// Intent names produced by classification.
const (
	IntentSearch           = "search"
	IntentJobSearch        = "job_search"
	IntentNavigation       = "navigation"
	IntentJobFiltering     = "job_filtering"
	IntentInteraction      = "interaction"
	IntentAnalysis         = "analysis"
	IntentCareerNavigation = "career_navigation"
	IntentContextAnalysis  = "context_analysis"
	IntentWebExplore       = "web_explore"
	IntentUnknown          = "unknown"
)

var (
	unitSeparators = regexp.MustCompile(`(?i)[,;]\s*(?:then\s+)?|\s+then\s+`)

	// "and" splits a unit only when a navigation/search verb follows,
	// so "search X and Y" stays whole while "go to Y and click Z"
	// splits cleanly.
	andNavVerb = regexp.MustCompile(`(?i)\s+and\s+((?:go|navigate|find|search|filter|click)\b)`)

	searchRe      = regexp.MustCompile(`(?i)\b(search|find)\s+\w+`)
	navExcludeRe  = regexp.MustCompile(`(?i)go to|navigate`)
	navigationRe  = regexp.MustCompile(`(?i)\b(go to|navigate to|visit)\s+\w+`)
	jobFilterRe   = regexp.MustCompile(`(?i)\b(find|search for).*\b(job|position|role)\b.*\b(location|in|at)\b`)
	interactionRe = regexp.MustCompile(`(?i)\b(click|select|choose|play)\b`)
	analysisRe    = regexp.MustCompile(`(?i)\b(read|check|analyze|view)\b`)
	careerNavRe   = regexp.MustCompile(`(?i)\b(career|job)\s+(page|section)\b`)
)

// splitObjective breaks an objective into actionable units: commas,
// semicolons, "then", and "and" followed by a navigation verb are
// separators. Units of three characters or fewer are dropped; when
// nothing survives the whole objective is one unit.
func splitObjective(objective string) []string {
	var units []string
	for _, part := range unitSeparators.Split(objective, -1) {
		units = append(units, splitOnNavAnd(part)...)
	}

	kept := units[:0]
	for _, u := range units {
		u = strings.TrimSpace(u)
		if len(u) > 3 {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		return []string{objective}
	}
	return kept
}

// splitOnNavAnd splits on " and <verb>" boundaries, keeping the verb
// with the trailing fragment. RE2 has no lookahead, so the boundary is
// reconstructed from the submatch position.
func splitOnNavAnd(s string) []string {
	var out []string
	for {
		loc := andNavVerb.FindStringSubmatchIndex(s)
		if loc == nil {
			out = append(out, s)
			return out
		}
		out = append(out, s[:loc[0]])
		s = s[loc[2]:]
	}
}

// classification is the outcome of intent analysis for one unit.
type classification struct {
	intent     string
	confidence float64
}

// classifyIntent applies the ordered intent rules to one actionable
// unit. First match wins. Job-site context shades plain searches into
// job searches with higher confidence.
func classifyIntent(text string, webCtx *types.WebContext) classification {
	if strings.TrimSpace(text) == "" {
		return classification{intent: IntentUnknown}
	}

	onJobSite := false
	if webCtx != nil {
		onJobSite = strings.Contains(strings.ToLower(webCtx.URL), "career") ||
			strings.Contains(strings.ToLower(webCtx.Title), "job")
	}

	switch {
	case searchRe.MatchString(text) && !navExcludeRe.MatchString(text):
		if onJobSite {
			return classification{intent: IntentJobSearch, confidence: 0.95}
		}
		return classification{intent: IntentSearch, confidence: 0.9}
	case navigationRe.MatchString(text):
		return classification{intent: IntentNavigation, confidence: 0.9}
	case jobFilterRe.MatchString(text):
		return classification{intent: IntentJobFiltering, confidence: 0.9}
	case interactionRe.MatchString(text):
		return classification{intent: IntentInteraction, confidence: 0.7}
	case analysisRe.MatchString(text):
		return classification{intent: IntentAnalysis, confidence: 0.6}
	case careerNavRe.MatchString(text):
		return classification{intent: IntentCareerNavigation, confidence: 0.85}
	}
	return classification{intent: IntentUnknown}
}

// webAwareIntents are intents that benefit from page context.
var webAwareIntents = map[string]bool{
	IntentJobSearch:        true,
	IntentJobFiltering:     true,
	IntentCareerNavigation: true,
	IntentNavigation:       true,
	IntentSearch:           true,
	IntentInteraction:      true,
}

func isWebAware(intent string) bool {
	return webAwareIntents[intent]
}
