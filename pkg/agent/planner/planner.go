// Package planner converts natural-language objectives into goals with
// ordered, tool-annotated subtasks. Classification is rule-based:
// ordered intent regexes, vocabulary-first entity extraction, and a
// static intent-to-tool map filtered by the tools actually available.
// A process-lifetime success-pattern counter nudges confidence up for
// combinations that worked before; the durable cross-session tier
// lives in the memory package.
package planner

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/types"
)

// Planner creates and scores goal plans.
type Planner struct {
	mu              sync.Mutex
	available       []string
	vocab           *VocabTable
	successPatterns map[string]int
	log             *logging.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithVocab replaces the default domain vocabulary table.
func WithVocab(table *VocabTable) Option {
	return func(p *Planner) {
		p.vocab = table
	}
}

// New creates a planner limited to the given available tool names.
func New(availableTools []string, opts ...Option) *Planner {
	log, _ := logging.NewLogger("planner")
	p := &Planner{
		available:       availableTools,
		vocab:           NewVocabTable(),
		successPatterns: make(map[string]int),
		log:             log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// action is one analyzed unit of the objective before task assembly.
type action struct {
	intent      string
	description string
	tools       []string
	entities    []string
	confidence  float64
	webAware    bool
}

// CreateGoal decomposes an objective into a goal with ordered
// subtasks. The context parameter is accepted for future I/O (memory
// lookups, page probing); planning itself is synchronous today.
func (p *Planner) CreateGoal(ctx context.Context, objective string, webCtx *types.WebContext) (*types.Goal, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, fmt.Errorf("objective cannot be empty")
	}

	goal := &types.Goal{
		ID:        uuid.New().String(),
		Objective: objective,
		Priority:  determinePriority(objective),
		Status:    types.GoalPlanning,
		CreatedAt: time.Now(),
		Context:   webCtx,
	}

	for _, act := range p.analyzeObjective(objective, webCtx) {
		goal.SubTasks = append(goal.SubTasks, p.buildTask(goal.ID, act))
	}

	// Page context gets analyzed before anything else runs.
	if webCtx != nil && webCtx.URL != "" {
		goal.SubTasks = append([]*types.Task{p.contextAnalysisTask(goal.ID, webCtx)}, goal.SubTasks...)
	}

	goal.Status = types.GoalExecuting
	p.log.Debugf("created goal %s priority=%s tasks=%d", goal.ID, goal.Priority, len(goal.SubTasks))
	return goal, nil
}

// determinePriority scans the objective for urgency keywords. The
// rules are checked in order; first match wins.
func determinePriority(objective string) types.GoalPriority {
	lower := strings.ToLower(objective)

	for _, kw := range []string{"urgent", "asap", "immediately", "critical", "emergency"} {
		if strings.Contains(lower, kw) {
			return types.PriorityCritical
		}
	}
	for _, kw := range []string{"important", "priority", "deadline", "meeting"} {
		if strings.Contains(lower, kw) {
			return types.PriorityHigh
		}
	}
	if strings.Contains(lower, "later") || strings.Contains(lower, "when possible") {
		return types.PriorityLow
	}
	return types.PriorityMedium
}

// analyzeObjective splits the objective into actionable units,
// classifies each, and layers on the web-context heuristics.
func (p *Planner) analyzeObjective(objective string, webCtx *types.WebContext) []action {
	var actions []action

	for _, unit := range splitObjective(objective) {
		cls := classifyIntent(unit, webCtx)
		if cls.intent == IntentUnknown {
			continue
		}

		entities := extractEntities(unit)
		confidence := p.boostConfidence(cls.intent, entities, cls.confidence)

		actions = append(actions, action{
			intent:      cls.intent,
			description: describeAction(cls.intent, entities),
			tools:       p.selectTools(cls.intent, entities, webCtx != nil && webCtx.URL != ""),
			entities:    entities,
			confidence:  confidence,
			webAware:    isWebAware(cls.intent),
		})
	}

	// Nothing classified: degrade to a single exploratory action
	// rather than failing the plan.
	if len(actions) == 0 {
		actions = append(actions, p.exploratoryAction(objective, webCtx))
	}

	if webCtx != nil && webCtx.URL != "" {
		actions = append(actions, p.webSpecificActions(objective, webCtx)...)
	}

	return actions
}

// boostConfidence applies the process-lifetime success-pattern bonus:
// +0.1, capped at 1.0, when this intent+entities combination has
// completed successfully before.
func (p *Planner) boostConfidence(intent string, entities []string, confidence float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.successPatterns[patternKey(intent, entities)] > 0 {
		confidence = math.Min(1.0, confidence+0.1)
	}
	return confidence
}

func patternKey(intent string, entities []string) string {
	return intent + "_" + strings.Join(entities, "_")
}

// exploratoryAction is the graceful-degradation fallback when no unit
// classified: explore the current page, or the objective itself.
func (p *Planner) exploratoryAction(objective string, webCtx *types.WebContext) action {
	if webCtx != nil && webCtx.URL != "" {
		label := webCtx.Title
		if label == "" {
			label = webCtx.URL
		}
		return action{
			intent:      IntentWebExplore,
			description: fmt.Sprintf("Explore current page (%s) to understand: %s", label, objective),
			tools:       p.filterAvailable([]string{"getPageContent", "getCurrentTab"}),
			entities:    []string{objective},
			confidence:  0.7,
			webAware:    true,
		}
	}
	return action{
		intent:      IntentWebExplore,
		description: fmt.Sprintf("Analyze and understand the objective: %s", objective),
		tools:       p.filterAvailable([]string{"getCurrentTab", "getPageContent", "searchGoogle"}),
		entities:    []string{objective},
		confidence:  0.7,
		webAware:    true,
	}
}

// webSpecificActions generates heuristic tasks from the page context:
// steer toward a careers section, filter by location, filter by role.
// These are appended to (not deduplicated against) the generic plan.
func (p *Planner) webSpecificActions(objective string, webCtx *types.WebContext) []action {
	var actions []action
	lowerObj := strings.ToLower(objective)
	lowerURL := strings.ToLower(webCtx.URL)
	lowerTitle := strings.ToLower(webCtx.Title)

	if !strings.Contains(lowerObj, "job") && !strings.Contains(lowerObj, "career") {
		return nil
	}

	if !strings.Contains(lowerURL, "career") && !strings.Contains(lowerTitle, "job") {
		actions = append(actions, action{
			intent:      IntentCareerNavigation,
			description: "Navigate to careers/jobs section",
			tools:       p.filterAvailable([]string{"clickElement", "getPageContent"}),
			entities:    p.vocab.Keywords("job_search"),
			confidence:  0.8,
			webAware:    true,
		})
	}

	if strings.Contains(lowerObj, "india") || strings.Contains(lowerObj, "location") {
		actions = append(actions, action{
			intent:      IntentJobFiltering,
			description: "Filter jobs by India location",
			tools:       p.filterAvailable([]string{"fillInput", "clickElement", "waitForElement"}),
			entities:    []string{"India", "location"},
			confidence:  0.85,
			webAware:    true,
		})
	}

	if strings.Contains(lowerObj, "software") || strings.Contains(lowerObj, "engineer") {
		actions = append(actions, action{
			intent:      IntentJobFiltering,
			description: "Filter for software engineer positions",
			tools:       p.filterAvailable([]string{"fillInput", "clickElement", "waitForElement"}),
			entities:    []string{"software engineer", "developer"},
			confidence:  0.9,
			webAware:    true,
		})
	}

	return actions
}

func (p *Planner) filterAvailable(tools []string) []string {
	filtered := make([]string, 0, len(tools))
	for _, t := range tools {
		if p.hasTool(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// buildTask assembles a pending task from an analyzed action.
// Higher-confidence plans get fewer retries.
func (p *Planner) buildTask(goalID string, act action) *types.Task {
	maxRetries := 3
	if act.confidence > 0.8 {
		maxRetries = 2
	}

	return &types.Task{
		ID:          uuid.New().String(),
		GoalID:      goalID,
		Description: act.description,
		Status:      types.TaskPending,
		ToolCalls:   act.tools,
		MaxRetries:  maxRetries,
		Metadata: types.TaskMetadata{
			Intent:     act.intent,
			Entities:   act.entities,
			Confidence: act.confidence,
			WebAware:   act.webAware,
		},
	}
}

// contextAnalysisTask builds the page-analysis task that runs ahead of
// all generated tasks when a web context is present.
func (p *Planner) contextAnalysisTask(goalID string, webCtx *types.WebContext) *types.Task {
	label := webCtx.Title
	if label == "" {
		label = webCtx.URL
	}
	return &types.Task{
		ID:          uuid.New().String(),
		GoalID:      goalID,
		Description: fmt.Sprintf("Analyze current page context: %s", label),
		Status:      types.TaskPending,
		ToolCalls:   []string{"getPageContent", "getCurrentTab"},
		MaxRetries:  2,
		Metadata: types.TaskMetadata{
			Intent:     IntentContextAnalysis,
			Confidence: 0.9,
			WebAware:   true,
		},
	}
}

// CalculateProgress derives goal progress from subtask completion:
// round(100 × completed / total), 0 when there are no subtasks.
func (p *Planner) CalculateProgress(goal *types.Goal) int {
	if len(goal.SubTasks) == 0 {
		return 0
	}
	completed := 0
	for _, t := range goal.SubTasks {
		if t.Status == types.TaskCompleted {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(goal.SubTasks)) * 100))
}

// UpdateTaskStatus records a task outcome into the success-pattern
// counter for future confidence boosting. It does not mutate the task;
// status transitions belong to the orchestrator.
func (p *Planner) UpdateTaskStatus(task *types.Task, status types.TaskStatus, result, errMsg string) {
	p.log.Debugf("task %s updated to %s", task.ID, status)

	p.mu.Lock()
	defer p.mu.Unlock()

	if status == types.TaskCompleted && task.Metadata.Intent != "" {
		p.successPatterns[patternKey(task.Metadata.Intent, task.Metadata.Entities)]++
	}
	if status == types.TaskFailed && errMsg != "" {
		p.log.Debugf("learning from failure: %s", errMsg)
	}
}

// AdaptPlanningToWebContext teaches the vocabulary table about the
// current site. Learning is additive and keyed by hostname.
func (p *Planner) AdaptPlanningToWebContext(webCtx *types.WebContext) {
	if webCtx == nil || webCtx.URL == "" || webCtx.Title == "" {
		return
	}

	u, err := url.Parse(webCtx.URL)
	if err != nil || u.Hostname() == "" {
		return
	}

	host := u.Hostname()
	if matched := p.vocab.MatchHost(host); len(matched) > 0 {
		for _, entry := range matched {
			p.log.Debugf("adapted planning to %s via vocabulary %s", host, entry.Name)
		}
		return
	}

	// Unknown site: learn a vocabulary entry from the page title so
	// entity extraction picks up its terms on later visits.
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(webCtx.Title)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 3 && !plannerStopWords[word] {
			keywords = append(keywords, word)
		}
	}
	if len(keywords) == 0 {
		return
	}
	if err := p.vocab.Learn(host, "*"+host, keywords); err != nil {
		p.log.Debugf("vocabulary learn for %s failed: %v", host, err)
		return
	}
	p.log.Infof("learned vocabulary for %s (%d keywords)", host, len(keywords))
}

// Suggestion is one adaptive task suggestion for a known domain.
type Suggestion struct {
	Description string
	Confidence  float64
	Tools       []string
}

// GetAdaptiveTaskSuggestions returns domain-specific suggestions for
// the objective, highest confidence first. Suggestions come from the
// vocabulary table's per-domain rules.
func (p *Planner) GetAdaptiveTaskSuggestions(objective string, webCtx *types.WebContext) []Suggestion {
	if webCtx == nil || webCtx.URL == "" {
		return nil
	}

	u, err := url.Parse(webCtx.URL)
	if err != nil {
		return nil
	}

	lowerObj := strings.ToLower(objective)
	var suggestions []Suggestion
	for _, entry := range p.vocab.MatchHost(u.Hostname()) {
		for _, rule := range entry.Suggestions {
			if rule.matches(lowerObj) {
				suggestions = append(suggestions, Suggestion{
					Description: rule.Description,
					Confidence:  rule.Confidence,
					Tools:       rule.Tools,
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

// AvailableTools returns the tool names this planner plans against.
func (p *Planner) AvailableTools() []string {
	return p.available
}
