// Package agent orchestrates goal-driven browser automation: it plans
// goals from user messages, injects relevant memories into the
// conversation, drives tool-calling rounds against the model, and
// tracks goal progress from the tools that actually ran.
package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/surf/pkg/agent/memory"
	"github.com/entrhq/surf/pkg/agent/planner"
	"github.com/entrhq/surf/pkg/llm"
	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/queue"
	"github.com/entrhq/surf/pkg/types"
)

const (
	// DefaultMaxAutonomousActions bounds how many rounds the agent
	// takes on its own before handing control back.
	DefaultMaxAutonomousActions = 10

	// DefaultMemoryTokenBudget caps the injected memory context.
	DefaultMemoryTokenBudget = 2000

	memoryEncoding = "cl100k_base"

	// toolTaskType is the queue task type tool executions run under.
	toolTaskType = "tool"
)

// ContextProvider supplies the current page context for planning and
// memory injection. The browser session's Snapshot method satisfies it.
type ContextProvider func(ctx context.Context) (*types.WebContext, error)

// ProgressFunc receives human-readable progress updates.
type ProgressFunc func(message string)

// Response is the outcome of one RunAgentic call.
type Response struct {
	Success        bool
	Message        string
	ToolCalls      []llm.ToolCall
	ToolResults    []llm.ToolResult
	Finished       bool
	CurrentGoal    *types.Goal
	AutonomousMode bool
	NextAction     string
}

// Agent coordinates the planner, memory system, and model rounds.
type Agent struct {
	mu sync.Mutex

	runner    llm.RoundRunner
	planner   *planner.Planner
	memory    *memory.System
	taskQueue *queue.Queue

	tools    []llm.ToolSpec
	handlers map[string]llm.Handler

	pageContext ContextProvider
	onProgress  ProgressFunc

	currentGoal          *types.Goal
	autonomous           bool
	maxAutonomousActions int
	actionCount          int
	memoryTokenBudget    int

	encoder *tiktoken.Tiktoken
	log     *logging.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithPlanner replaces the default planner.
func WithPlanner(p *planner.Planner) Option {
	return func(a *Agent) { a.planner = p }
}

// WithMemory replaces the default memory system.
func WithMemory(m *memory.System) Option {
	return func(a *Agent) { a.memory = m }
}

// WithQueue routes tool execution through a task queue, bounding
// concurrency and timeouts on the browser actions the model requests.
func WithQueue(q *queue.Queue) Option {
	return func(a *Agent) { a.taskQueue = q }
}

// WithTools sets the tool specs and handlers advertised to the model.
func WithTools(specs []llm.ToolSpec, handlers map[string]llm.Handler) Option {
	return func(a *Agent) {
		a.tools = specs
		a.handlers = handlers
	}
}

// WithAutonomousMode enables multi-round autonomous execution.
func WithAutonomousMode(enabled bool) Option {
	return func(a *Agent) { a.autonomous = enabled }
}

// WithMaxAutonomousActions bounds autonomous rounds per goal.
func WithMaxAutonomousActions(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxAutonomousActions = n
		}
	}
}

// WithMemoryTokenBudget caps the injected memory context size.
func WithMemoryTokenBudget(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.memoryTokenBudget = n
		}
	}
}

// WithContextProvider supplies page context for planning.
func WithContextProvider(p ContextProvider) Option {
	return func(a *Agent) { a.pageContext = p }
}

// WithProgressFunc registers a progress callback.
func WithProgressFunc(f ProgressFunc) Option {
	return func(a *Agent) { a.onProgress = f }
}

// New creates an agent around a round runner. Without options it gets
// a fresh planner keyed to no tools and an empty in-process memory.
func New(runner llm.RoundRunner, opts ...Option) *Agent {
	log, _ := logging.NewLogger("agent")
	a := &Agent{
		runner:               runner,
		memory:               memory.NewSystem(),
		maxAutonomousActions: DefaultMaxAutonomousActions,
		memoryTokenBudget:    DefaultMemoryTokenBudget,
		log:                  log,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.planner == nil {
		a.planner = planner.New(toolNames(a.tools))
	}
	if a.taskQueue != nil {
		a.taskQueue.RegisterHandler(toolTaskType, a.runToolTask)
	}
	return a
}

func toolNames(specs []llm.ToolSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

// roundHandlers returns the handlers the model rounds execute. With a
// queue attached, every tool call runs as a queued task and picks up
// the queue's timeout, concurrency bound, and cancellation.
func (a *Agent) roundHandlers() map[string]llm.Handler {
	if a.taskQueue == nil {
		return a.handlers
	}
	wrapped := make(map[string]llm.Handler, len(a.handlers))
	for name := range a.handlers {
		wrapped[name] = func(ctx context.Context, args map[string]interface{}) (string, error) {
			return a.enqueueToolCall(ctx, name, args)
		}
	}
	return wrapped
}

// enqueueToolCall submits one tool execution to the queue and waits
// for it to settle.
func (a *Agent) enqueueToolCall(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	id, err := a.taskQueue.Enqueue(&queue.Task{
		Type:     toolTaskType,
		Priority: queue.PriorityHigh,
		Payload:  map[string]interface{}{"tool": name, "args": args},
		OnComplete: func(result interface{}) {
			s, _ := result.(string)
			done <- outcome{result: s}
		},
		OnError: func(err error) {
			done <- outcome{err: err}
		},
	})
	if err != nil {
		return "", err
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		_ = a.taskQueue.Cancel(id)
		return "", ctx.Err()
	}
}

// runToolTask is the queue handler behind enqueueToolCall: it resolves
// the named tool handler and runs it with the queued arguments.
func (a *Agent) runToolTask(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	name, _ := payload["tool"].(string)
	handler, ok := a.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool %q", name)
	}
	args, _ := payload["args"].(map[string]interface{})
	return handler(ctx, args)
}

// RunAgentic processes the conversation history: establishes a goal
// from the latest user message, injects memories, and runs model
// rounds until the model finishes or the autonomous budget runs out.
func (a *Agent) RunAgentic(ctx context.Context, history []*types.Message) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	userMsg := types.LastUserMessage(history)
	if userMsg == nil {
		return nil, fmt.Errorf("conversation has no user message")
	}

	webCtx := a.snapshotContext(ctx)

	if a.currentGoal == nil {
		goal, err := a.planner.CreateGoal(ctx, userMsg.Content, webCtx)
		if err != nil {
			return nil, fmt.Errorf("goal creation failed: %w", err)
		}
		a.currentGoal = goal
		a.actionCount = 0
		a.planner.AdaptPlanningToWebContext(webCtx)
		a.progress(fmt.Sprintf("Goal created: %s (%d tasks)", goal.Objective, len(goal.SubTasks)))
	}

	working := a.withMemoryContext(history, userMsg.Content, webCtx)

	var result *llm.RoundResult
	for {
		var err error
		result, err = a.runner.RunRound(ctx, working, llm.RoundOptions{
			Tools:    a.tools,
			Handlers: a.roundHandlers(),
		})
		if err != nil {
			a.log.Errorf("round failed: %v", err)
			return &Response{
				Success:        false,
				Message:        fmt.Sprintf("model round failed: %v", err),
				CurrentGoal:    a.currentGoal,
				AutonomousMode: a.autonomous,
			}, err
		}

		a.learnFromExecution(result, webCtx)
		a.updateGoalProgress(result)

		if !a.shouldContinueAutonomously(result) {
			break
		}

		a.actionCount++
		next := a.nextActionHint()
		a.progress(fmt.Sprintf("Continuing autonomously (%d/%d): %s", a.actionCount, a.maxAutonomousActions, next))
		working = append(working,
			types.NewAssistantMessage(result.Message),
			types.NewUserMessage(fmt.Sprintf("Continue working toward the goal: %s. Next: %s", a.currentGoal.Objective, next)),
		)
	}

	return &Response{
		Success:        true,
		Message:        result.Message,
		ToolCalls:      result.ToolCalls,
		ToolResults:    result.ToolResults,
		Finished:       result.Finished,
		CurrentGoal:    a.currentGoal,
		AutonomousMode: a.autonomous,
		NextAction:     a.nextActionHint(),
	}, nil
}

// snapshotContext fetches page context, tolerating failure: planning
// works without a page, just less specifically.
func (a *Agent) snapshotContext(ctx context.Context) *types.WebContext {
	if a.pageContext == nil {
		return nil
	}
	webCtx, err := a.pageContext(ctx)
	if err != nil {
		a.log.Warnf("page context unavailable: %v", err)
		return nil
	}
	return webCtx
}

// withMemoryContext prepends a synthetic system message carrying the
// memories relevant to the query, trimmed to the token budget.
func (a *Agent) withMemoryContext(history []*types.Message, query string, webCtx *types.WebContext) []*types.Message {
	var lines []string
	for _, rec := range a.memory.GetRelevantMemories(query, 5) {
		lines = append(lines, fmt.Sprintf("- [%s] %s", rec.Type, rec.Content))
	}
	if webCtx != nil && webCtx.URL != "" {
		if host := hostOf(webCtx.URL); host != "" {
			for _, act := range a.memory.GetSuccessfulActionsForDomain(host, "") {
				lines = append(lines, fmt.Sprintf("- [site] %s worked on %s: %s", act.Action, host, act.Context))
			}
		}
	}
	if len(lines) == 0 {
		return history
	}

	budget := a.memoryTokenBudget
	var kept []string
	for _, line := range lines {
		cost := a.countTokens(line)
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return history
	}

	memMsg := types.NewSystemMessage("Relevant context from previous sessions:\n" + strings.Join(kept, "\n"))
	return append([]*types.Message{memMsg}, history...)
}

// countTokens measures a line with the model tokenizer, falling back
// to a bytes/4 estimate if the encoding is unavailable.
func (a *Agent) countTokens(s string) int {
	if a.encoder == nil {
		enc, err := tiktoken.GetEncoding(memoryEncoding)
		if err != nil {
			return len(s)/4 + 1
		}
		a.encoder = enc
	}
	return len(a.encoder.Encode(s, nil, nil))
}

// learnFromExecution records each executed tool call into memory, both
// the general tier and the per-domain tier when page context exists.
func (a *Agent) learnFromExecution(result *llm.RoundResult, webCtx *types.WebContext) {
	objective := ""
	if a.currentGoal != nil {
		objective = a.currentGoal.Objective
	}
	host := ""
	if webCtx != nil {
		host = hostOf(webCtx.URL)
	}

	for _, tr := range result.ToolResults {
		if tr.Failed() {
			a.memory.LearnFromFailure(tr.Name, objective, tr.Error)
			if host != "" {
				a.memory.AddWebContextMemory(host, tr.Name, objective, false, tr.Error)
			}
			continue
		}
		a.memory.LearnFromSuccess(tr.Name, objective, tr.Result)
		if host != "" {
			a.memory.AddWebContextMemory(host, tr.Name, objective, true, "")
		}
	}
}

// updateGoalProgress advances subtasks from the tools that ran: each
// executed tool call settles the first open task that uses that tool,
// completed on success and failed on the first tool error. Retry
// budgets on a task apply to queue dispatch, not to model rounds.
func (a *Agent) updateGoalProgress(result *llm.RoundResult) {
	goal := a.currentGoal
	if goal == nil {
		return
	}

	for _, tr := range result.ToolResults {
		task := firstOpenTaskUsing(goal, tr.Name)
		if task == nil {
			continue
		}
		if tr.Failed() {
			task.Status = types.TaskFailed
			task.Error = tr.Error
			a.planner.UpdateTaskStatus(task, types.TaskFailed, "", tr.Error)
			a.progress(fmt.Sprintf("Task failed: %s", task.Description))
			continue
		}
		task.Status = types.TaskCompleted
		task.Result = tr.Result
		a.planner.UpdateTaskStatus(task, types.TaskCompleted, tr.Result, "")
		a.progress(fmt.Sprintf("Task completed: %s", task.Description))
	}

	goal.Progress = a.planner.CalculateProgress(goal)

	if goal.Progress >= 100 && goal.Status != types.GoalCompleted {
		goal.Status = types.GoalCompleted
		now := time.Now()
		goal.CompletedAt = &now
		a.progress(fmt.Sprintf("Goal completed: %s", goal.Objective))
		return
	}

	if a.goalFailed(goal) && goal.Status != types.GoalFailed {
		goal.Status = types.GoalFailed
		a.progress(fmt.Sprintf("Goal failed: %s", goal.Objective))
	}
}

// goalFailed is the terminal failure policy: every subtask settled
// with at least one failure, or the autonomous budget ran out with
// nothing left to dispatch.
func (a *Agent) goalFailed(goal *types.Goal) bool {
	if goal.Progress >= 100 {
		return false
	}

	anyFailed := false
	allTerminal := len(goal.SubTasks) > 0
	for _, t := range goal.SubTasks {
		if t.Status == types.TaskFailed {
			anyFailed = true
		}
		if !t.Status.Terminal() {
			allTerminal = false
		}
	}
	if allTerminal && anyFailed {
		return true
	}

	return a.actionCount >= a.maxAutonomousActions && goal.PendingTask() == nil
}

func firstOpenTaskUsing(goal *types.Goal, toolName string) *types.Task {
	for _, t := range goal.SubTasks {
		if t.Status.Terminal() {
			continue
		}
		if t.UsesTool(toolName) {
			return t
		}
	}
	return nil
}

// shouldContinueAutonomously decides whether to take another round
// without user input: autonomous mode on, budget left, the goal still
// executing, and either an open task remains or the last round signals
// more work, through tool calls or the message wording.
func (a *Agent) shouldContinueAutonomously(result *llm.RoundResult) bool {
	if !a.autonomous || a.currentGoal == nil {
		return false
	}
	if a.actionCount >= a.maxAutonomousActions {
		a.progress("Autonomous action budget exhausted")
		return false
	}
	if a.currentGoal.Status != types.GoalExecuting {
		return false
	}

	msg := strings.ToLower(result.Message)
	needsMoreActions := len(result.ToolCalls) > 0 ||
		strings.Contains(msg, "next") ||
		strings.Contains(msg, "continue")

	return a.currentGoal.HasOpenTasks() || needsMoreActions
}

// nextActionHint describes the next pending task, falling back to a
// progress-review prompt while the goal remains unfinished.
func (a *Agent) nextActionHint() string {
	if a.currentGoal == nil {
		return ""
	}
	if task := a.currentGoal.PendingTask(); task != nil {
		return task.Description
	}
	if a.currentGoal.Progress < 100 {
		return fmt.Sprintf("Analyze progress and determine next steps for: %s", a.currentGoal.Objective)
	}
	return ""
}

func (a *Agent) progress(msg string) {
	a.log.Infof("%s", msg)
	if a.onProgress != nil {
		a.onProgress(msg)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return memory.NormalizeDomain(u.Hostname())
}

// SetAutonomousMode toggles autonomous continuation.
func (a *Agent) SetAutonomousMode(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autonomous = enabled
}

// CurrentGoal returns the active goal, or nil.
func (a *Agent) CurrentGoal() *types.Goal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentGoal
}

// SetCurrentGoal replaces the active goal and resets the action count.
func (a *Agent) SetCurrentGoal(goal *types.Goal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentGoal = goal
	a.actionCount = 0
}

// ClearCurrentGoal drops the active goal.
func (a *Agent) ClearCurrentGoal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentGoal = nil
	a.actionCount = 0
}

// Memory exposes the agent's memory system.
func (a *Agent) Memory() *memory.System {
	return a.memory
}

// Planner exposes the agent's planner.
func (a *Agent) Planner() *planner.Planner {
	return a.planner
}

// Queue exposes the attached task queue, or nil.
func (a *Agent) Queue() *queue.Queue {
	return a.taskQueue
}
