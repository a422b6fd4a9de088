package types

import "time"

// GoalPriority ranks how urgently a goal should be pursued. It is
// derived from keyword heuristics on the objective text.
type GoalPriority string

const (
	PriorityLow      GoalPriority = "low"
	PriorityMedium   GoalPriority = "medium"
	PriorityHigh     GoalPriority = "high"
	PriorityCritical GoalPriority = "critical"
)

// GoalStatus tracks a goal through its lifecycle.
type GoalStatus string

const (
	GoalPlanning  GoalStatus = "planning"
	GoalExecuting GoalStatus = "executing"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalPaused    GoalStatus = "paused"
)

// TaskStatus tracks a planner task through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Goal is a user objective decomposed into an ordered list of tasks.
// Progress is derived from subtask completion and must never be set
// directly; the orchestrator recomputes it after every round.
type Goal struct {
	ID          string       `json:"id"`
	Objective   string       `json:"objective"`
	Priority    GoalPriority `json:"priority"`
	Status      GoalStatus   `json:"status"`
	SubTasks    []*Task      `json:"subTasks"`
	Progress    int          `json:"progress"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Context     *WebContext  `json:"context,omitempty"`
}

// PendingTask returns the first subtask still in the pending state, or
// nil when none remain. Insertion order is execution order.
func (g *Goal) PendingTask() *Task {
	for _, t := range g.SubTasks {
		if t.Status == TaskPending {
			return t
		}
	}
	return nil
}

// HasOpenTasks reports whether any subtask is pending or executing.
func (g *Goal) HasOpenTasks() bool {
	for _, t := range g.SubTasks {
		if t.Status == TaskPending || t.Status == TaskExecuting {
			return true
		}
	}
	return false
}

// Task is one planner-generated unit of work, bound to the set of tool
// names eligible to carry it out. Dependencies are advisory metadata;
// the planner populates them but dispatch does not enforce ordering
// beyond insertion order.
type Task struct {
	ID           string       `json:"id"`
	GoalID       string       `json:"goalId"`
	Description  string       `json:"description"`
	Status       TaskStatus   `json:"status"`
	ToolCalls    []string     `json:"toolCalls"`
	Dependencies []string     `json:"dependencies"`
	Result       string       `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
	RetryCount   int          `json:"retryCount"`
	MaxRetries   int          `json:"maxRetries"`
	Metadata     TaskMetadata `json:"metadata"`
}

// UsesTool reports whether the named tool is eligible for this task.
func (t *Task) UsesTool(name string) bool {
	for _, tc := range t.ToolCalls {
		if tc == name {
			return true
		}
	}
	return false
}

// TaskMetadata carries the planner's classification of a task.
type TaskMetadata struct {
	Intent     string   `json:"intent"`
	Entities   []string `json:"entities,omitempty"`
	Confidence float64  `json:"confidence"`
	WebAware   bool     `json:"webAware"`
}

// WebContext is an opaque snapshot of the page environment at goal
// creation time. All fields are optional.
type WebContext struct {
	URL      string        `json:"url,omitempty"`
	Title    string        `json:"title,omitempty"`
	Content  string        `json:"content,omitempty"`
	Elements []PageElement `json:"elements,omitempty"`
}

// PageElement describes one detected element on the page.
type PageElement struct {
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
