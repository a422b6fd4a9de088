package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/surf/pkg/llm"
	"github.com/entrhq/surf/pkg/queue"
	"github.com/entrhq/surf/pkg/types"
)

func browserSpecs() []llm.ToolSpec {
	names := []string{
		"navigateToUrl", "clickElement", "fillInput", "getPageContent",
		"getCurrentTab", "waitForElement", "scrollToElement", "searchGoogle",
	}
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, llm.ToolSpec{Name: n, Schema: map[string]interface{}{"type": "object"}})
	}
	return specs
}

func userTurn(content string) []*types.Message {
	return []*types.Message{types.NewUserMessage(content)}
}

func okCall(tool string) *llm.RoundResult {
	return &llm.RoundResult{
		Message:     fmt.Sprintf("using %s", tool),
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: tool}},
		ToolResults: []llm.ToolResult{{Name: tool, Result: "ok"}},
	}
}

func TestRunAgenticCreatesGoal(t *testing.T) {
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{{Message: "here are the jobs", Finished: true}}}
	ag := New(mock, WithTools(browserSpecs(), nil))

	resp, err := ag.RunAgentic(context.Background(), userTurn("find software engineering jobs at jpmorgan in india"))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.Finished)
	assert.Equal(t, "here are the jobs", resp.Message)
	require.NotNil(t, resp.CurrentGoal)
	assert.Equal(t, "find software engineering jobs at jpmorgan in india", resp.CurrentGoal.Objective)
	assert.NotEmpty(t, resp.CurrentGoal.SubTasks)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRunAgenticRequiresUserMessage(t *testing.T) {
	ag := New(&llm.MockRunner{}, WithTools(browserSpecs(), nil))
	_, err := ag.RunAgentic(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunAgenticErrorShapedResponse(t *testing.T) {
	mock := &llm.MockRunner{Err: fmt.Errorf("connection refused")}
	ag := New(mock, WithTools(browserSpecs(), nil))

	resp, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "connection refused")
	assert.NotNil(t, resp.CurrentGoal)
}

func TestMemoryInjection(t *testing.T) {
	mock := &llm.MockRunner{}
	ag := New(mock, WithTools(browserSpecs(), nil))
	ag.Memory().StoreUserPreference("job location", "remote positions in India")

	_, err := ag.RunAgentic(context.Background(), userTurn("user prefers job location for the search"))
	require.NoError(t, err)

	require.NotEmpty(t, mock.History)
	first := mock.History[0][0]
	assert.Equal(t, types.RoleSystem, first.Role)
	assert.Contains(t, first.Content, "Relevant context from previous sessions")
	assert.Contains(t, first.Content, "India")
}

func TestNoMemoryNoInjection(t *testing.T) {
	mock := &llm.MockRunner{}
	ag := New(mock, WithTools(browserSpecs(), nil))

	_, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)

	require.NotEmpty(t, mock.History)
	assert.Equal(t, types.RoleUser, mock.History[0][0].Role)
}

func TestToolResultSettlesMatchingTask(t *testing.T) {
	round := okCall("fillInput")
	round.Finished = true
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{round}}
	ag := New(mock, WithTools(browserSpecs(), nil))

	resp, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)

	goal := resp.CurrentGoal
	require.NotNil(t, goal)
	require.Len(t, goal.SubTasks, 1)
	assert.Equal(t, types.TaskCompleted, goal.SubTasks[0].Status)
	assert.Equal(t, 100, goal.Progress)
	assert.Equal(t, types.GoalCompleted, goal.Status)
	assert.NotNil(t, goal.CompletedAt)
}

func TestAutonomousLoopCompletesGoal(t *testing.T) {
	final := okCall("clickElement")
	final.Finished = true
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{
		okCall("navigateToUrl"),
		okCall("fillInput"),
		final,
	}}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithAutonomousMode(true),
		WithMaxAutonomousActions(5),
	)

	resp, err := ag.RunAgentic(context.Background(),
		userTurn("go to google.com and search for golang tutorials, then click the first result"))
	require.NoError(t, err)

	goal := resp.CurrentGoal
	require.NotNil(t, goal)
	require.Len(t, goal.SubTasks, 3)
	for _, task := range goal.SubTasks {
		assert.Equal(t, types.TaskCompleted, task.Status, task.Description)
	}
	assert.Equal(t, 100, goal.Progress)
	assert.Equal(t, types.GoalCompleted, goal.Status)
	assert.Equal(t, 3, mock.CallCount())

	// Continuation turns carry the objective back to the model.
	last := mock.History[len(mock.History)-1]
	assert.Contains(t, last[len(last)-1].Content, "Continue working toward the goal")
}

func TestAutonomousBudgetStopsLoop(t *testing.T) {
	// The model keeps calling a tool no task uses, so no progress is
	// ever made and only the budget ends the loop.
	stall := okCall("getCurrentTab")
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{stall}}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithAutonomousMode(true),
		WithMaxAutonomousActions(3),
	)

	resp, err := ag.RunAgentic(context.Background(), userTurn("go to google.com and search for cats"))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.False(t, resp.Finished)
	// One initial round plus three autonomous continuations.
	assert.Equal(t, 4, mock.CallCount())
	assert.Equal(t, types.GoalExecuting, resp.CurrentGoal.Status)
}

func TestToolErrorFailsTask(t *testing.T) {
	failing := &llm.RoundResult{
		Message:     "trying to search",
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "fillInput"}},
		ToolResults: []llm.ToolResult{{Name: "fillInput", Error: "selector not found"}},
	}
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{failing}}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithAutonomousMode(true),
		WithMaxAutonomousActions(5),
	)

	resp, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)

	goal := resp.CurrentGoal
	require.NotNil(t, goal)
	require.Len(t, goal.SubTasks, 1)
	assert.Equal(t, types.TaskFailed, goal.SubTasks[0].Status)
	assert.Equal(t, "selector not found", goal.SubTasks[0].Error)
	assert.Equal(t, types.GoalFailed, goal.Status)
	// The first tool error settles the task, so the loop stops there.
	assert.Equal(t, 1, mock.CallCount())
}

func TestZeroToolRoundContinuesWithOpenTasks(t *testing.T) {
	// A round without tool calls must not end the loop while tasks
	// remain open; the model gets nudged with the next task instead.
	settle := &llm.RoundResult{
		Message: "all done",
		ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "navigateToUrl"},
			{ID: "c2", Name: "fillInput"},
		},
		ToolResults: []llm.ToolResult{
			{Name: "navigateToUrl", Result: "ok"},
			{Name: "fillInput", Result: "ok"},
		},
		Finished: true,
	}
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{
		{Message: "I will continue with the next step"},
		settle,
	}}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithAutonomousMode(true),
		WithMaxAutonomousActions(5),
	)

	resp, err := ag.RunAgentic(context.Background(),
		userTurn("go to google.com and search for golang tutorials"))
	require.NoError(t, err)

	assert.Equal(t, 2, mock.CallCount())
	require.NotNil(t, resp.CurrentGoal)
	assert.Equal(t, types.GoalCompleted, resp.CurrentGoal.Status)
	assert.Equal(t, 100, resp.CurrentGoal.Progress)
}

func TestNextActionHintNamesPendingTask(t *testing.T) {
	round := okCall("navigateToUrl")
	round.Finished = true
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{round}}
	ag := New(mock, WithTools(browserSpecs(), nil))

	resp, err := ag.RunAgentic(context.Background(),
		userTurn("go to google.com and search for golang tutorials"))
	require.NoError(t, err)

	require.NotNil(t, resp.CurrentGoal)
	require.Len(t, resp.CurrentGoal.SubTasks, 2)
	assert.Equal(t, types.TaskCompleted, resp.CurrentGoal.SubTasks[0].Status)
	assert.Equal(t, resp.CurrentGoal.SubTasks[1].Description, resp.NextAction)
}

func TestNextActionHintFallsBackToProgressReview(t *testing.T) {
	ag := New(&llm.MockRunner{}, WithTools(browserSpecs(), nil))
	ag.SetCurrentGoal(&types.Goal{
		Objective: "find remote golang jobs",
		Status:    types.GoalExecuting,
		Progress:  50,
		SubTasks: []*types.Task{
			{Description: "search for openings", Status: types.TaskCompleted},
			{Description: "review listings", Status: types.TaskExecuting},
		},
	})

	assert.Equal(t,
		"Analyze progress and determine next steps for: find remote golang jobs",
		ag.nextActionHint())
}

func TestToolCallsRunThroughQueue(t *testing.T) {
	var settled []queue.Status
	q := queue.New(queue.WithListener(func(task *queue.Task, status queue.Status) {
		if status == queue.StatusCompleted || status == queue.StatusFailed {
			settled = append(settled, status)
		}
	}))
	t.Cleanup(q.Close)

	handlers := map[string]llm.Handler{
		"getPageContent": func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "page text", nil
		},
	}
	ag := New(&llm.MockRunner{}, WithTools(browserSpecs(), handlers), WithQueue(q))

	result, err := ag.roundHandlers()["getPageContent"](context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "page text", result)
	assert.Equal(t, []queue.Status{queue.StatusCompleted}, settled)
}

func TestQueuedToolErrorSurfaces(t *testing.T) {
	q := queue.New()
	t.Cleanup(q.Close)

	handlers := map[string]llm.Handler{
		"clickElement": func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", fmt.Errorf("element not found")
		},
	}
	ag := New(&llm.MockRunner{}, WithTools(browserSpecs(), handlers), WithQueue(q))

	_, err := ag.roundHandlers()["clickElement"](context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element not found")
}

func TestContextProviderFeedsPlanning(t *testing.T) {
	mock := &llm.MockRunner{}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithContextProvider(func(ctx context.Context) (*types.WebContext, error) {
			return &types.WebContext{URL: "https://www.jpmorgan.com", Title: "JPMorgan Chase"}, nil
		}),
	)

	resp, err := ag.RunAgentic(context.Background(), userTurn("find software engineering jobs in india"))
	require.NoError(t, err)

	goal := resp.CurrentGoal
	require.NotNil(t, goal)
	require.NotEmpty(t, goal.SubTasks)
	// Page analysis runs ahead of everything else.
	assert.True(t, strings.HasPrefix(goal.SubTasks[0].Description, "Analyze current page context"))
}

func TestContextProviderFailureTolerated(t *testing.T) {
	mock := &llm.MockRunner{}
	ag := New(mock,
		WithTools(browserSpecs(), nil),
		WithContextProvider(func(ctx context.Context) (*types.WebContext, error) {
			return nil, fmt.Errorf("browser not started")
		}),
	)

	resp, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestLearningFromExecution(t *testing.T) {
	round := okCall("fillInput")
	round.Finished = true
	mock := &llm.MockRunner{Rounds: []*llm.RoundResult{round}}
	ag := New(mock, WithTools(browserSpecs(), nil))

	before := ag.Memory().RecordCount()
	_, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)

	assert.Greater(t, ag.Memory().RecordCount(), before)
}

func TestGoalLifecycleAccessors(t *testing.T) {
	ag := New(&llm.MockRunner{}, WithTools(browserSpecs(), nil))

	assert.Nil(t, ag.CurrentGoal())

	_, err := ag.RunAgentic(context.Background(), userTurn("search for golang tutorials"))
	require.NoError(t, err)
	first := ag.CurrentGoal()
	require.NotNil(t, first)

	// The goal persists across calls until cleared.
	_, err = ag.RunAgentic(context.Background(), userTurn("unrelated follow-up question"))
	require.NoError(t, err)
	assert.Same(t, first, ag.CurrentGoal())

	ag.ClearCurrentGoal()
	assert.Nil(t, ag.CurrentGoal())
}
