package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PageExecutor is the browser surface the built-in handlers drive.
// The browser package provides the real implementation.
type PageExecutor interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// Default per-step budgets for the built-in handlers. Workflows get a
// longer leash because they chain several page operations.
const (
	workflowTimeout = 30 * time.Second
	actionTimeout   = 10 * time.Second
)

// WithPageHandlers registers the built-in browser task handlers:
// workflow (multi-step), action (single step), scrape, and monitor.
func WithPageHandlers(exec PageExecutor) Option {
	return func(q *Queue) {
		q.handlers["workflow"] = WorkflowHandler(exec)
		q.handlers["action"] = ActionHandler(exec)
		q.handlers["scrape"] = ScrapeHandler(exec)
		q.handlers["monitor"] = MonitorHandler(exec)
	}
}

// WorkflowHandler executes a sequence of page steps from the payload.
// Each step is a map with "action" plus action-specific fields; the
// first failing step aborts the workflow.
func WorkflowHandler(exec PageExecutor) Handler {
	return func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, workflowTimeout)
		defer cancel()

		steps, ok := payload["steps"].([]interface{})
		if !ok || len(steps) == 0 {
			return nil, fmt.Errorf("workflow payload requires a non-empty steps list")
		}

		results := make([]interface{}, 0, len(steps))
		for i, raw := range steps {
			step, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("workflow step %d is not an object", i)
			}
			result, err := runStep(ctx, exec, step)
			if err != nil {
				return nil, fmt.Errorf("workflow step %d (%v): %w", i, step["action"], err)
			}
			results = append(results, result)
		}
		return results, nil
	}
}

// ActionHandler executes a single page action from the payload.
func ActionHandler(exec PageExecutor) Handler {
	return func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return runStep(ctx, exec, payload)
	}
}

// ScrapeHandler captures the current page text, optionally matching a
// "contains" filter from the payload.
func ScrapeHandler(exec PageExecutor) Handler {
	return func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()

		if target, _ := payload["url"].(string); target != "" {
			if err := exec.Navigate(ctx, target); err != nil {
				return nil, err
			}
		}
		content, err := exec.Content(ctx)
		if err != nil {
			return nil, err
		}
		if want, _ := payload["contains"].(string); want != "" && !strings.Contains(content, want) {
			return nil, fmt.Errorf("page content does not contain %q", want)
		}
		return content, nil
	}
}

// MonitorHandler checks whether the page still matches an expectation:
// a URL prefix, a title substring, or both.
func MonitorHandler(exec PageExecutor) Handler {
	return func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()

		current, err := exec.URL(ctx)
		if err != nil {
			return nil, err
		}
		if prefix, _ := payload["urlPrefix"].(string); prefix != "" && !strings.HasPrefix(current, prefix) {
			return nil, fmt.Errorf("page moved away from %s (now %s)", prefix, current)
		}
		if want, _ := payload["titleContains"].(string); want != "" {
			title, err := exec.Title(ctx)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(strings.ToLower(title), strings.ToLower(want)) {
				return nil, fmt.Errorf("page title %q does not contain %q", title, want)
			}
		}
		return map[string]interface{}{"url": current}, nil
	}
}

func runStep(ctx context.Context, exec PageExecutor, step map[string]interface{}) (interface{}, error) {
	action, _ := step["action"].(string)
	switch action {
	case "navigate":
		target, _ := step["url"].(string)
		if target == "" {
			return nil, fmt.Errorf("navigate requires a url")
		}
		return nil, exec.Navigate(ctx, target)
	case "click":
		selector, _ := step["selector"].(string)
		if selector == "" {
			return nil, fmt.Errorf("click requires a selector")
		}
		return nil, exec.Click(ctx, selector)
	case "fill":
		selector, _ := step["selector"].(string)
		value, _ := step["value"].(string)
		if selector == "" {
			return nil, fmt.Errorf("fill requires a selector")
		}
		return nil, exec.Fill(ctx, selector, value)
	case "content":
		return exec.Content(ctx)
	case "title":
		return exec.Title(ctx)
	default:
		return nil, fmt.Errorf("unknown page action %q", action)
	}
}
