package browser

import (
	"context"
	"fmt"
	"net/url"

	"github.com/entrhq/surf/pkg/llm"
)

// ToolSpecs returns the browser tool definitions offered to the model.
func ToolSpecs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "navigateToUrl",
			Description: "Navigate the browser to a URL and wait for the page to load.",
			Schema:      objectSchema(map[string]interface{}{"url": stringProp("The absolute URL to navigate to")}, "url"),
		},
		{
			Name:        "clickElement",
			Description: "Click the first element matching a CSS selector.",
			Schema:      objectSchema(map[string]interface{}{"selector": stringProp("CSS selector of the element to click")}, "selector"),
		},
		{
			Name:        "fillInput",
			Description: "Fill an input or textarea matching a CSS selector with a value.",
			Schema: objectSchema(map[string]interface{}{
				"selector": stringProp("CSS selector of the input to fill"),
				"value":    stringProp("The text to enter"),
			}, "selector", "value"),
		},
		{
			Name:        "getPageContent",
			Description: "Get the readable text content of the current page, with links and form controls annotated.",
			Schema:      objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "getCurrentTab",
			Description: "Get the URL and title of the current page.",
			Schema:      objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "waitForElement",
			Description: "Wait until an element matching a CSS selector becomes visible.",
			Schema:      objectSchema(map[string]interface{}{"selector": stringProp("CSS selector to wait for")}, "selector"),
		},
		{
			Name:        "scrollToElement",
			Description: "Scroll an element into view, or to the bottom of the page when no selector is given.",
			Schema:      objectSchema(map[string]interface{}{"selector": stringProp("CSS selector to scroll to (optional)")}),
		},
		{
			Name:        "searchGoogle",
			Description: "Run a Google search and land on the results page.",
			Schema:      objectSchema(map[string]interface{}{"query": stringProp("The search query")}, "query"),
		},
	}
}

// Handlers binds the browser tools to a session.
func Handlers(s *Session) map[string]llm.Handler {
	return map[string]llm.Handler{
		"navigateToUrl": func(ctx context.Context, args map[string]interface{}) (string, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return "", err
			}
			if err := s.Navigate(ctx, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("Navigated to %s", target), nil
		},
		"clickElement": func(ctx context.Context, args map[string]interface{}) (string, error) {
			selector, err := stringArg(args, "selector")
			if err != nil {
				return "", err
			}
			if err := s.Click(ctx, selector); err != nil {
				return "", err
			}
			return fmt.Sprintf("Clicked %s", selector), nil
		},
		"fillInput": func(ctx context.Context, args map[string]interface{}) (string, error) {
			selector, err := stringArg(args, "selector")
			if err != nil {
				return "", err
			}
			value, err := stringArg(args, "value")
			if err != nil {
				return "", err
			}
			if err := s.Fill(ctx, selector, value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Filled %s", selector), nil
		},
		"getPageContent": func(ctx context.Context, args map[string]interface{}) (string, error) {
			return s.Content(ctx)
		},
		"getCurrentTab": func(ctx context.Context, args map[string]interface{}) (string, error) {
			current, err := s.URL(ctx)
			if err != nil {
				return "", err
			}
			title, err := s.Title(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("URL: %s\nTitle: %s", current, title), nil
		},
		"waitForElement": func(ctx context.Context, args map[string]interface{}) (string, error) {
			selector, err := stringArg(args, "selector")
			if err != nil {
				return "", err
			}
			if err := s.WaitForSelector(ctx, selector); err != nil {
				return "", err
			}
			return fmt.Sprintf("Element %s is visible", selector), nil
		},
		"scrollToElement": func(ctx context.Context, args map[string]interface{}) (string, error) {
			selector, _ := args["selector"].(string)
			if err := s.ScrollTo(ctx, selector); err != nil {
				return "", err
			}
			if selector == "" {
				return "Scrolled to bottom of page", nil
			}
			return fmt.Sprintf("Scrolled to %s", selector), nil
		},
		"searchGoogle": func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			target := "https://www.google.com/search?q=" + url.QueryEscape(query)
			if err := s.Navigate(ctx, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("Searched Google for %q", query), nil
		},
	}
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return value, nil
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
