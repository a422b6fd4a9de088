// Package openai provides an OpenAI-compatible implementation of the
// tool-calling round. One round is one chat completion request with
// function schemas attached; any tool calls the model returns are
// executed against the handler table before the round result is built.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/surf/pkg/llm"
	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/types"
)

// Provider implements llm.RoundRunner against an OpenAI-compatible API.
type Provider struct {
	client openai.Client
	model  string
	log    *logging.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	baseURL string
	model   string
}

// WithModel sets the model used for completions.
func WithModel(model string) ProviderOption {
	return func(c *providerConfig) {
		c.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs
// (Azure, local models, proxies).
func WithBaseURL(baseURL string) ProviderOption {
	return func(c *providerConfig) {
		c.baseURL = baseURL
	}
}

// NewProvider creates a provider with the given API key. An empty key
// falls back to OPENAI_API_KEY; an unset base URL falls back to
// OPENAI_BASE_URL, then the standard endpoint.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	cfg := &providerConfig{model: "gpt-4o"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.baseURL == "" {
		cfg.baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	log, _ := logging.NewLogger("llm")

	return &Provider{
		client: openai.NewClient(clientOpts...),
		model:  cfg.model,
		log:    log,
	}, nil
}

// GetModel returns the configured model name.
func (p *Provider) GetModel() string { return p.model }

// RunRound implements llm.RoundRunner.
func (p *Provider) RunRound(ctx context.Context, history []*types.Message, opts llm.RoundOptions) (*llm.RoundResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertHistory(history),
		Tools:    convertTools(opts.Tools),
	}
	if opts.Temperature != 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	result := &llm.RoundResult{
		Message:  choice.Message.Content,
		Finished: len(choice.Message.ToolCalls) == 0,
	}

	for _, tc := range choice.Message.ToolCalls {
		call := llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
		}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				p.log.Warnf("malformed arguments for tool %s: %v", call.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, call)
		result.ToolResults = append(result.ToolResults, p.executeCall(ctx, call, opts.Handlers))
	}

	return result, nil
}

// executeCall runs one tool call through the handler table. Execution
// failures become ToolResult errors, never round errors.
func (p *Provider) executeCall(ctx context.Context, call llm.ToolCall, handlers map[string]llm.Handler) llm.ToolResult {
	handler, ok := handlers[call.Name]
	if !ok {
		p.log.Warnf("model requested unknown tool %q", call.Name)
		return llm.ToolResult{Name: call.Name, Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	out, err := handler(ctx, call.Arguments)
	if err != nil {
		p.log.Debugf("tool %s failed: %v", call.Name, err)
		return llm.ToolResult{Name: call.Name, Error: err.Error()}
	}
	return llm.ToolResult{Name: call.Name, Result: out}
}

func convertHistory(history []*types.Message) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

func convertTools(specs []llm.ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  openai.FunctionParameters(s.Schema),
			},
		})
	}
	return tools
}
