package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/aalghamdi/voicedesk/internal/config"
)

const llmMaxToolRounds = 8

// OpenAILLM drives chat completions with a bounded tool-call loop.
type OpenAILLM struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewOpenAILLM(cfg config.LLMSettings) (*OpenAILLM, error) {
	if strings.TrimSpace(cfg.APIKey()) == "" {
		return nil, fmt.Errorf("llm api key is not set")
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey())}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (l *OpenAILLM) Complete(ctx context.Context, instructions string, turns []Message, tools []FunctionTool) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if strings.TrimSpace(instructions) != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}
	for _, m := range turns {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	toolParams := make([]openai.ChatCompletionToolParam, 0, len(tools))
	byName := make(map[string]FunctionTool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		toolParams = append(toolParams, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  toolSchema(t),
			},
		})
	}

	for round := 0; round < llmMaxToolRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Model:    l.model,
			Messages: messages,
		}
		if l.temperature > 0 {
			params.Temperature = param.NewOpt(l.temperature)
		}
		if len(toolParams) > 0 {
			params.Tools = toolParams
		}

		resp, err := l.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completion: no choices")
		}
		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return choice.Message.Content, nil
		}

		calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls},
		})

		for _, tc := range choice.Message.ToolCalls {
			result, err := l.invokeTool(ctx, byName, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("tool %s failed: %v", tc.Function.Name, err)
			}
			messages = append(messages, openai.ToolMessage(result, tc.ID))
		}
	}
	return "", fmt.Errorf("chat completion: tool loop did not converge after %d rounds", llmMaxToolRounds)
}

func (l *OpenAILLM) invokeTool(ctx context.Context, byName map[string]FunctionTool, name, rawArgs string) (string, error) {
	t, ok := byName[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	return t.Invoke(ctx, args)
}

func toolSchema(t FunctionTool) openai.FunctionParameters {
	props := make(map[string]any, len(t.Parameters))
	for name, p := range t.Parameters {
		props[name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	return openai.FunctionParameters{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
