package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// OpenAIClient talks to any OpenAI compatible chat completions endpoint,
// including local vLLM and SGLang servers.
type OpenAIClient struct {
	client openai.Client
	cfg    config.ModelConfig
	tools  []openai.ChatCompletionToolParam
	req    requester
	logger *zap.Logger
}

var _ schemas.Decider = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client. Retries are handled here rather
// than by the SDK so that both providers share one policy.
func NewOpenAIClient(cfg config.ModelConfig, logger *zap.Logger, opts ...option.RequestOption) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llmclient: base URL is required for the openai provider")
	}
	params, err := ToolParameters()
	if err != nil {
		return nil, err
	}

	logger = logger.Named("llm_client.openai")
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}, opts...)

	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		tools: []openai.ChatCompletionToolParam{{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        ToolName,
				Description: openai.String(ToolDescription),
				Parameters:  params,
			},
		}},
		req:    newRequester(cfg, logger),
		logger: logger,
	}, nil
}

// Decide sends the conversation and parses the assistant's reply.
func (c *OpenAIClient) Decide(ctx context.Context, conv *schemas.Conversation) (*schemas.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    c.buildMessages(conv.Messages()),
		Tools:       c.tools,
		Temperature: openai.Float(c.cfg.Temperature),
	}

	completion, err := do(ctx, c.req, func(ctx context.Context) (*openai.ChatCompletion, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, permanentUnlessTransient(mapOpenAIError(err))
		}
		if len(resp.Choices) == 0 {
			return nil, ErrNoChoices
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	msg := completion.Choices[0].Message
	calls := make([]schemas.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, schemas.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	c.logger.Debug("Model replied.",
		zap.Int("tool_calls", len(calls)),
		zap.Int("text_len", len(msg.Content)),
		zap.Int64("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int64("completion_tokens", completion.Usage.CompletionTokens),
	)
	return buildDecision(msg.Content, calls), nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &EndpointError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

// buildMessages maps the conversation onto chat messages. Images only travel
// in user content, so tool results are followed by one user message holding
// their screenshots.
func (c *OpenAIClient) buildMessages(msgs []schemas.Message) []openai.ChatCompletionMessageParamUnion {
	images := newImageSelector(msgs, c.cfg.ImageHistory)
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+4)
	var pending []openai.ChatCompletionContentPartUnionParam

	flush := func() {
		if len(pending) > 0 {
			out = append(out, openai.UserMessage(pending))
			pending = nil
		}
	}

	for _, m := range msgs {
		if m.Role != schemas.RoleTool {
			flush()
		}
		switch m.Role {
		case schemas.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text))

		case schemas.RoleUser:
			var parts []openai.ChatCompletionContentPartUnionParam
			if m.Text != "" {
				parts = append(parts, openai.TextContentPart(m.Text))
			}
			parts = append(parts, imageParts(m.Observation, images)...)
			if len(parts) == 0 {
				parts = append(parts, openai.TextContentPart(" "))
			}
			out = append(out, openai.UserMessage(parts))

		case schemas.RoleAssistant:
			// Endpoints reject an assistant turn with neither content nor tool calls.
			if m.Text == "" && len(m.ToolCalls) == 0 {
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Text != "" {
				assistant.Content.OfString = openai.String(m.Text)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case schemas.RoleTool:
			out = append(out, openai.ToolMessage(toolResultJSON(m.Result), m.ToolCallID))
			if m.Result != nil && images.Include(m.Result.Observation) {
				pending = append(pending, imageParts(m.Result.Observation, images)...)
			}
		}
	}
	flush()
	return out
}

func imageParts(obs *schemas.Observation, images imageSelector) []openai.ChatCompletionContentPartUnionParam {
	if obs == nil {
		return nil
	}
	if !images.Include(obs) {
		return []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(omittedImageText)}
	}
	return []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(observationCaption(obs)),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: obs.DataURL()}),
	}
}

func (c *OpenAIClient) String() string {
	return fmt.Sprintf("openai(%s @ %s)", c.cfg.Model, c.cfg.BaseURL)
}
