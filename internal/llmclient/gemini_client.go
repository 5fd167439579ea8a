// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// Gemini content roles.
const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiClient implements schemas.Decider for the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    config.ModelConfig
	tools  []*genai.Tool
	req    requester
	logger *zap.Logger
}

var _ schemas.Decider = (*GeminiClient)(nil)

// NewGeminiClient initializes the client. An empty base URL uses Google's endpoint.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmclient: Gemini API key is required")
	}
	params, err := ToolParameters()
	if err != nil {
		return nil, err
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("llmclient: failed to create gemini client: %w", err)
	}

	logger = logger.Named("llm_client.gemini")
	return &GeminiClient{
		client: client,
		cfg:    cfg,
		tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:                 ToolName,
				Description:          ToolDescription,
				ParametersJsonSchema: params,
			}},
		}},
		req:    newRequester(cfg, logger),
		logger: logger,
	}, nil
}

// Decide sends the conversation and parses the model's reply.
func (c *GeminiClient) Decide(ctx context.Context, conv *schemas.Conversation) (*schemas.Decision, error) {
	system, contents := c.buildContents(conv.Messages())
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.cfg.Temperature)),
		Tools:       c.tools,
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}

	resp, err := do(ctx, c.req, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
		if err != nil {
			return nil, permanentUnlessTransient(mapGeminiError(err))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, ErrNoChoices
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var calls []schemas.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			calls = append(calls, schemas.ToolCall{ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Arguments: string(args)})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}

	c.logger.Debug("Model replied.", zap.Int("tool_calls", len(calls)), zap.Int("text_len", text.Len()))
	return buildDecision(text.String(), calls), nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &EndpointError{StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &EndpointError{StatusCode: apiErrPtr.Code, Err: err}
	}
	return err
}

// buildContents maps the conversation onto Gemini contents. Consecutive
// messages with the same role are merged, so function responses for one
// model turn travel together.
func (c *GeminiClient) buildContents(msgs []schemas.Message) (string, []*genai.Content) {
	images := newImageSelector(msgs, c.cfg.ImageHistory)
	var system []string
	var contents []*genai.Content

	add := func(role string, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range msgs {
		switch m.Role {
		case schemas.RoleSystem:
			system = append(system, m.Text)

		case schemas.RoleUser:
			var parts []*genai.Part
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			parts = append(parts, geminiImageParts(m.Observation, images, true)...)
			add(geminiRoleUser, parts...)

		case schemas.RoleAssistant:
			var parts []*genai.Part
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{"raw": tc.Arguments}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			add(geminiRoleModel, parts...)

		case schemas.RoleTool:
			name := m.ToolName
			if name == "" {
				name = ToolName
			}
			parts := []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     name,
				Response: toolResultPayload(m.Result),
			}}}
			if m.Result != nil {
				parts = append(parts, geminiImageParts(m.Result.Observation, images, false)...)
			}
			add(geminiRoleUser, parts...)
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func geminiImageParts(obs *schemas.Observation, images imageSelector, markOmitted bool) []*genai.Part {
	if obs == nil {
		return nil
	}
	if !images.Include(obs) {
		if markOmitted {
			return []*genai.Part{genai.NewPartFromText(omittedImageText)}
		}
		return nil
	}
	return []*genai.Part{
		genai.NewPartFromText(observationCaption(obs)),
		{InlineData: &genai.Blob{MIMEType: obs.MIMEType, Data: obs.Image}},
	}
}

func (c *GeminiClient) String() string {
	return fmt.Sprintf("gemini(%s)", c.cfg.Model)
}
