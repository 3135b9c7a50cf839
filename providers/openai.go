package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter speaks the OpenAI Chat Completions protocol via the official
// SDK. The vendor accepts system messages inline, so history system entries
// pass through and the resolved system prompt is prepended as a system
// message.
type OpenAIAdapter struct {
	Base
	baseURL string

	clientMu sync.Mutex
	client   *openai.Client
}

// NewOpenAI creates an OpenAI adapter. Pass "" for baseURL to use the public
// endpoint. The SDK client is built lazily once credentials are loaded.
func NewOpenAI(base Base, baseURL string) *OpenAIAdapter {
	return &OpenAIAdapter{Base: base, baseURL: baseURL}
}

// NewOpenAIWithClient injects a pre-built SDK client, bypassing the secret
// store. Used in tests.
func NewOpenAIWithClient(base Base, client openai.Client) *OpenAIAdapter {
	a := &OpenAIAdapter{Base: base, client: &client}
	a.Preload(injectedCredentials())
	return a
}

func (a *OpenAIAdapter) vendorClient(ctx context.Context) (*openai.Client, error) {
	a.clientMu.Lock()
	if a.client != nil {
		c := a.client
		a.clientMu.Unlock()
		return c, nil
	}
	a.clientMu.Unlock()

	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}

	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	if a.client == nil {
		// Retries stay with the router's candidate fallback, not the SDK.
		opts := []option.RequestOption{
			option.WithAPIKey(creds.Current),
			option.WithMaxRetries(0),
		}
		if a.baseURL != "" {
			opts = append(opts, option.WithBaseURL(a.baseURL))
		}
		client := openai.NewClient(opts...)
		a.client = &client
	}
	return a.client, nil
}

// Generate implements Adapter.
func (a *OpenAIAdapter) Generate(ctx context.Context, req Request) (*Success, error) {
	client, err := a.vendorClient(ctx)
	if err != nil {
		return nil, AuthError(a.name, err)
	}
	if rlErr := a.admit(req); rlErr != nil {
		return nil, rlErr
	}

	modelID, model, ok := a.chooseModel(req)
	if !ok {
		return nil, &Error{Code: CodeCapability, Provider: a.name,
			Detail: fmt.Sprintf("model %q is not available", modelID), Status: http.StatusNotFound}
	}

	_, msgs := conversation(req, model, true)
	params := openai.ChatCompletionNewParams{
		Model:     modelID,
		Messages:  buildOpenAIMessages(msgs),
		MaxTokens: openai.Int(int64(req.ResolvedMaxTokens())),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	completion, err := client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, standardizeOpenAIError(a.name, err)
	}

	var text string
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
	}

	reportedModel := completion.Model
	if reportedModel == "" {
		reportedModel = modelID
	}

	return &Success{
		Text: text,
		Tokens: TokenUsage{
			Prompt:     int(completion.Usage.PromptTokens),
			Completion: int(completion.Usage.CompletionTokens),
			Total:      int(completion.Usage.TotalTokens),
		},
		Meta: Meta{
			Provider:  a.name,
			Model:     reportedModel,
			Region:    req.Context.Region,
			Latency:   latency,
			Timestamp: time.Now().UTC(),
			Features:  model.Capabilities,
		},
	}, nil
}

// buildOpenAIMessages converts gateway messages to the SDK union type.
func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// standardizeOpenAIError maps SDK errors into the unified taxonomy.
func standardizeOpenAIError(provider string, err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return Standardize(provider, apiErr.StatusCode, apiErr.Message, err)
	}
	return Standardize(provider, 0, "", err)
}
