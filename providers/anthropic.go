package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL    = "https://api.anthropic.com"
	defaultAnthropicAPIVersion = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic Messages REST protocol. The vendor
// takes a distinct top-level system parameter, so system entries in history
// are filtered out of the messages array.
type AnthropicAdapter struct {
	Base
	httpClient *http.Client
	baseURL    string
	apiVersion string
}

// NewAnthropic creates an Anthropic adapter. Pass "" for baseURL to use the
// public endpoint.
func NewAnthropic(base Base, baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	apiVersion := base.cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAnthropicAPIVersion
	}
	return &AnthropicAdapter{
		Base:       base,
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Adapter.
func (a *AnthropicAdapter) Generate(ctx context.Context, req Request) (*Success, error) {
	creds, err := a.credentials(ctx)
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

	system, msgs := conversation(req, model, false)
	wire := anthropicRequest{
		Model:       modelID,
		MaxTokens:   req.ResolvedMaxTokens(),
		System:      system,
		Temperature: req.Temperature,
		Messages:    make([]anthropicMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, Standardize(a.name, 0, fmt.Sprintf("marshal request: %v", err), nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, Standardize(a.name, 0, fmt.Sprintf("create request: %v", err), nil)
	}
	httpReq.Header.Set("x-api-key", creds.Current)
	httpReq.Header.Set("anthropic-version", a.apiVersion)
	httpReq.Header.Set("content-type", "application/json")

	start := time.Now()
	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, Standardize(a.name, 0, "", err)
	}
	defer func() { _ = httpResp.Body.Close() }()
	latency := time.Since(start)

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, Standardize(a.name, 0, "", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		detail := string(respBody)
		var errResp anthropicErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			detail = errResp.Error.Message
		}
		return nil, Standardize(a.name, httpResp.StatusCode, detail, nil)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, Standardize(a.name, 0, fmt.Sprintf("unmarshal response: %v", err), nil)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	reportedModel := resp.Model
	if reportedModel == "" {
		reportedModel = modelID
	}

	return &Success{
		Text: text.String(),
		Tokens: TokenUsage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
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
