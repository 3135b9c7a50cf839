package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockAPI is the subset of the Bedrock runtime client used by the
// adapter.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockAdapter invokes Anthropic models hosted on AWS Bedrock. The secret
// store holds a dedicated access-key pair for the Bedrock account, encoded
// as "ACCESS_KEY_ID:SECRET_ACCESS_KEY" in the secret's current key. The
// protocol body is the Anthropic-on-Bedrock shape, so system handling
// matches the anthropic adapter: top-level system, history system entries
// filtered.
type BedrockAdapter struct {
	Base
	awsRegion string

	clientMu sync.Mutex
	client   BedrockAPI
}

// NewBedrock creates a Bedrock adapter for the given AWS region. The runtime
// client is built lazily once credentials are loaded.
func NewBedrock(base Base, awsRegion string) *BedrockAdapter {
	return &BedrockAdapter{Base: base, awsRegion: awsRegion}
}

// NewBedrockWithClient injects a pre-built runtime client, bypassing the
// secret store. Used in tests.
func NewBedrockWithClient(base Base, client BedrockAPI) *BedrockAdapter {
	a := &BedrockAdapter{Base: base, client: client}
	a.Preload(injectedCredentials())
	return a
}

func (a *BedrockAdapter) vendorClient(ctx context.Context) (BedrockAPI, error) {
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
	keyID, secretKey, ok := strings.Cut(creds.Current, ":")
	if !ok || keyID == "" || secretKey == "" {
		return nil, fmt.Errorf("bedrock secret must be \"ACCESS_KEY_ID:SECRET_ACCESS_KEY\"")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(a.awsRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(keyID, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	if a.client == nil {
		a.client = bedrockruntime.NewFromConfig(awsCfg)
	}
	return a.client, nil
}

type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Adapter.
func (a *BedrockAdapter) Generate(ctx context.Context, req Request) (*Success, error) {
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

	system, msgs := conversation(req, model, false)
	wire := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.ResolvedMaxTokens(),
		System:           system,
		Temperature:      req.Temperature,
		Messages:         make([]anthropicMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, Standardize(a.name, 0, fmt.Sprintf("marshal request: %v", err), nil)
	}

	start := time.Now()
	output, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	latency := time.Since(start)
	if err != nil {
		return nil, standardizeBedrockError(a.name, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
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

// standardizeBedrockError maps SDK/SigV4 failures into the unified taxonomy.
func standardizeBedrockError(provider string, err error) *Error {
	status := 0
	detail := ""

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		detail = fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	return Standardize(provider, status, detail, err)
}
