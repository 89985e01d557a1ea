package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

/* AnthropicClient implements the reasoning stage (Explain) via the
   Anthropic Messages API. It does not implement true Embed/Rank — those
   delegate to an embedded NullClient — since this spec's embedding
   backend is a separate SBERT HTTP service (see EmbeddingHTTPClient),
   not the LLM itself. */
type AnthropicClient struct {
	client  anthropic.Client
	apiKey  string
	model   anthropic.Model
	timeout time.Duration
	null    *NullClient
}

/* NewAnthropicClient creates a reasoning-stage client. apiKey empty means
   Available() reports false and every call degrades to NullClient. */
func NewAnthropicClient(apiKey, modelName string, timeout time.Duration) *AnthropicClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(modelName)
	if modelName == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		null:    NewNullClient(),
	}
}

func (a *AnthropicClient) Available() bool {
	return a != nil && a.apiKey != ""
}

func (a *AnthropicClient) Embed(ctx context.Context, text string) ([]float64, error) {
	return a.null.Embed(ctx, text)
}

func (a *AnthropicClient) Rank(ctx context.Context, sourceFields, targetFields []string, topK int) ([]RankedPair, error) {
	return a.null.Rank(ctx, sourceFields, targetFields, topK)
}

type reasoningResponse struct {
	Reasoning        string  `json:"reasoning"`
	ClinicalContext  string  `json:"clinicalContext"`
	TypeCompatible   bool    `json:"typeCompatible"`
	ConfidenceAdjust float64 `json:"confidenceAdjust"`
}

/* Explain asks the model to judge one candidate field mapping, forcing a
   strict JSON reply so the confidence-adjustment stage can parse it
   deterministically. */
func (a *AnthropicClient) Explain(ctx context.Context, sourceField, targetField, clinicalHint string) (Explanation, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are assisting a healthcare data mapping tool. Judge whether
mapping source field %q to target field %q is clinically sound.
Context hint: %q

Respond with ONLY a JSON object of this exact shape, no prose:
{"reasoning": "<one sentence>", "clinicalContext": "<one sentence or empty>", "typeCompatible": <bool>, "confidenceAdjust": <number between -0.2 and 0.2>}`,
		sourceField, targetField, clinicalHint)

	message, err := a.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Explanation{}, fmt.Errorf("llm: anthropic explain: %w", err)
	}

	text := extractText(message)
	var parsed reasoningResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return Explanation{}, fmt.Errorf("llm: anthropic explain: unparsable reply: %w", err)
	}

	adjust := parsed.ConfidenceAdjust
	if adjust > 0.2 {
		adjust = 0.2
	}
	if adjust < -0.2 {
		adjust = -0.2
	}

	return Explanation{
		Reasoning:        parsed.Reasoning,
		ClinicalContext:  parsed.ClinicalContext,
		TypeCompatible:   parsed.TypeCompatible,
		ConfidenceAdjust: adjust,
	}, nil
}

func extractText(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
