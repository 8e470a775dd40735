package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "text-embedding-004"

// Gemini embeds text with the Gemini API, passing the task type through so
// queries and documents land in compatible spaces.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGemini(ctx context.Context, apiKey, model string, dim int) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, dim: dim}, nil
}

func (g *Gemini) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if g.dim > 0 {
		dim := int32(g.dim)
		cfg.OutputDimensionality = &dim
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		cfg,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code >= 500) {
			return nil, &RetryableError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini returned no embedding values")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *Gemini) Dimension() int { return g.dim }
func (g *Gemini) Name() string   { return "gemini:" + g.model }
