package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

// EmbedBatch embeds one batch of texts in a single request; the returned
// embeddings align with the input order.
func (c *VertexAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}
	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, contents, &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	vecs := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Complete generates an answer from the Gemini API.
func (c *VertexAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 1500,
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.CompletionModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no completion returned")
	}

	part := resp.Candidates[0].Content.Parts[0]
	return strings.TrimSpace(string(part.Text)), nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
