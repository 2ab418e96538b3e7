package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type OpenAIClient struct {
	config  *ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gpt-4o-mini"
	}
	if config.Dim == 0 {
		switch config.EmbedModel {
		case "text-embedding-3-small":
			config.Dim = 1536
		case "text-embedding-3-large":
			config.Dim = 3072
		case "text-embedding-ada-002":
			config.Dim = 1536
		default:
			config.Dim = 1536
		}
	}

	transport := &http.Transport{}

	// Corporate proxies sometimes require skipping TLS verification.
	if skipTLS, _ := strconv.ParseBool(os.Getenv("DARTSEARCH_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
		// Provider-side rate limits; 5 rps with small bursts is well under
		// the published embedding quota.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// EmbedBatch embeds up to one batch of texts in a single API call.
// Output order matches input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("PROVIDER_API_KEY unset")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"input": texts,
		"model": c.config.EmbedModel,
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("openai embedding: " + resp.Status)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, errors.New("openai embedding: result count mismatch")
	}

	// The API documents data as ordered, but index is authoritative.
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, errors.New("openai embedding: index out of range")
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Complete sends a chat completion constrained to the supplied context.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.config.APIKey == "" {
		return "", errors.New("PROVIDER_API_KEY unset")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": c.config.CompletionModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
		"max_tokens":  1500,
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct{ Error struct{ Message string } }
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return "", errors.New(e.Error.Message)
		}
		return "", errors.New(resp.Status)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// setHeaders sets common headers for OpenAI requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
