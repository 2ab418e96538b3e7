package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Client provides embedding and completion against one model provider.
// EmbedBatch is a single provider call: callers hand it at most one batch
// and the returned vectors match the input order.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Complete(ctx context.Context, system, prompt string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey          string
	EmbedModel      string
	CompletionModel string
	Dim             int
	ProjectID       string
	Provider        Provider
	Location        string
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a deterministic implementation of Client for tests and
// offline runs. Vectors depend only on the input text.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 8
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dim)
		for j, r := range t {
			v[j%s.dim] += float32(r%97) / 97
		}
		out[i] = v
	}
	return out, nil
}

func (s *StubClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	// Echo enough of the prompt to make assertions possible.
	first := prompt
	if i := strings.IndexByte(first, '\n'); i > 0 {
		first = first[:i]
	}
	return fmt.Sprintf("stub completion: %s", strings.TrimSpace(first)), nil
}

func (s *StubClient) Dim() int {
	return s.dim
}
