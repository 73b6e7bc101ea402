package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pyroth/qmd/pkg/types"
)

// Generator environment variables
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGenModel     = "QMD_GENAI_MODEL"
	EnvGenBaseURL   = "QMD_GENAI_BASE_URL"
)

// Generator defaults
const (
	DefaultGenModel      = "gpt-4o-mini"
	DefaultGenBaseURL    = "https://api.openai.com/v1"
	DefaultExpandTokens  = 256
	generationTimeout    = 30 * time.Second
	chatCompletionsPath  = "/chat/completions"
	expansionTemperature = 0.3
)

// chatGenerator talks to an OpenAI-compatible chat completions API.
type chatGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatGenerator creates a generator against an OpenAI-compatible API
func NewChatGenerator(baseURL, apiKey, model string) Generator {
	if baseURL == "" {
		baseURL = DefaultGenBaseURL
	}
	if model == "" {
		model = DefaultGenModel
	}
	return &chatGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: generationTimeout},
	}
}

// NewGeneratorFromEnv creates a generator from environment variables.
// Without OPENAI_API_KEY the returned generator reports unavailable.
func NewGeneratorFromEnv() Generator {
	apiKey := os.Getenv(EnvOpenAIAPIKey)
	if apiKey == "" {
		return DisabledGenerator{}
	}
	return NewChatGenerator(os.Getenv(EnvGenBaseURL), apiKey, os.Getenv(EnvGenModel))
}

func (g *chatGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	payload, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: expansionTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrProviderError, resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrProviderError)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (g *chatGenerator) ExpandQuery(ctx context.Context, query string, includeLexical bool) ([]types.Queryable, error) {
	response, err := g.Generate(ctx, expansionPrompt(query), DefaultExpandTokens)
	if err != nil {
		return nil, err
	}

	queries := parseExpansion(response)
	if !includeLexical {
		filtered := queries[:0]
		for _, q := range queries {
			if q.Type != types.QueryLex {
				filtered = append(filtered, q)
			}
		}
		queries = filtered
	}

	// The model can return nothing usable; always fall back to the
	// original query rather than an empty expansion.
	if includeLexical && !hasType(queries, types.QueryLex) {
		queries = append([]types.Queryable{types.LexQuery(query)}, queries...)
	}
	if !hasType(queries, types.QueryVec) && !hasType(queries, types.QueryHyde) {
		queries = append(queries, types.VecQuery(query))
	}
	return queries, nil
}

func hasType(queries []types.Queryable, t types.QueryType) bool {
	for _, q := range queries {
		if q.Type == t {
			return true
		}
	}
	return false
}

func (g *chatGenerator) Available() bool { return g.apiKey != "" }
func (g *chatGenerator) Model() string   { return g.model }
func (g *chatGenerator) Close() error    { return nil }

// DisabledGenerator is the no-key placeholder; every call fails with
// ErrNotAvailable.
type DisabledGenerator struct{}

func (DisabledGenerator) Generate(context.Context, string, int) (string, error) {
	return "", ErrNotAvailable
}

func (DisabledGenerator) ExpandQuery(context.Context, string, bool) ([]types.Queryable, error) {
	return nil, ErrNotAvailable
}

func (DisabledGenerator) Available() bool { return false }
func (DisabledGenerator) Model() string   { return "" }
func (DisabledGenerator) Close() error    { return nil }
