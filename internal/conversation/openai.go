package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4.1-nano"
	chatCompletionsPath  = "/v1/chat/completions"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

type OpenAIOption func(*OpenAIGenerator)

func WithBaseURL(u string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if c != nil {
			g.httpClient = c
		}
	}
}

func NewOpenAIGenerator(apiKey string, opts ...OpenAIOption) *OpenAIGenerator {
	g := &OpenAIGenerator{
		apiKey:      apiKey,
		baseURL:     defaultOpenAIBaseURL,
		model:       defaultOpenAIModel,
		maxTokens:   100,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Kind: KindGeneric, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UpstreamError{Kind: KindGeneric, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return "", parseError(resp.StatusCode, respBody)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &UpstreamError{Kind: KindGeneric, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &UpstreamError{Kind: KindGeneric, StatusCode: resp.StatusCode, Err: errors.New("no choices in response")}
	}
	return out.Choices[0].Message.Content, nil
}

// parseError maps an OpenAI error envelope to an UpstreamError.
// insufficient_quota arrives as a 429 with either code or type set.
func parseError(status int, body []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)

	code, _ := env.Error.Code.(string)
	msg := env.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	kind := KindGeneric
	if code == "insufficient_quota" || env.Error.Type == "insufficient_quota" {
		kind = KindQuotaExceeded
	}
	return &UpstreamError{Kind: kind, StatusCode: status, Err: errors.New(msg)}
}
