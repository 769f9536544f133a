package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/ratelimit"
)

const (
	DefaultLLMBaseURL = "https://openrouter.ai/api/v1"
	DefaultLLMTimeout = 60 * time.Second
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatMessage content is either a string or a list of contentParts
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

type chatError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

// completion is the first choice of a chat response
type completion struct {
	Content      string
	HasReasoning bool
}

// LLMConfig configures the OpenAI-compatible endpoint used by the agents
type LLMConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Timeout    time.Duration
}

type llmClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	timeout    time.Duration
}

func newLLMClient(cfg LLMConfig) *llmClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultLLMBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &llmClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		timeout:    timeout,
	}
}

// complete sends one chat completion through the llm limiter
func (c *llmClient) complete(ctx context.Context, apiKey string, reqBody chatRequest) (completion, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	return ratelimit.Schedule(ctx, c.limiter, func(ctx context.Context) (completion, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return completion{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("llm", "error").Inc()
			return completion{}, fmt.Errorf("failed to call LLM API: %w", err)
		}
		defer resp.Body.Close()

		metrics.UpstreamRequests.WithLabelValues("llm", strconv.Itoa(resp.StatusCode)).Inc()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return completion{}, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return completion{}, fmt.Errorf("LLM API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var apiResp chatResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return completion{}, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return completion{}, fmt.Errorf("LLM API error: %s", apiResp.Error.Message)
		}
		if len(apiResp.Choices) == 0 {
			return completion{}, fmt.Errorf("unexpected response format: no choices")
		}

		msg := apiResp.Choices[0].Message
		return completion{
			Content:      msg.Content,
			HasReasoning: msg.Reasoning != "" || msg.ReasoningContent != "",
		}, nil
	})
}
