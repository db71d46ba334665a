package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/platform/retry"
)

// Client is the narrow surface the pipeline needs from a hosted LLM: scoped
// generation for claim/relation/theme-label extraction, and embeddings for
// vector recall.
type Client interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type client struct {
	apiKey     string
	model      string
	embedModel string
	baseURL    string
	httpClient *http.Client
	retryPolicy retry.Policy
}

// NewFromEnv builds a client from OPENAI_API_KEY/OPENAI_MODEL/
// OPENAI_EMBED_MODEL/OPENAI_BASE_URL/OPENAI_TIMEOUT_SECONDS.
func NewFromEnv() (Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: OPENAI_API_KEY is required")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	embedModel := os.Getenv("OPENAI_EMBED_MODEL")
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeoutSeconds := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			timeoutSeconds = n
		}
	}

	return &client{
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		retryPolicy: retry.Default(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *client) chat(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	var result string
	err = retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("llmclient: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.Retryable(fmt.Errorf("llmclient: do request: %w", err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("llmclient: read response: %w", err))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, string(respBody)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("llmclient: unmarshal response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("llmclient: empty choices")
		}
		result = parsed.Choices[0].Message.Content
		return nil
	})

	return result, err
}

func (c *client) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.chat(ctx, systemPrompt, userPrompt, false)
}

func (c *client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	text, err := c.chat(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("llmclient: unmarshal generated JSON: %w", err)
	}
	return nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{Model: c.embedModel, Input: texts}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal embed request: %w", err)
	}

	var out [][]float32
	err = retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("llmclient: build embed request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.Retryable(fmt.Errorf("llmclient: do embed request: %w", err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("llmclient: read embed response: %w", err))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("llmclient: embed status %d: %s", resp.StatusCode, string(respBody)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("llmclient: embed status %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("llmclient: unmarshal embed response: %w", err)
		}

		out = make([][]float32, len(parsed.Data))
		for _, d := range parsed.Data {
			if d.Index >= 0 && d.Index < len(out) {
				out[d.Index] = d.Embedding
			}
		}
		return nil
	})

	return out, err
}
