package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/circuitbreaker"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/tracing"
)

// Config holds the chat-completions endpoint settings.
type Config struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OpenAIClient talks to any OpenAI-compatible /v1/chat/completions server.
type OpenAIClient struct {
	cfg    Config
	httpw  *circuitbreaker.HTTPWrapper
	stream *http.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &OpenAIClient{
		cfg:   cfg,
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "llm", "chat-completions", logger),
		// Streaming responses outlive any sane fixed timeout; rely on ctx.
		stream: &http.Client{},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke performs one blocking chat completion.
func (c *OpenAIClient) Invoke(ctx context.Context, purpose string, messages []Message) (Response, error) {
	start := time.Now()

	url := c.cfg.BaseURL + "/chat/completions"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := chatRequest{Model: c.cfg.Model, Messages: messages, Temperature: c.cfg.Temperature}
	buf, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{}, fmt.Errorf("decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{}, fmt.Errorf("llm returned no choices")
	}

	metrics.RecordLLMCall(purpose, "ok", time.Since(start).Seconds(), out.Usage.TotalTokens)
	return Response{Content: out.Choices[0].Message.Content, TokensUsed: out.Usage.TotalTokens}, nil
}

// Stream performs a streaming chat completion, invoking onDelta for each
// content fragment. The assembled text is returned at the end.
func (c *OpenAIClient) Stream(ctx context.Context, purpose string, messages []Message, onDelta func(string) error) (Response, error) {
	start := time.Now()

	url := c.cfg.BaseURL + "/chat/completions"
	body := chatRequest{Model: c.cfg.Model, Messages: messages, Temperature: c.cfg.Temperature, Stream: true}
	buf, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{}, fmt.Errorf("llm stream failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{}, fmt.Errorf("llm stream status %d", resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("Skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Response{Content: full.String()}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.RecordLLMCall(purpose, "error", time.Since(start).Seconds(), 0)
		return Response{Content: full.String()}, fmt.Errorf("read llm stream: %w", err)
	}

	metrics.RecordLLMCall(purpose, "ok", time.Since(start).Seconds(), 0)
	return Response{Content: full.String()}, nil
}
