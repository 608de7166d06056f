package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/time/rate"

	"github.com/corvus-ai/corvid/internal/log"
)

const (
	// DefaultBaseURL targets the OpenAI API; point it at any compatible
	// server for local models.
	DefaultBaseURL = "https://api.openai.com/v1"

	// defaultRequestTimeout bounds non-streaming calls. Streams are
	// bounded by the caller's context instead.
	defaultRequestTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept for the
	// error message.
	maxErrorBody = 2048
)

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string

	// Timeout applies to Complete and Embed calls. Zero selects the
	// default.
	Timeout time.Duration

	Retry RetryConfig

	// RequestsPerSecond throttles outgoing calls. Zero disables
	// client-side rate limiting.
	RequestsPerSecond float64
}

// Client talks to an OpenAI-compatible HTTP API. It implements both
// Completer and Embedder. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

var (
	_ Completer = (*Client)(nil)
	_ Embedder  = (*Client)(nil)
)

// NewClient creates a Client. logger must not be nil; use log.NewNop in
// tests.
func NewClient(cfg Config, logger log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		cfg: cfg,
		// No client-level timeout: it would cut off long streams. Each
		// call path sets its own deadline through the context.
		http:    &http.Client{},
		retry:   cfg.Retry,
		limiter: limiter,
		logger:  logger,
	}
}

// Wire types for the chat completions endpoint.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFuncCall `json:"function"`
}

type chatFuncCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int          `json:"index"`
				ID       string       `json:"id"`
				Function chatFuncCall `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func buildChatRequest(model string, req Request, stream bool) chatRequest {
	out := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		cm := chatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: chatFuncCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out.Messages = append(out.Messages, cm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// Complete performs a non-streaming completion with retry.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := buildChatRequest(c.cfg.Model, req, false)

	var out *Response
	err := c.withRetry(ctx, "complete", func() error {
		var wire chatResponse
		if err := c.postJSON(ctx, "/chat/completions", body, &wire); err != nil {
			return err
		}
		if len(wire.Choices) == 0 {
			return fmt.Errorf("%w: response has no choices", ErrProvider)
		}
		choice := wire.Choices[0]
		resp := &Response{
			Content:      choice.Message.Content,
			FinishReason: choice.FinishReason,
			Usage: Usage{
				PromptTokens:     wire.Usage.PromptTokens,
				CompletionTokens: wire.Usage.CompletionTokens,
				TotalTokens:      wire.Usage.TotalTokens,
			},
		}
		for _, tc := range choice.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream performs a streaming completion. Only connection establishment
// is retried; once the server has accepted the request, a mid-stream
// failure surfaces as an error rather than a silent replay of deltas the
// caller already consumed.
func (c *Client) Stream(ctx context.Context, req Request, fn func(Delta) error) error {
	body := buildChatRequest(c.cfg.Model, req, true)

	var resp *http.Response
	err := c.withRetry(ctx, "stream", func() error {
		r, postErr := c.post(ctx, "/chat/completions", body)
		if postErr != nil {
			return postErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.readStream(resp.Body, fn)
}

// readStream parses server-sent events from an OpenAI-style stream.
func (c *Client) readStream(r io.Reader, fn func(Delta) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("%w: malformed stream chunk: %v", ErrProvider, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		d := Delta{Content: choice.Delta.Content}
		for _, tc := range choice.Delta.ToolCalls {
			d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != nil {
			d.FinishReason = *choice.FinishReason
		}
		if d.Content == "" && len(d.ToolCalls) == 0 && d.FinishReason == "" {
			continue
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read stream: %v", ErrProvider, err)
	}
	// Stream ended without [DONE]: treat as truncated rather than
	// pretending it finished.
	return fmt.Errorf("%w: stream ended without done marker", ErrProvider)
}

// Wire types for the embeddings endpoint.

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input
// order regardless of the order the backend reports them.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := embedRequest{Model: c.cfg.EmbedModel, Input: texts}

	var out [][]float32
	err := c.withRetry(ctx, "embed", func() error {
		var wire embedResponse
		if err := c.postJSON(ctx, "/embeddings", body, &wire); err != nil {
			return err
		}
		if len(wire.Data) != len(texts) {
			return fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(wire.Data), len(texts))
		}
		sort.Slice(wire.Data, func(i, j int) bool { return wire.Data[i].Index < wire.Data[j].Index })
		out = make([][]float32, len(wire.Data))
		for i, d := range wire.Data {
			if len(d.Embedding) == 0 {
				return fmt.Errorf("%w: empty embedding at index %d", ErrProvider, d.Index)
			}
			out[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// post issues a JSON POST and returns the raw response. Non-2xx statuses
// become *statusError with any Retry-After hint attached.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(body)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	return nil
}

// parseRetryAfter understands both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
