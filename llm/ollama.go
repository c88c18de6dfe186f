package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Failure classes for the inference boundary. ErrServiceUnavailable covers
// connection refused and timeouts (the turn should be retried or aborted
// without changing session state). ErrMalformedResponse means the service
// answered but the payload could not be decoded at the transport level,
// distinct from the plan parser rejecting assistant text downstream.
var (
	ErrServiceUnavailable = errors.New("inference service unavailable")
	ErrMalformedResponse  = errors.New("malformed inference response")
)

// Message is one role-tagged entry in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-request generation knobs.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
}

// Response is a complete (non-streaming) inference result.
type Response struct {
	Text         string
	FinishReason string
	Usage        map[string]int
}

// Client talks to a local Ollama endpoint.
type Client struct {
	Endpoint string
	Model    string
	client   *http.Client
	Debug    bool
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Text            string         `json:"text"`
	Response        string         `json:"response"`
	Message         *ollamaMessage `json:"message"`
	Done            bool           `json:"done"`
	DoneReason      string         `json:"done_reason"`
	Usage           map[string]int `json:"usage"`
	EvalCount       int            `json:"eval_count"`
	PromptEvalCount int            `json:"prompt_eval_count"`
}

// NewClient builds a client for the given endpoint and default model.
func NewClient(endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Client{
		Endpoint: endpoint,
		Model:    model,
		client: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// Generate performs single prompt completion.
func (c *Client) Generate(ctx context.Context, prompt string, options *Options) (*Response, error) {
	payload := map[string]interface{}{
		"model":  c.model(options),
		"prompt": prompt,
		"stream": false,
	}
	c.applyOptions(payload, options)
	return c.doRequest(ctx, "/api/generate", payload)
}

// Chat performs a chat-style completion over an ordered message list.
func (c *Client) Chat(ctx context.Context, messages []Message, options *Options) (*Response, error) {
	payload := map[string]interface{}{
		"model":    c.model(options),
		"messages": messages,
		"stream":   false,
	}
	c.applyOptions(payload, options)
	return c.doRequest(ctx, "/api/chat", payload)
}

// ChatStream issues a streaming chat request. The returned channel is a
// finite sequence of chunks: it closes after the chunk carrying Done, after a
// chunk carrying Err, or without either marker when ctx is cancelled
// mid-stream. Each call is a fresh request; streams are not restartable.
func (c *Client) ChatStream(ctx context.Context, messages []Message, options *Options) (<-chan Chunk, error) {
	payload := map[string]interface{}{
		"model":    c.model(options),
		"messages": messages,
		"stream":   true,
	}
	c.applyOptions(payload, options)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.logPayload("/api/chat", body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.Status, msg)
	}

	ch := make(chan Chunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var raw ollamaResponse
			if err := json.Unmarshal(line, &raw); err != nil {
				emit(ctx, ch, Chunk{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)})
				return
			}
			if !emit(ctx, ch, Chunk{Text: chunkText(raw), Done: raw.Done}) {
				return
			}
			if raw.Done {
				return
			}
		}
		// Cancellation closes the channel without a Done marker; the
		// consumer records whatever text it saw as incomplete.
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emit(ctx, ch, Chunk{Err: fmt.Errorf("%w: %v", ErrServiceUnavailable, err)})
		}
	}()
	return ch, nil
}

// SetDebugLogging toggles verbose request/response logging.
func (c *Client) SetDebugLogging(enabled bool) {
	c.Debug = enabled
}

func emit(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func chunkText(raw ollamaResponse) string {
	if raw.Message != nil && raw.Message.Content != "" {
		return raw.Message.Content
	}
	return raw.Response
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{Timeout: 60 * time.Second}
	return c.client
}

func (c *Client) model(options *Options) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return "qwen2.5-coder:7b"
}

func (c *Client) applyOptions(payload map[string]interface{}, options *Options) {
	if options == nil {
		return
	}
	opts := map[string]interface{}{}
	if options.Temperature != 0 {
		opts["temperature"] = options.Temperature
	}
	if options.MaxTokens != 0 {
		opts["num_predict"] = options.MaxTokens
	}
	if options.TopP != 0 {
		opts["top_p"] = options.TopP
	}
	if options.Stop != nil {
		opts["stop"] = options.Stop
	}
	if len(opts) > 0 {
		payload["options"] = opts
	}
}

func (c *Client) doRequest(ctx context.Context, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.logPayload(path, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.Status, msg)
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	c.logResponse(path, responseBody)
	return decodeResponse(responseBody)
}

func statusError(status string, detail []byte) error {
	trimmed := strings.TrimSpace(string(detail))
	if trimmed != "" {
		return fmt.Errorf("ollama error: %s: %s", status, trimmed)
	}
	return fmt.Errorf("ollama error: %s", status)
}

func decodeResponse(body []byte) (*Response, error) {
	var raw ollamaResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	resp := &Response{
		Text:         firstNonEmpty(raw.Text, raw.Response),
		FinishReason: raw.DoneReason,
		Usage:        normalizeUsage(raw),
	}
	if resp.Text == "" && raw.Message != nil {
		resp.Text = raw.Message.Content
	}
	return resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeUsage(raw ollamaResponse) map[string]int {
	if raw.Usage != nil {
		return raw.Usage
	}
	usage := make(map[string]int)
	if raw.EvalCount > 0 {
		usage["completion_tokens"] = raw.EvalCount
	}
	if raw.PromptEvalCount > 0 {
		usage["prompt_tokens"] = raw.PromptEvalCount
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}

func (c *Client) logPayload(path string, payload []byte) {
	if !c.Debug {
		return
	}
	c.logf("request %s payload: %s", path, truncate(string(payload), 2048))
}

func (c *Client) logResponse(path string, resp []byte) {
	if !c.Debug {
		return
	}
	c.logf("response %s payload: %s", path, truncate(string(resp), 2048))
}

func (c *Client) logf(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	log.Printf("[ollama] "+format, args...)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
