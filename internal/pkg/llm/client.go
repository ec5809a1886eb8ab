package llm

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

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/model"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// ErrNoStructuredOutput 模型没有返回可解析的 JSON
var ErrNoStructuredOutput = errors.New("llm: no structured output")

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema 结构化输出约束
type Schema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// Result 结构化调用结果，Content 保证是合法 JSON
type Result struct {
	Content json.RawMessage
	Usage   model.Usage
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Client OpenAI 兼容的 chat completions 客户端
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	backoff    func() retry.Backoff
	log        *zap.SugaredLogger
}

// Option 自定义客户端
type Option func(*Client)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBackoff 替换重试退避策略，测试中用于去掉等待
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) {
		c.backoff = fn
	}
}

func NewClient(cfg config.LLMConfig, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        zap.S().Named("llm"),
	}
	c.backoff = func() retry.Backoff {
		b := retry.NewExponential(defaultRetryBaseDelay)
		b = retry.WithCappedDuration(defaultRetryMaxDelay, b)
		return retry.WithMaxRetries(uint64(attempts-1), b)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string  `json:"type"`
	JSONSchema *Schema `json:"json_schema,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateStructured 以 JSON schema 约束调用模型。网络错误、429 和 5xx 会按退避重试，
// 模型返回空内容或非 JSON 时返回 ErrNoStructuredOutput
func (c *Client) GenerateStructured(ctx context.Context, systemPrompt string, messages []Message, schema Schema) (*Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("llm: api key required")
	}

	payload := chatRequest{
		Model:       c.cfg.Model,
		Messages:    append([]Message{{Role: "system", Content: systemPrompt}}, messages...),
		Temperature: 0,
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: &schema,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm request: encode body: %w", err)
	}

	var completion *chatResponse
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		resp, err := c.send(ctx, body)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.retryable() {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			c.log.Warnw("llm request failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		completion = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseCompletion(completion)
}

func (c *Client) send(ctx context.Context, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var completion chatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return nil, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return &completion, nil
}

func parseCompletion(completion *chatResponse) (*Result, error) {
	usage := model.Usage{
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}

	for _, choice := range completion.Choices {
		content := stripCodeFence(choice.Message.Content)
		if content == "" {
			if choice.Message.Refusal != "" {
				return nil, fmt.Errorf("%w: refused: %s", ErrNoStructuredOutput, choice.Message.Refusal)
			}
			continue
		}
		if !json.Valid([]byte(content)) {
			return nil, fmt.Errorf("%w: invalid json (finish_reason=%q)", ErrNoStructuredOutput, choice.FinishReason)
		}
		return &Result{Content: json.RawMessage(content), Usage: usage}, nil
	}
	return nil, ErrNoStructuredOutput
}

// stripCodeFence 部分模型会把 JSON 包在 markdown 代码块里
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
