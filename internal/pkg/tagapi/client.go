// Package tagapi 外部资产系统的打标接口
package tagapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/model"
)

const maxBodySnippet = 512

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tagging api: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// RemoteAsset 外部系统中资产的当前状态
type RemoteAsset struct {
	ID   string         `json:"id"`
	Tags []model.TagRef `json:"tags"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	backoff    func() retry.Backoff
}

type Option func(*Client)

// WithBackoff 替换重试策略
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) {
		c.backoff = fn
	}
}

func NewClient(cfg config.TaggingAPIConfig, opts ...Option) *Client {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(time.Second))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type applyTagsRequest struct {
	TagIDs []string `json:"tag_ids"`
	Append bool     `json:"append"`
}

// ApplyTags 给资产打标签，append 为 true 时保留已有标签
func (c *Client) ApplyTags(ctx context.Context, assetExternalID string, tagExternalIDs []string, appendTags bool) error {
	path := "/assets/" + url.PathEscape(assetExternalID) + "/tags"
	return c.do(ctx, http.MethodPost, path, nil, applyTagsRequest{TagIDs: tagExternalIDs, Append: appendTags}, nil)
}

type fetchAssetsResponse struct {
	Assets []RemoteAsset `json:"assets"`
}

// FetchAssetsByIds 批量获取资产及其当前标签
func (c *Client) FetchAssetsByIds(ctx context.Context, ids []string) ([]RemoteAsset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := url.Values{"ids": {strings.Join(ids, ",")}}

	var resp fetchAssetsResponse
	if err := c.do(ctx, http.MethodGet, "/assets", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("tagging api: encode body: %w", err)
		}
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.once(ctx, method, fullURL, payload, dest)
		if apiErr, ok := err.(*APIError); ok && !apiErr.retryable() {
			return err
		}
		if err != nil && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, method, fullURL string, payload []byte, dest interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("tagging api: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tagging api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tagging api: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxBodySnippet {
			snippet = snippet[:maxBodySnippet]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}

	if dest == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("tagging api: decode response: %w", err)
	}
	return nil
}
