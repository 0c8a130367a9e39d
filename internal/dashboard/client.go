// Package dashboard предоставляет клиент внешней аналитической панели.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/model"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultRetryMax = 3
)

// Client отправляет сводные данные панели на webhook внешней системы.
type Client struct {
	url        string
	token      string
	httpClient *retryablehttp.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithToken задаёт токен для заголовка Authorization.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRetry задаёт число повторов и интервалы ожидания между ними.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithLogger направляет журнал повторов в zap.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.httpClient.Logger = leveledLogger{l: logger.Sugar()}
	}
}

// NewClient создаёт клиент для webhook по указанному адресу.
func NewClient(url string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.HTTPClient.Timeout = defaultTimeout
	hc.RetryMax = defaultRetryMax
	hc.Logger = nil

	base := strings.TrimRight(url, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{url: base, httpClient: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push отправляет данные панели. Ответ вне диапазона 2xx считается ошибкой.
func (c *Client) Push(ctx context.Context, d model.Dashboard) error {
	if c == nil || c.url == "" {
		return fmt.Errorf("dashboard client not configured")
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}

// leveledLogger адаптирует zap к интерфейсу retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Infow(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
