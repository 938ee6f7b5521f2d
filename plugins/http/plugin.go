package http

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/go-resty/resty/v2"
)

// Config holds the backend client configuration with declarative tags
type Config struct {
	BaseURL     string        `yaml:"base_url" env:"BASE" default:"http://localhost:5027/api" validate:"required,url_format"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES" default:"0" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" env:"RETRY_WAIT_MS" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" env:"DEBUG" default:"false"`
	// RequireAuth refuses to send requests without a bearer token.
	RequireAuth bool `yaml:"require_auth" env:"REQUIRE_AUTH" default:"false"`
}

// TokenSource supplies the bearer token for outgoing requests.
// runtime.Session satisfies it.
type TokenSource interface {
	Token() string
}

// Client implements runtime.Resource over resty. Locators without a scheme
// are resolved against Config.BaseURL.
type Client struct {
	Config Config
	client *resty.Client
	tokens TokenSource
}

var _ runtime.Resource = (*Client)(nil)

// New creates a client. tokens may be nil for anonymous access.
func New(cfg Config, tokens TokenSource, l *slog.Logger) *Client {
	if l == nil {
		l = slog.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug).
		SetLogger(restyLogger{l: l}).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{Config: cfg, client: client, tokens: tokens}
}

// Do executes the request. Non-2xx responses are returned as they are;
// only transport failures produce an error.
func (c *Client) Do(ctx context.Context, req runtime.Request) (*runtime.Response, error) {
	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" && c.Config.RequireAuth {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Locator, runtime.ErrNotAuthenticated)
	}

	r := c.client.R().SetContext(ctx)
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if token != "" {
		r.SetAuthToken(token)
	}

	resp, err := r.Execute(req.Method, req.Locator)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	return &runtime.Response{
		StatusCode:  resp.StatusCode(),
		Status:      resp.Status(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

// restyLogger routes resty's own diagnostics into slog.
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) {
	r.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (r restyLogger) Warnf(format string, v ...any) {
	r.l.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (r restyLogger) Debugf(format string, v ...any) {
	r.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
