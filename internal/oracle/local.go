// Package oracle fetches external facts for the game: webpages over HTTP and
// prompt results from the configured AI provider. Local is a single observer;
// it does not reconcile results across peers.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/kiliankoe/royale/internal/ai"
)

const (
	DefaultUserAgent = "royale/1.0 (+https://github.com/kiliankoe/royale)"
	DefaultMaxBody   = 512 << 10
	DefaultAttempts  = 3
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

type Config struct {
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil.
	Timeout   time.Duration
	UserAgent string
	MaxBody   int64
	Attempts  uint64
	// BaseDelay is the first backoff; it doubles on every retry.
	BaseDelay time.Duration

	Provider ai.Provider
	Model    string
}

type Local struct {
	http      *http.Client
	userAgent string
	maxBody   int64
	attempts  uint64
	baseDelay time.Duration
	provider  ai.Provider
	model     string
}

func NewLocal(cfg Config) *Local {
	l := &Local{
		http:      cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBody,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		provider:  cfg.Provider,
		model:     cfg.Model,
	}
	if l.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		l.http = &http.Client{Timeout: timeout}
	}
	if l.userAgent == "" {
		l.userAgent = DefaultUserAgent
	}
	if l.maxBody <= 0 {
		l.maxBody = DefaultMaxBody
	}
	if l.attempts == 0 {
		l.attempts = DefaultAttempts
	}
	if l.baseDelay <= 0 {
		l.baseDelay = 500 * time.Millisecond
	}
	return l
}

// FetchAgreedWebpage GETs url. Transport errors, 429 and 5xx responses are
// retried with exponential backoff; bodies beyond the cap are truncated.
func (l *Local) FetchAgreedWebpage(ctx context.Context, url string) (string, error) {
	backoff := retry.WithMaxRetries(l.attempts-1, retry.NewExponential(l.baseDelay))

	var body string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		page, err := l.get(ctx, url)
		if err != nil {
			if retryable(err) {
				log.Debug().Err(err).Str("url", url).Int("attempt", attempt).Msg("fetch failed, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		body = page
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (l *Local) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, l.maxBody))
		return "", &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return "", fmt.Errorf("oracle: read response: %w", err)
	}
	return string(b), nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return true
}

// FetchAgreedPromptResult runs prompt on the configured provider. criteria is
// sent as the system prompt and sampling is deterministic.
func (l *Local) FetchAgreedPromptResult(ctx context.Context, prompt, criteria string) (string, error) {
	if l.provider == nil {
		return "", errors.New("oracle: no AI provider configured")
	}
	system := "Follow the instruction exactly and reply with the result only."
	if criteria != "" {
		system += " The result must satisfy: " + criteria
	}
	out, err := l.provider.Complete(ctx, ai.Request{
		Model:       l.model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: %s: %w", l.provider.Name(), err)
	}
	if out == "" {
		return "", errors.New("oracle: empty completion")
	}
	return out, nil
}
