// Package llmclient is the single choke-point for outbound calls to the
// external language-model server (spec §4.6): no other package may open
// its own connection to it.
//
// The HTTP request/response handling is grounded on the teacher's
// internal/llm/inference/ollama.go (tolerant decoding of either response
// shape, SSRF-validated transport); the retry loop replaces the teacher's
// bespoke backoff with github.com/cenkalti/backoff/v5; the concurrency cap
// is a semaphore sized from config, paired with internal/security.RateLimiter
// for request pacing (waited on once per Generate call, before the retry
// loop).
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/docuqa-dev/docuqa/internal/security"
)

// ImageRef is an inline image attachment for a multimodal completion
// request, capped at 5MB per spec §4.6.
type ImageRef struct {
	Path string
	Data []byte
}

const maxImageBytes = 5 * 1024 * 1024

// Result is the discriminated outcome of a Generate call, per spec §9's
// "ok | error(kind, message)" design note rather than a raised exception.
type Result struct {
	Success bool
	Text    string
	Err     error
}

// Config configures the client's transport, retry, and concurrency policy.
type Config struct {
	BaseURL            string
	CallTimeout        time.Duration // per-call timeout, default 30s
	MaxRetries         int           // default 3
	MaxBackoff         time.Duration // default 30s
	MaxInFlight        int           // default 2
	AllowedHosts       []string      // for the SSRF validator; defaults to localhost-only
}

func (c *Config) setDefaults() {
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 2
	}
}

// Client serializes every outbound call to the model server.
type Client struct {
	cfg       Config
	http      *http.Client
	sem       chan struct{}
	limiter   *security.RateLimiter
	ssrf      *security.SSRFValidator
}

// New builds a Client against the configured model server.
func New(cfg Config) *Client {
	cfg.setDefaults()

	ssrfCfg := security.DefaultSSRFConfig()
	ssrfCfg.AllowedHosts = cfg.AllowedHosts
	if len(ssrfCfg.AllowedHosts) == 0 {
		ssrfCfg.AllowedHosts = security.DefaultModelServerAllowlist
	}
	validator := security.NewSSRFValidator(ssrfCfg)

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.CallTimeout,
			Transport: validator.CreateSecureTransport(),
		},
		sem:     make(chan struct{}, cfg.MaxInFlight),
		limiter: security.NewRateLimiter(float64(cfg.MaxInFlight), cfg.MaxInFlight),
		ssrf:    validator,
	}
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// completionResponse tolerates either response shape the model server may
// return, per spec §6: read the "content" field and trim.
type completionResponse struct {
	Content string `json:"content"`
	Text    string `json:"text"`
}

var errorMarkers = []string{"error:", "exception:", "traceback"}

// minTextLength is the default response-validation floor from spec §4.6:
// long enough that a truncated or placeholder reply is almost certainly
// not a real answer. Callers expecting a short structured reply (a
// judge's [0,1] score, a one-word classification) should pass
// WithMinLength to lower it instead of disabling validation outright.
const minTextLength = 20

// GenerateOption customizes a single Generate call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	minLength int
}

// WithMinLength lowers the response-validation length floor for callers
// that legitimately expect a short reply (a numeric score, a single
// category word) instead of prose.
func WithMinLength(n int) GenerateOption {
	return func(o *generateOptions) { o.minLength = n }
}

// Generate issues a completion request, retrying on connection/timeout
// errors and on responses that fail validation (empty, too short, or
// starting with an obvious error marker), up to cfg.MaxRetries times with
// exponential backoff capped at cfg.MaxBackoff.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, images []ImageRef, opts ...GenerateOption) Result {
	if err := c.ssrf.ValidateURL(c.cfg.BaseURL + "/completion"); err != nil {
		return Result{Err: fmt.Errorf("model server address rejected: %w", err)}
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	if err := c.limiter.Wait(ctx, "llm"); err != nil {
		return Result{Err: err}
	}

	options := generateOptions{minLength: minTextLength}
	for _, opt := range opts {
		opt(&options)
	}

	attached := attachImages(images)

	op := func() (string, error) {
		text, err := c.doCompletion(ctx, prompt, maxTokens, attached)
		if err != nil {
			return "", err
		}
		if rejectReason := validateText(text, options.minLength); rejectReason != "" {
			return "", fmt.Errorf("rejected response: %s", rejectReason)
		}
		return text, nil
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithBackOff(capped(c.cfg.MaxBackoff)),
	)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Success: true, Text: text}
}

// capped wraps backoff's exponential policy with an upper bound matching
// spec §4.6's "exponential backoff capped at 30 seconds".
func capped(max time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = max
	return eb
}

func (c *Client) doCompletion(ctx context.Context, prompt string, maxTokens int, images []ImageRef) (string, error) {
	body, err := json.Marshal(struct {
		completionRequest
		Images []ImageRef `json:"images,omitempty"`
	}{
		completionRequest: completionRequest{Prompt: prompt, MaxTokens: maxTokens, Temperature: 0.2},
		Images:            images,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("model server error: status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := parsed.Content
	if text == "" {
		text = parsed.Text
	}
	return strings.TrimSpace(text), nil
}

// validateText returns a non-empty rejection reason if text fails the
// response-validation contract of spec §4.6, against the given length
// floor (minTextLength by default, lowered via WithMinLength).
func validateText(text string, minLength int) string {
	if text == "" {
		return "empty text"
	}
	if len(text) < minLength {
		return fmt.Sprintf("text shorter than %d characters", minLength)
	}
	lower := strings.ToLower(text)
	for _, marker := range errorMarkers {
		if strings.HasPrefix(lower, marker) {
			return "text begins with an error marker"
		}
	}
	return ""
}

// Health reports whether the model server is reachable and ready.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// attachImages enforces the per-image size cap, dropping any image that
// exceeds it rather than failing the whole call.
func attachImages(images []ImageRef) []ImageRef {
	if len(images) == 0 {
		return nil
	}
	out := make([]ImageRef, 0, len(images))
	for _, img := range images {
		if len(img.Data) > maxImageBytes {
			continue
		}
		out = append(out, img)
	}
	return out
}
