// Package llamaclient translates canonical payloads into requests against the
// backing llama.cpp server and turns replies into InferenceResults.
package llamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scoringd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultRequestTimeout  = 10 * time.Minute
	DefaultTokenizeTimeout = 30 * time.Second
	DefaultConnectTimeout  = 5 * time.Second

	maxBodyBytes = 8 << 20
)

// Config holds adapter tunables.
type Config struct {
	// BaseURL of the backing server, e.g. http://localhost:8000.
	BaseURL         string
	RequestTimeout  time.Duration
	TokenizeTimeout time.Duration
	ConnectTimeout  time.Duration
	// EnableFanOut allows one backing call per prompt, bounded by the
	// _batch_size param. Off by default: one call per Generate.
	EnableFanOut bool
}

// Client talks to one backing server. It never holds the process.
type Client struct {
	baseURL         string
	reqTimeout      time.Duration
	tokenizeTimeout time.Duration
	fanOut          bool
	httpClient      *http.Client
	log             zerolog.Logger
	now             func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.TokenizeTimeout <= 0 {
		cfg.TokenizeTimeout = DefaultTokenizeTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: every call carries a context deadline instead.
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		reqTimeout:      cfg.RequestTimeout,
		tokenizeTimeout: cfg.TokenizeTimeout,
		fanOut:          cfg.EnableFanOut,
		httpClient:      &http.Client{Transport: tr, Timeout: 0},
		log:             zerolog.Nop(),
		now:             time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate issues the backing-server call(s) for one canonical request and
// returns one result per call. By default exactly one call is made with the
// whole query. Upstream non-200 replies are recorded on the result; only
// transport failures and cancellation are returned as errors.
func (c *Client) Generate(ctx context.Context, query []any, params map[string]any, task types.TaskType) ([]types.InferenceResult, error) {
	path, key, ok := endpointFor(task)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTask, task)
	}
	fwd, sc := splitParams(params)
	c.log.Debug().Str("task_type", string(task)).Int("batch_size", sc.batchSize).
		Bool("return_full_text", sc.returnFullText).Int("prompts", len(query)).Msg("generate")

	if c.fanOut && sc.batchSize > 1 && task == types.TaskTextGeneration && len(query) > 1 {
		return c.generateFanOut(ctx, path, key, query, fwd, sc.batchSize)
	}
	res, err := c.generateOne(ctx, path, key, query, fwd)
	if err != nil {
		return nil, err
	}
	return []types.InferenceResult{res}, nil
}

// generateFanOut issues one call per prompt with at most limit in flight.
// Results keep prompt order.
func (c *Client) generateFanOut(ctx context.Context, path, key string, query []any, params map[string]any, limit int) ([]types.InferenceResult, error) {
	results := make([]types.InferenceResult, len(query))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, prompt := range query {
		g.Go(func() error {
			res, err := c.generateOne(gctx, path, key, prompt, params)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) generateOne(ctx context.Context, path, key string, query any, params map[string]any) (types.InferenceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	body, err := json.Marshal(buildBody(key, query, params))
	if err != nil {
		return types.InferenceResult{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return types.InferenceResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("generate_openai_response", "true")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(path, "error").Inc()
		if ctx.Err() != nil {
			return types.InferenceResult{}, ctx.Err()
		}
		return types.InferenceResult{}, transportError{endpoint: path, err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := c.now().Sub(start)
	upstreamDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	upstreamRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		if ctx.Err() != nil {
			return types.InferenceResult{}, ctx.Err()
		}
		return types.InferenceResult{}, transportError{endpoint: path, err: err}
	}

	if resp.StatusCode != http.StatusOK {
		ue := UpstreamError{Endpoint: path, Status: resp.StatusCode, Body: string(raw)}
		c.log.Warn().Err(ue).Msg("backing server rejected request")
		return failedResult(ue.Body), nil
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failedResult(fmt.Sprintf("malformed backing server response: %v", err)), nil
	}
	text, ok := out.generatedText()
	if !ok {
		return failedResult("backing server response has no choices"), nil
	}

	tokens, terr := c.Tokenize(ctx, text)
	if terr != nil {
		c.log.Warn().Err(terr).Msg("tokenize degraded")
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	perToken := 0.0
	if len(tokens) > 0 {
		perToken = elapsedMs / float64(len(tokens))
	}
	return types.InferenceResult{
		Response:             &text,
		InferenceTimeMs:      &elapsedMs,
		TimePerTokenMs:       &perToken,
		GeneratedTokens:      tokens,
		PromptTokenCount:     out.Usage.PromptTokens,
		CompletionTokenCount: out.Usage.CompletionTokens,
	}, nil
}

func failedResult(msg string) types.InferenceResult {
	return types.InferenceResult{Error: &msg}
}

// Tokenize asks the backing server to tokenize text. Any failure yields an
// empty token list together with an error wrapping ErrTokenizeDegraded.
func (c *Client) Tokenize(ctx context.Context, text string) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tokenizeTimeout)
	defer cancel()

	body, _ := json.Marshal(tokenizeRequest{Input: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenizePath, bytes.NewReader(body))
	if err != nil {
		return nil, c.degrade(tokenizeError{reason: reasonTransport, err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.degrade(tokenizeError{reason: reasonTransport, err: err})
	}
	defer resp.Body.Close()
	upstreamRequestsTotal.WithLabelValues(tokenizePath, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusInternalServerError:
		return nil, c.degrade(tokenizeError{reason: reasonStatus500, status: resp.StatusCode})
	default:
		return nil, c.degrade(tokenizeError{reason: reasonStatusOther, status: resp.StatusCode})
	}
	var out tokenizeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, c.degrade(tokenizeError{reason: reasonDecode, err: err})
	}
	return out.Tokens, nil
}

func (c *Client) degrade(err tokenizeError) error {
	tokenizeDegradedTotal.WithLabelValues(err.reason).Inc()
	return err
}

// IsUnsupportedTask reports whether err is ErrUnsupportedTask.
func IsUnsupportedTask(err error) bool { return errors.Is(err, ErrUnsupportedTask) }
