// Package llm implements the resilient client for an OpenAI-compatible
// chat-completion endpoint: circuit-breaker gating, a layered response
// cache keyed by request fingerprint, transport error classification, and
// the connection-probing operations the front end drives.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/llmguard/llmguard/internal/breaker"
	"github.com/llmguard/llmguard/internal/cache"
	"github.com/llmguard/llmguard/internal/metrics"
)

// ClientConfig contains configuration for the resilient client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Breaker gates every operation; nil gets a breaker with defaults.
	Breaker *breaker.Breaker

	// Cache is the fast in-memory tier; nil disables caching entirely.
	Cache cache.Store
	// PersistentCache is the optional second tier checked after Cache.
	PersistentCache cache.Store
	// CacheTTL applies to entries written by this client.
	CacheTTL time.Duration

	// RequestsPerMinute paces transport calls when positive. Cache hits
	// never wait.
	RequestsPerMinute int
}

// Client is the production APIClient. One client owns one transport
// session (lazily created, recreated after Close) and must not share it
// with other clients.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration

	brk      *breaker.Breaker
	store    *cache.Tiered // nil when caching is disabled
	cacheTTL time.Duration
	limiter  *rate.Limiter

	mu      sync.Mutex
	session *http.Client

	modelsGroup singleflight.Group
	metrics     *metrics.Metrics
}

var _ APIClient = (*Client)(nil)

// NewClient creates a resilient client for a single upstream endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1337/v1"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New("llm", breaker.DefaultFailMax, breaker.DefaultResetTimeout)
	}

	var store *cache.Tiered
	if cfg.Cache != nil {
		store = cache.NewTiered(cfg.Cache, cfg.PersistentCache)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		brk:         cfg.Breaker,
		store:       store,
		cacheTTL:    cfg.CacheTTL,
		limiter:     limiter,
		metrics:     metrics.Default(),
	}
}

// Breaker exposes the breaker for callers that inspect its state.
func (c *Client) Breaker() *breaker.Breaker { return c.brk }

// httpClient returns the transport session, creating it on first use.
func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		c.session = &http.Client{Timeout: c.timeout}
	}
	return c.session
}

// Close drops the transport session. The next operation creates a fresh
// one, so a closed client remains usable.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.CloseIdleConnections()
		c.session = nil
	}
}

func (c *Client) newChatRequest(messages []ChatMessage, opts *ChatOptions) ChatRequest {
	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      false,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if opts != nil {
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}
	return req
}

// ChatCompletion runs the full resilience pipeline: breaker gate, cache
// lookup by fingerprint, transport call, outcome classification, breaker
// update, and cache write on success.
func (c *Client) ChatCompletion(ctx context.Context, messages []ChatMessage, opts *ChatOptions) (*ChatResponse, error) {
	if !c.brk.Allow() {
		c.metrics.RecordError(string(KindCircuitOpen))
		log.Debug().Msg("Request rejected, circuit breaker open")
		return nil, errCircuitOpen()
	}

	req := c.newChatRequest(messages, opts)
	key, err := fingerprint(req)
	if err != nil {
		return nil, &APIError{Kind: KindBadRequest, Message: "request not serializable", Err: err}
	}

	if c.store != nil {
		if raw, ok := c.store.Get(ctx, key); ok {
			var resp ChatResponse
			if err := json.Unmarshal(raw, &resp); err == nil {
				c.brk.AfterCall(true)
				log.Debug().Int("message_count", len(messages)).Msg("Chat completion served from cache")
				return &resp, nil
			}
			// Unreadable cached payload: drop it and fall through.
			c.store.Delete(ctx, key)
		}
	}

	resp, apiErr := c.postChat(ctx, req)
	c.brk.AfterCall(apiErr == nil)
	if apiErr != nil {
		return nil, apiErr
	}

	if c.store != nil {
		if raw, err := json.Marshal(resp); err == nil {
			c.store.Set(ctx, key, raw, c.cacheTTL)
		}
	}
	return resp, nil
}

// ListModels fetches the model listing with the same gate-cache-transport
// pattern, keyed by a constant fingerprint. Concurrent misses share one
// upstream fetch.
func (c *Client) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	if !c.brk.Allow() {
		c.metrics.RecordError(string(KindCircuitOpen))
		return nil, errCircuitOpen()
	}

	if c.store != nil {
		if raw, ok := c.store.Get(ctx, modelsFingerprint); ok {
			var models []ModelDescriptor
			if err := json.Unmarshal(raw, &models); err == nil {
				c.brk.AfterCall(true)
				return models, nil
			}
			c.store.Delete(ctx, modelsFingerprint)
		}
	}

	v, err, _ := c.modelsGroup.Do(modelsFingerprint, func() (any, error) {
		models, apiErr := c.fetchModels(ctx)
		c.brk.AfterCall(apiErr == nil)
		if apiErr != nil {
			return nil, apiErr
		}
		if c.store != nil {
			if raw, err := json.Marshal(models); err == nil {
				c.store.Set(ctx, modelsFingerprint, raw, c.cacheTTL)
			}
		}
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ModelDescriptor), nil
}

// HealthCheck issues a minimal chat request and reports pure
// success/failure; every error reduces to false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.ChatCompletion(ctx, []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	return err == nil
}

// TestConnection times a minimal chat request. A model-not-loaded answer
// still counts as connected: the endpoint responded, only the model is
// unavailable.
func (c *Client) TestConnection(ctx context.Context) *ConnectionStatus {
	status := &ConnectionStatus{}

	start := time.Now()
	_, err := c.ChatCompletion(ctx, []ChatMessage{{Role: "user", Content: "ping"}}, nil)
	if err == nil {
		status.Connected = true
		status.ModelLoaded = true
		status.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
		return status
	}

	status.Error = err.Error()
	if KindOf(err) == KindModelNotLoaded {
		status.Connected = true
	}
	return status
}

// ClearCache empties the in-memory tier. Persistent records are untouched;
// use ClearPersistentCache to drop those explicitly.
func (c *Client) ClearCache(ctx context.Context) {
	if c.store != nil {
		c.store.ClearFast(ctx)
	}
}

// ClearPersistentCache empties the persistent tier.
func (c *Client) ClearPersistentCache(ctx context.Context) {
	if c.store != nil {
		c.store.ClearPersistent(ctx)
	}
}

func (c *Client) postChat(ctx context.Context, req ChatRequest) (*ChatResponse, *APIError) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &APIError{Kind: KindBadRequest, Message: "request not serializable", Err: err}
	}

	status, body, apiErr := c.roundTrip(ctx, http.MethodPost, c.baseURL+"/chat/completions", payload)
	if apiErr != nil {
		return nil, apiErr
	}
	if status != http.StatusOK {
		apiErr := classifyStatus(status, body)
		c.metrics.RecordError(string(apiErr.Kind))
		return nil, apiErr
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.RecordError(string(KindInvalidResponse))
		return nil, &APIError{Kind: KindInvalidResponse, Message: "invalid JSON response from server", Err: err}
	}
	if len(resp.Choices) == 0 {
		c.metrics.RecordError(string(KindInvalidResponse))
		return nil, &APIError{Kind: KindInvalidResponse, Message: "response has no choices"}
	}

	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion finished")
	return &resp, nil
}

func (c *Client) fetchModels(ctx context.Context) ([]ModelDescriptor, *APIError) {
	status, body, apiErr := c.roundTrip(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if apiErr != nil {
		return nil, apiErr
	}
	if status != http.StatusOK {
		apiErr := classifyStatus(status, body)
		c.metrics.RecordError(string(apiErr.Kind))
		return nil, apiErr
	}

	var env modelsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.metrics.RecordError(string(KindInvalidResponse))
		return nil, &APIError{Kind: KindInvalidResponse, Message: "invalid JSON response from server", Err: err}
	}
	return env.Data, nil
}

// roundTrip performs one HTTP exchange and classifies transport-level
// failures. HTTP status handling belongs to the callers.
func (c *Client) roundTrip(ctx context.Context, method, url string, payload []byte) (int, []byte, *APIError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			apiErr := classifyTransport(err)
			c.metrics.RecordError(string(apiErr.Kind))
			return 0, nil, apiErr
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, &APIError{Kind: KindConnectionFailed, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	reqID := uuid.NewString()
	log.Debug().
		Str("request_id", reqID).
		Str("method", method).
		Str("url", url).
		Msg("Sending API request")

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	duration := time.Since(start)
	c.metrics.RecordCall(duration)

	if err != nil {
		apiErr := classifyTransport(err)
		c.metrics.RecordError(string(apiErr.Kind))
		log.Warn().
			Str("request_id", reqID).
			Err(err).
			Dur("duration", duration).
			Msg("API request failed")
		return 0, nil, apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := classifyTransport(err)
		c.metrics.RecordError(string(apiErr.Kind))
		return 0, nil, apiErr
	}

	log.Debug().
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("API request completed")
	return resp.StatusCode, data, nil
}
