package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alex-user-go/luxsearch/internal/config"
	"github.com/alex-user-go/luxsearch/internal/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"

	// CorrelationHeader carries the caller's request id to the backend.
	CorrelationHeader = "x-correlation-id"
)

// RPCError is a JSON-RPC error object returned by the backend.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Tool describes one tool advertised by the backend.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type contentBlock struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

type toolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// Options configures an MCPProvider.
type Options struct {
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	Retry   config.RetryPolicy
	// RPS throttles outbound calls. Zero or less disables throttling.
	RPS    float64
	Burst  int
	Logger *slog.Logger
}

// MCPProvider calls a JSON-RPC tool backend over HTTP.
type MCPProvider struct {
	name       string
	url        string
	tool       string
	httpClient *http.Client
	retry      config.RetryPolicy
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewMCPProvider creates a provider that invokes tool on the backend at url.
func NewMCPProvider(name, url, tool string, opts Options) *MCPProvider {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &MCPProvider{
		name: name,
		url:  url,
		tool: tool,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		retry:   opts.Retry,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("provider", name),
	}
}

// Name returns the provider name.
func (p *MCPProvider) Name() string {
	return p.name
}

// Search calls the configured tool for stay and returns its payload.
func (p *MCPProvider) Search(ctx context.Context, stay Stay) (any, error) {
	return p.Call(ctx, p.tool, p.toolArgs(ctx, stay))
}

func (p *MCPProvider) toolArgs(ctx context.Context, stay Stay) map[string]any {
	if p.tool == "planner_plan" {
		return map[string]any{"query": stay.Query}
	}
	args := map[string]any{"stay": stay.Args()}
	if stay.Query != "" {
		args["query"] = stay.Query
	}
	if id := middleware.RequestID(ctx); id != "" {
		args["request_id"] = id
	}
	return args
}

// Call invokes tool with args and returns the first JSON content block of
// the result, or the whole result when it has none.
func (p *MCPProvider) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	params := map[string]any{"name": tool, "arguments": args}

	raw, err := p.do(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var res toolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	if res.IsError {
		var texts []string
		for _, b := range res.Content {
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, tool, strings.Join(texts, "; "))
	}

	for _, b := range res.Content {
		if len(b.JSON) > 0 && !bytes.Equal(b.JSON, []byte("null")) {
			return decode(b.JSON)
		}
	}
	return decode(raw)
}

// Initialize performs the protocol handshake and returns the server info.
func (p *MCPProvider) Initialize(ctx context.Context) (map[string]any, error) {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "luxsearch", "version": "0.1.0"},
	}

	raw, err := p.do(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return info, nil
}

// ListTools returns the tools the backend advertises.
func (p *MCPProvider) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := p.do(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return out.Tools, nil
}

// do sends one JSON-RPC request, retrying network failures and 5xx responses.
func (p *MCPProvider) do(ctx context.Context, method string, params any) (json.RawMessage, error) {
	correlationID := middleware.RequestID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		if delay := p.retry.GetRetryDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, context.Cause(ctx)
			case <-timer.C:
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		result, retryable, err := p.post(ctx, body, correlationID)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable || ctx.Err() != nil {
			return nil, err
		}

		p.logger.Warn("backend call failed",
			"method", method,
			"attempt", attempt,
			"correlation_id", correlationID,
			"error", err,
		)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrProviderUnavailable, p.name, p.retry.MaxAttempts, lastErr)
}

// post performs a single HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (p *MCPProvider) post(ctx context.Context, body []byte, correlationID string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CorrelationHeader, correlationID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Explicitly ignore close error
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, snippet(data))
	}

	var env rpcResponse
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, false, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, snippet(data))
		}
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	// JSON-RPC errors may arrive with a 4xx status.
	if env.Error != nil {
		return nil, false, env.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, snippet(data))
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return nil, false, fmt.Errorf("%w: missing result", ErrInvalidEnvelope)
	}

	return env.Result, false, nil
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return v, nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// IsRPCError reports whether err carries a JSON-RPC error and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}
