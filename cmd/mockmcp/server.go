package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// JSON-RPC error codes.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

var errBackendUnavailable = errors.New("backend unavailable")

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type toolCall struct {
	Name      string `json:"name"`
	Arguments struct {
		Query string    `json:"query"`
		Stay  stayInput `json:"stay"`
	} `json:"arguments"`
}

type stayInput struct {
	CheckIn     string  `json:"check_in"`
	CheckOut    string  `json:"check_out"`
	CityCode    string  `json:"city_code"`
	Adults      int     `json:"adults"`
	MaxPriceGBP float64 `json:"max_price_gbp"`
}

func (s stayInput) nights() int {
	in, err1 := time.Parse(time.DateOnly, s.CheckIn)
	out, err2 := time.Parse(time.DateOnly, s.CheckOut)
	if err1 != nil || err2 != nil || !out.After(in) {
		return 1
	}
	return int(out.Sub(in).Hours() / 24)
}

var tools = []map[string]any{
	{
		"name":        "hotel_search",
		"description": "Search hotels for a stay",
		"inputSchema": map[string]any{
			"type":     "object",
			"required": []string{"stay"},
			"properties": map[string]any{
				"stay":  map[string]any{"type": "object"},
				"query": map[string]any{"type": "string"},
			},
		},
	},
	{
		"name":        "planner_plan",
		"description": "Plan a stay from a free-text query",
		"inputSchema": map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
		},
	},
}

// Server is a canned JSON-RPC tool backend.
type Server struct {
	shape       string
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	logger      *slog.Logger
}

// NewServer creates a Server emitting payloads of the given shape.
func NewServer(shape string, minLatency, maxLatency time.Duration, failureRate float64, logger *slog.Logger) *Server {
	return &Server{
		shape:       shape,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		logger:      logger,
	}
}

// ServeHTTP handles one JSON-RPC request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" {
		s.write(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
		})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	status := http.StatusOK

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": "mockmcp", "version": "0.1.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}
	case "tools/list":
		resp.Result = map[string]any{"tools": tools}
	case "tools/call":
		var call toolCall
		if err := json.Unmarshal(req.Params, &call); err != nil {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "invalid params"}
			status = http.StatusBadRequest
			break
		}
		result, err := s.callTool(r.Context(), call)
		if errors.Is(err, errBackendUnavailable) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			resp.Error = &rpcError{Code: codeServerError, Message: err.Error()}
			status = http.StatusInternalServerError
			break
		}
		resp.Result = result
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
		status = http.StatusBadRequest
	}

	s.write(w, status, resp)
}

func (s *Server) callTool(ctx context.Context, call toolCall) (any, error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}

	switch call.Name {
	case "hotel_search", "planner_plan":
	default:
		return toolError("unknown tool: " + call.Name), nil
	}

	if call.Name == "hotel_search" && call.Arguments.Stay.CheckIn == "" {
		return toolError("stay.check_in is required"), nil
	}

	payload := buildPayload(s.shape, call.Arguments.Stay, call.Arguments.Query)
	s.logger.Info("tool called", "tool", call.Name, "shape", s.shape, "city", call.Arguments.Stay.CityCode)

	return map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "ok"},
			map[string]any{"type": "json", "json": payload},
		},
	}, nil
}

// simulate adds random latency and fails a share of calls.
func (s *Server) simulate(ctx context.Context) error {
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += rand.N(span)
	}

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return context.Cause(ctx)
	}

	if rand.Float64() < s.failureRate {
		return errBackendUnavailable
	}
	return nil
}

func toolError(msg string) map[string]any {
	return map[string]any{
		"isError": true,
		"content": []any{map[string]any{"type": "text", "text": msg}},
	}
}

func (s *Server) write(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
