package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alex-user-go/luxsearch/internal/config"
	"github.com/alex-user-go/luxsearch/internal/providers"
)

var fastRetry = config.RetryPolicy{
	MaxAttempts:       3,
	InitialDelayMs:    1,
	MaxDelayMs:        5,
	BackoffMultiplier: 2.0,
}

type rpcCall struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

func newBackend(t *testing.T, fn func(w http.ResponseWriter, call rpcCall, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("backend got invalid JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fn(w, call, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeResult(w http.ResponseWriter, id string, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func TestMCPProvider_Search(t *testing.T) {
	type seen struct {
		call        rpcCall
		correlation string
	}
	seenCh := make(chan seen, 1)

	srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
		seenCh <- seen{call: call, correlation: r.Header.Get(providers.CorrelationHeader)}
		writeResult(w, call.ID, map[string]any{
			"content": []any{
				map[string]any{"type": "json", "json": map[string]any{"hotels": []any{map[string]any{"name": "Alpha"}}}},
				map[string]any{"type": "text", "text": "request_id=x"},
			},
		})
	})

	p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: time.Second, Retry: fastRetry})
	stay := providers.Stay{CheckIn: "2025-09-01", CheckOut: "2025-09-03", CityCode: "LON", Adults: 2, MaxPriceGBP: 200}

	payload, err := p.Search(context.Background(), stay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := <-seenCh
	gotCall, gotCorrelation := got.call, got.correlation
	if gotCall.JSONRPC != "2.0" || gotCall.Method != "tools/call" || gotCall.ID == "" {
		t.Errorf("unexpected envelope: %+v", gotCall)
	}
	if gotCall.Params["name"] != "hotel_search" {
		t.Errorf("expected tool hotel_search, got %v", gotCall.Params["name"])
	}
	args, _ := gotCall.Params["arguments"].(map[string]any)
	stayArgs, _ := args["stay"].(map[string]any)
	if stayArgs["city_code"] != "LON" || stayArgs["check_in"] != "2025-09-01" {
		t.Errorf("unexpected stay arguments: %v", args)
	}
	if gotCorrelation == "" {
		t.Error("expected correlation header")
	}

	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected object payload, got %T", payload)
	}
	if _, ok := m["hotels"]; !ok {
		t.Errorf("expected json content block to be returned, got %v", m)
	}
}

func TestMCPProvider_Call_ResultWithoutJSONBlock(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
		writeResult(w, call.ID, map[string]any{"items": []any{}})
	})

	p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: time.Second})
	payload, err := p.Call(context.Background(), "hotel_search", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := payload.(map[string]any); !ok || m["items"] == nil {
		t.Errorf("expected the whole result, got %v", payload)
	}
}

func TestMCPProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   func(w http.ResponseWriter, call rpcCall, r *http.Request)
		wantErr   error
		wantRPC   int
		wantCalls int32
	}{
		{
			name: "tool error",
			handler: func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				writeResult(w, call.ID, map[string]any{
					"content": []any{map[string]any{"type": "text", "text": "agent_error"}},
					"isError": true,
				})
			},
			wantErr:   providers.ErrToolFailed,
			wantCalls: 1,
		},
		{
			name: "rpc error with 400",
			handler: func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"jsonrpc": "2.0", "id": call.ID,
					"error": map[string]any{"code": -32601, "message": "Method not found"},
				})
			},
			wantRPC:   -32601,
			wantCalls: 1,
		},
		{
			name: "server error is retried",
			handler: func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr:   providers.ErrProviderUnavailable,
			wantCalls: 3,
		},
		{
			name: "not an envelope",
			handler: func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				_, _ = w.Write([]byte("<html>hello</html>"))
			},
			wantErr:   providers.ErrInvalidEnvelope,
			wantCalls: 1,
		},
		{
			name: "missing result",
			handler: func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1"}`))
			},
			wantErr:   providers.ErrInvalidEnvelope,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
				calls.Add(1)
				tt.handler(w, call, r)
			})

			p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: time.Second, Retry: fastRetry})
			_, err := p.Search(context.Background(), providers.Stay{CheckIn: "2025-09-01", CheckOut: "2025-09-02", Adults: 1})
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantRPC != 0 {
				rpcErr, ok := providers.IsRPCError(err)
				if !ok || rpcErr.Code != tt.wantRPC {
					t.Errorf("expected rpc error %d, got %v", tt.wantRPC, err)
				}
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestMCPProvider_RetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeResult(w, call.ID, map[string]any{"content": []any{map[string]any{"type": "json", "json": map[string]any{"ok": true}}}})
	})

	p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: time.Second, Retry: fastRetry})
	if _, err := p.Call(context.Background(), "hotel_search", map[string]any{}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestMCPProvider_ContextCancellation(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: 5 * time.Second, Retry: fastRetry})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := p.Call(ctx, "hotel_search", nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected fast return on cancel, took %v", elapsed)
	}
}

func TestMCPProvider_ListToolsAndInitialize(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, call rpcCall, r *http.Request) {
		switch call.Method {
		case "initialize":
			writeResult(w, call.ID, map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]any{"name": "mock", "version": "0.1.0"},
			})
		case "tools/list":
			writeResult(w, call.ID, map[string]any{"tools": []any{
				map[string]any{"name": "hotel_search", "description": "Find hotels"},
				map[string]any{"name": "planner_plan", "description": "Plan"},
			}})
		default:
			t.Errorf("unexpected method %s", call.Method)
		}
	})

	p := providers.NewMCPProvider("agent", srv.URL, "hotel_search", providers.Options{Timeout: time.Second})

	info, err := p.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if info["protocolVersion"] != "2024-11-05" {
		t.Errorf("unexpected server info: %v", info)
	}

	tools, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "hotel_search" {
		t.Errorf("unexpected tools: %+v", tools)
	}
}

func TestStay_ArgsAndNights(t *testing.T) {
	stay := providers.Stay{CheckIn: "2025-09-01", CheckOut: "2025-09-04", Adults: 2}

	args := stay.Args()
	if _, ok := args["city_code"]; ok {
		t.Error("expected empty city_code to be omitted")
	}
	if _, ok := args["max_price_gbp"]; ok {
		t.Error("expected zero max_price_gbp to be omitted")
	}
	if args["adults"] != 2 {
		t.Errorf("expected adults 2, got %v", args["adults"])
	}

	if n := stay.Nights(); n != 3 {
		t.Errorf("expected 3 nights, got %d", n)
	}
	if n := (providers.Stay{CheckIn: "bad"}).Nights(); n != 0 {
		t.Errorf("expected 0 nights for bad dates, got %d", n)
	}
}
