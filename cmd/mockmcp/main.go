package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	port := getEnv("PORT", "9001")
	shape := getEnv("MOCK_SHAPE", shapeFlat)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	switch shape {
	case shapeFlat, shapePlanner, shapeAmadeus:
	default:
		logger.Error("unknown payload shape", "shape", shape)
		os.Exit(1)
	}

	minLatency := time.Duration(getEnvInt("MOCK_MIN_LATENCY_MS", 50)) * time.Millisecond
	maxLatency := time.Duration(getEnvInt("MOCK_MAX_LATENCY_MS", 250)) * time.Millisecond
	failureRate, err := strconv.ParseFloat(getEnv("MOCK_FAILURE_RATE", "0.1"), 64)
	if err != nil {
		logger.Error("invalid MOCK_FAILURE_RATE", "error", err)
		os.Exit(1)
	}

	rpc := NewServer(shape, minLatency, maxLatency, failureRate, logger)

	mux := http.NewServeMux()
	mux.Handle("/mcp", rpc)
	mux.Handle("/", rpc)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write healthz response", "error", err)
		}
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("mock backend listening", "addr", addr, "shape", shape, "failure_rate", failureRate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}
