package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-user-go/luxsearch/internal/obs"
	"github.com/alex-user-go/luxsearch/internal/providers"
	"github.com/alex-user-go/luxsearch/internal/search/normalize"
	"github.com/alex-user-go/luxsearch/internal/search/types"
)

// Aggregator aggregates results from multiple providers.
type Aggregator struct {
	providers  []providers.Provider
	normalizer *normalize.Normalizer
	timeout    time.Duration
	metrics    *obs.Metrics
	logger     *slog.Logger
}

// NewAggregator creates a new Aggregator.
func NewAggregator(
	providers []providers.Provider,
	normalizer *normalize.Normalizer,
	timeout time.Duration,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		providers:  providers,
		normalizer: normalizer,
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
	}
}

// Search queries all providers concurrently, normalizes each payload and
// merges the responses in provider order.
func (a *Aggregator) Search(ctx context.Context, stay providers.Stay) (*types.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		wg        sync.WaitGroup
		responses = make([]types.Response, len(a.providers))
		errs      = make([]error, len(a.providers))
	)

	for i, provider := range a.providers {
		wg.Go(func() {
			payload, err := provider.Search(ctx, stay)
			if err != nil {
				errs[i] = err
				a.metrics.IncProviderErrors()
				a.logger.Warn("provider search failed",
					"provider", provider.Name(),
					"error", err,
				)
				return
			}

			resp := a.normalizer.Normalize(payload)
			a.metrics.AddNormalizedItems(len(resp.Items))
			responses[i] = resp
		})
	}

	wg.Wait()

	var (
		succeeded []types.Response
		failed    int
		firstErr  error
	)
	for i, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = append(succeeded, responses[i])
	}

	if failed > 0 {
		a.logger.Error("provider search errors",
			"check_in", stay.CheckIn,
			"city_code", stay.CityCode,
			"failed_count", failed,
		)

		if failed == len(a.providers) {
			return nil, firstErr
		}
	}

	return &types.Result{
		Response:           normalize.Merge(succeeded...),
		ProvidersTotal:     len(a.providers),
		ProvidersSucceeded: len(succeeded),
		ProvidersFailed:    failed,
	}, nil
}
