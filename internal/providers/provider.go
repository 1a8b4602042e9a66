package providers

import (
	"context"
	"errors"
	"time"
)

// Stay describes the trip a search is for.
type Stay struct {
	CheckIn         string  `json:"check_in"`
	CheckOut        string  `json:"check_out"`
	CityCode        string  `json:"city_code,omitempty"`
	Adults          int     `json:"adults"`
	WantsIndoorPool bool    `json:"wants_indoor_pool,omitempty"`
	MaxPriceGBP     float64 `json:"max_price_gbp,omitempty"`
	Query           string  `json:"query,omitempty"`
}

// Args returns the stay in the argument shape the hotel tools expect.
// Zero-valued optional fields are left out.
func (s Stay) Args() map[string]any {
	args := map[string]any{
		"check_in":  s.CheckIn,
		"check_out": s.CheckOut,
		"adults":    s.Adults,
	}
	if s.CityCode != "" {
		args["city_code"] = s.CityCode
	}
	if s.WantsIndoorPool {
		args["wants_indoor_pool"] = true
	}
	if s.MaxPriceGBP > 0 {
		args["max_price_gbp"] = s.MaxPriceGBP
	}
	return args
}

// Nights returns the number of nights between check-in and check-out,
// or 0 when either date does not parse.
func (s Stay) Nights() int {
	in, err := time.Parse(time.DateOnly, s.CheckIn)
	if err != nil {
		return 0
	}
	out, err := time.Parse(time.DateOnly, s.CheckOut)
	if err != nil {
		return 0
	}
	return int(out.Sub(in).Hours() / 24)
}

// Provider defines the interface for hotel backends.
type Provider interface {
	Name() string
	// Search returns the backend's raw payload for the stay.
	Search(ctx context.Context, stay Stay) (any, error)
}

var (
	// ErrProviderUnavailable is returned when a backend cannot be reached or keeps failing.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrToolFailed is returned when the backend reports a tool error in its result.
	ErrToolFailed = errors.New("tool call failed")
	// ErrInvalidEnvelope is returned when the response is not a JSON-RPC envelope.
	ErrInvalidEnvelope = errors.New("invalid JSON-RPC envelope")
)
