package types

// Result represents aggregated search results.
type Result struct {
	Response
	ProvidersTotal     int `json:"providers_total"`
	ProvidersSucceeded int `json:"providers_succeeded"`
	ProvidersFailed    int `json:"providers_failed"`
}

// Response is the canonical search response handed to callers.
// Hotels and Narrative mirror Items and Meta.Narrative for older clients.
type Response struct {
	Items     []Item `json:"items"`
	Meta      Meta   `json:"meta"`
	Hotels    []Item `json:"hotels"`
	Narrative string `json:"narrative"`
}

// Meta carries supplementary text and counters about a response.
type Meta struct {
	Narrative string         `json:"narrative,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Counts    *Counts        `json:"counts,omitempty"`
	Budget    map[string]any `json:"budget,omitempty"`
}

// Counts summarizes how many candidate pools and items were seen.
type Counts struct {
	Pools       int  `json:"pools"`
	Items       int  `json:"items"`
	UnderBudget *int `json:"under_budget,omitempty"`
	TotalIn     *int `json:"total_in,omitempty"`
}

// Item represents a normalized hotel or offer. Every pointer field may be nil.
type Item struct {
	ID        *string  `json:"id"`
	Name      *string  `json:"name"`
	Price     *float64 `json:"price"`
	Currency  string   `json:"currency"`
	Address   *string  `json:"address"`
	City      *string  `json:"city"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Stars     *float64 `json:"stars"`
	Rating    *float64 `json:"rating"`
	Thumbnail *string  `json:"thumbnail"`
	Source    string   `json:"source"`
	Raw       any      `json:"raw"`
}

// Empty returns the canonical empty response.
func Empty() Response {
	return NewResponse(nil, Meta{})
}

// NewResponse assembles a response, filling the compatibility aliases.
func NewResponse(items []Item, meta Meta) Response {
	if items == nil {
		items = []Item{}
	}
	return Response{
		Items:     items,
		Meta:      meta,
		Hotels:    items,
		Narrative: meta.Narrative,
	}
}
