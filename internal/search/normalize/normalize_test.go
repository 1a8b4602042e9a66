package normalize_test

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/alex-user-go/luxsearch/internal/search/normalize"
	"github.com/alex-user-go/luxsearch/internal/search/types"
)

const emptyJSON = `{"items":[],"meta":{},"hotels":[],"narrative":""}`

func TestNormalize_NonObjectInput(t *testing.T) {
	inputs := map[string]any{
		"nil":    nil,
		"string": "hello",
		"number": 42.0,
		"bool":   true,
		"array":  []any{map[string]any{"name": "Hotel"}},
		"empty":  map[string]any{},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got := mustJSON(t, normalize.Normalize(in))
			if got != emptyJSON {
				t.Errorf("expected %s, got %s", emptyJSON, got)
			}
		})
	}
}

func TestNormalize_FlatResults(t *testing.T) {
	payload := decode(t, `{"results":[{"name":"Hotel Alpha","est_price":"120.50","check_in":"2025-09-01"}]}`)

	resp := normalize.Normalize(payload)
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}

	it := resp.Items[0]
	if it.Name == nil || *it.Name != "Hotel Alpha" {
		t.Errorf("unexpected name: %v", it.Name)
	}
	if it.Price == nil || *it.Price != 120.5 {
		t.Errorf("expected price 120.5, got %v", it.Price)
	}
	if it.Currency != "GBP" {
		t.Errorf("expected GBP, got %s", it.Currency)
	}
	if it.Source != "hotel_search" {
		t.Errorf("expected source hotel_search, got %s", it.Source)
	}
	if it.ID == nil || *it.ID != "hotel-alpha-2025-09-01" {
		t.Errorf("unexpected synthesized id: %v", it.ID)
	}

	if len(resp.Hotels) != 1 {
		t.Errorf("expected hotels alias to mirror items")
	}
	if resp.Meta.Counts == nil || resp.Meta.Counts.Pools != 1 || resp.Meta.Counts.Items != 1 {
		t.Errorf("unexpected counts: %+v", resp.Meta.Counts)
	}
}

func TestNormalize_PlannerTraceKeepsOffer(t *testing.T) {
	payload := decode(t, `{"steps":[{"result":{"offers":[{"hotel":{"name":"Beta House"},"total":"€200"}]}}]}`)

	resp := normalize.Normalize(payload)
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	it := resp.Items[0]
	if it.Name == nil || *it.Name != "Beta House" {
		t.Errorf("expected name Beta House, got %v", it.Name)
	}
	if it.Price == nil || *it.Price != 200 {
		t.Errorf("expected price 200, got %v", it.Price)
	}
	raw, ok := it.Raw.(map[string]any)
	if !ok || raw["total"] != "€200" {
		t.Errorf("expected raw to be the offer record, got %v", it.Raw)
	}
}

func TestNormalize_EnvelopeUnwrap(t *testing.T) {
	payload := decode(t, `{
		"jsonrpc": "2.0",
		"id": "1",
		"result": {
			"content": [
				{"type": "text", "text": "request_id=abc"},
				{"type": "json", "json": {"items": [{"id": "H1", "name": "Gamma"}], "narrative": "One stay found."}}
			]
		}
	}`)

	resp := normalize.Normalize(payload)
	if len(resp.Items) != 1 || *resp.Items[0].ID != "H1" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.Narrative != "One stay found." || resp.Meta.Narrative != resp.Narrative {
		t.Errorf("unexpected narrative: %q / %q", resp.Narrative, resp.Meta.Narrative)
	}
}

func TestNormalize_DropRule(t *testing.T) {
	payload := decode(t, `{"results":[{"price":10},{"name":"Kept"},"not an object",{"hotel_id":"X9"}]}`)

	resp := normalize.Normalize(payload)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	for _, it := range resp.Items {
		if it.ID == nil && it.Name == nil {
			t.Errorf("item without id and name survived: %+v", it)
		}
	}
}

func TestNormalize_Dedup(t *testing.T) {
	payload := decode(t, `{
		"items": [{"id": "H1", "name": "First", "price": 100}],
		"hotels": [{"id": "h1", "name": "Second", "price": 90}, {"name": "first"}, {"name": "Other"}]
	}`)

	resp := normalize.Normalize(payload)

	var names []string
	for _, it := range resp.Items {
		names = append(names, *it.Name)
	}
	// "first" has a synthesized id, so only the explicit H1/h1 pair collides.
	want := []string{"First", "first", "Other"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, names)
	}
	if *resp.Items[0].Price != 100 {
		t.Errorf("expected first occurrence to win, got price %v", *resp.Items[0].Price)
	}
}

func TestNormalize_PricePrecedence(t *testing.T) {
	tests := []struct {
		name         string
		record       string
		wantPrice    float64
		wantCurrency string
	}{
		{
			name:         "normalized per-night beats generic price",
			record:       `{"name":"A","price":300,"price_gbp_norm":150}`,
			wantPrice:    150,
			wantCurrency: "GBP",
		},
		{
			name:         "est_price_gbp beats est_price",
			record:       `{"name":"A","est_price":"200","est_price_gbp":"180"}`,
			wantPrice:    180,
			wantCurrency: "GBP",
		},
		{
			name:         "nested price object",
			record:       `{"name":"A","price":{"total":"410.00","currency":"eur"}}`,
			wantPrice:    410,
			wantCurrency: "EUR",
		},
		{
			name:         "first offer",
			record:       `{"name":"A","offers":[{"price":{"total":"99.5","currency":"USD"}}]}`,
			wantPrice:    99.5,
			wantCurrency: "USD",
		},
		{
			name:         "unparseable candidate is skipped",
			record:       `{"name":"A","est_price":"n/a","total":"£75"}`,
			wantPrice:    75,
			wantCurrency: "GBP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := normalize.Normalize(map[string]any{"items": []any{decode(t, tt.record)}})
			if len(resp.Items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(resp.Items))
			}
			it := resp.Items[0]
			if it.Price == nil || *it.Price != tt.wantPrice {
				t.Errorf("expected price %v, got %v", tt.wantPrice, it.Price)
			}
			if it.Currency != tt.wantCurrency {
				t.Errorf("expected currency %s, got %s", tt.wantCurrency, it.Currency)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	payload := decode(t, `{
		"results": [
			{"hotel_name": "Alpha", "est_price_gbp": "120", "address": {"line1": "1 Road", "postal_code": "N1"}, "city": "London",
			 "location": {"lat": "51.5", "lng": -0.12}, "stars": "4", "images": [{"url": "https://example.com/a.jpg"}], "check_in": "2025-09-01"},
			{"hotelId": "AMS1", "title": "Beta", "rate": {"amount": 80, "currency": "eur"}, "source": "amadeus"}
		],
		"notes": ["searched London"]
	}`)

	first := normalize.Normalize(payload)
	second := normalize.Normalize(decode(t, `{"items":`+mustJSON(t, first.Items)+`}`))

	if got, want := mustJSON(t, stripRaw(second.Items)), mustJSON(t, stripRaw(first.Items)); got != want {
		t.Errorf("normalization is not idempotent:\nfirst:  %s\nsecond: %s", want, got)
	}
}

func TestNormalize_ItemFields(t *testing.T) {
	rec := decode(t, `{
		"name": "Delta",
		"address": {"street": "5 Lane", "line2": "Floor 2", "zip": "E1"},
		"address_city": "ignored",
		"geometry": {"location": {"lat": 51.1, "lng": 0.2}},
		"review_score": "8.7",
		"thumbnail": "\"https://maps.googleapis.com/maps/api/place/photo?maxwidth=400&photo_reference=REF&key=K\"",
		"room": "double"
	}`)

	resp := normalize.Normalize(map[string]any{"items": []any{rec}})
	it := resp.Items[0]

	if it.Address == nil || *it.Address != "5 Lane, Floor 2, E1" {
		t.Errorf("unexpected address: %v", it.Address)
	}
	if it.Lat == nil || *it.Lat != 51.1 || it.Lng == nil || *it.Lng != 0.2 {
		t.Errorf("unexpected coordinates: %v %v", it.Lat, it.Lng)
	}
	if it.Rating == nil || *it.Rating != 8.7 {
		t.Errorf("unexpected rating: %v", it.Rating)
	}
	if it.Stars != nil {
		t.Errorf("expected nil stars, got %v", *it.Stars)
	}
	want := "https://maps.googleapis.com/maps/api/place/photo?maxwidth=400&photoreference=REF&key=K"
	if it.Thumbnail == nil || *it.Thumbnail != want {
		t.Errorf("expected thumbnail %s, got %v", want, it.Thumbnail)
	}
	if it.Source != "hotel_search" {
		t.Errorf("expected hotel_search source, got %s", it.Source)
	}
}

func TestNormalize_Thumbnail(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   string
	}{
		{name: "images objects", record: `{"name":"A","images":[{"href":"https://x/1.jpg"}]}`, want: "https://x/1.jpg"},
		{name: "photos strings skip blanks", record: `{"name":"A","photos":["", "https://x/2.jpg"]}`, want: "https://x/2.jpg"},
		{name: "media src", record: `{"name":"A","media":[{"src":"https://x/3.jpg"}]}`, want: "https://x/3.jpg"},
		{name: "thumbnail beats images", record: `{"name":"A","image_url":"https://x/t.jpg","images":["https://x/4.jpg"]}`, want: "https://x/t.jpg"},
		{name: "none", record: `{"name":"A","images":[]}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := normalize.Normalize(map[string]any{"items": []any{decode(t, tt.record)}})
			got := resp.Items[0].Thumbnail
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil thumbnail, got %q", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestFixPhotoURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "rewrites reference parameter",
			input: "https://maps.googleapis.com/maps/api/place/photo?maxwidth=800&photo_reference=abc&key=k",
			want:  "https://maps.googleapis.com/maps/api/place/photo?maxwidth=800&photoreference=abc&key=k",
		},
		{
			name:  "first parameter",
			input: "https://maps.googleapis.com/maps/api/place/photo?photo_reference=abc",
			want:  "https://maps.googleapis.com/maps/api/place/photo?photoreference=abc",
		},
		{
			name:  "already correct",
			input: "https://maps.googleapis.com/maps/api/place/photo?photoreference=abc",
			want:  "https://maps.googleapis.com/maps/api/place/photo?photoreference=abc",
		},
		{
			name:  "unrelated host",
			input: "https://cdn.example.com/img.jpg?photo_reference=abc",
			want:  "https://cdn.example.com/img.jpg?photo_reference=abc",
		},
		{
			name:  "quoted",
			input: `'https://cdn.example.com/a.png'`,
			want:  "https://cdn.example.com/a.png",
		},
		{
			name:  "malformed",
			input: "::not a url",
			want:  "::not a url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize.FixPhotoURL(tt.input); got != tt.want {
				t.Errorf("FixPhotoURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Source(t *testing.T) {
	tests := []struct {
		record string
		want   string
	}{
		{record: `{"name":"A","source":"places"}`, want: "places"},
		{record: `{"name":"A","checkInDate":"2025-01-01"}`, want: "hotel_search"},
		{record: `{"name":"A","rate":{"amount":1}}`, want: "hotel_search"},
		{record: `{"name":"A"}`, want: "plan"},
	}

	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			resp := normalize.Normalize(map[string]any{"items": []any{decode(t, tt.record)}})
			if got := resp.Items[0].Source; got != tt.want {
				t.Errorf("expected source %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		record   string
		wantName string
	}{
		{name: "data wrapper", record: `{"data":{"name":"Inner"},"name":"Outer"}`, wantName: "Inner"},
		{name: "result wrapper", record: `{"result":{"price":5,"name":"Inner"}}`, wantName: "Inner"},
		{name: "record wins over hotel", record: `{"hotel":{"name":"Nested"},"name":"Self"}`, wantName: "Self"},
		{name: "hotel sub-object", record: `{"hotel":{"name":"Nested"},"meta":1}`, wantName: "Nested"},
		{name: "offer sub-object", record: `{"offer":{"name":"Offer"}}`, wantName: "Offer"},
		{name: "data not useful", record: `{"data":{"foo":1},"name":"Self"}`, wantName: "Self"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize.Coerce(decode(t, tt.record))
			if got["name"] != tt.wantName {
				t.Errorf("expected name %q, got %v", tt.wantName, got["name"])
			}
		})
	}
}

func TestNormalize_Meta(t *testing.T) {
	payload := decode(t, `{
		"agent": "planner",
		"plan": {"notes": ["check budget"]},
		"steps": [
			{"tool": "hotel_search", "notes": "searched", "result": {"hotels": [{"name": "A", "price": 100}, {"name": "B", "price": 300}]}},
			{"tool": "budget_filter", "output": {"content": [{"type": "json", "json": {"top": [{"name": "A"}]}}]}}
		],
		"budget": {"status": "ok", "meta": {"under_budget": 1, "total_in": 2}}
	}`)

	resp := normalize.Normalize(payload)

	if resp.Meta.Agent != "planner" {
		t.Errorf("expected agent planner, got %q", resp.Meta.Agent)
	}
	if got := strings.Join(resp.Meta.Notes, "|"); got != "check budget|searched" {
		t.Errorf("unexpected notes: %q", got)
	}
	if resp.Narrative != "check budget • searched" {
		t.Errorf("expected narrative from notes, got %q", resp.Narrative)
	}
	if resp.Meta.Budget["status"] != "ok" {
		t.Errorf("expected budget to be copied, got %v", resp.Meta.Budget)
	}

	c := resp.Meta.Counts
	if c == nil {
		t.Fatal("expected counts")
	}
	if c.Pools != 2 || c.Items != 2 {
		t.Errorf("expected 2 pools and 2 items, got %+v", c)
	}
	if c.UnderBudget == nil || *c.UnderBudget != 1 || c.TotalIn == nil || *c.TotalIn != 2 {
		t.Errorf("unexpected budget counts: %+v", c)
	}
}

func TestNormalize_BudgetCountLocations(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantUnder *int
		wantTotal *int
	}{
		{
			name:      "budget with root meta total",
			payload:   `{"budget":{"under_budget":1},"meta":{"total_in":5},"items":[{"name":"A"}]}`,
			wantUnder: intPtr(1),
			wantTotal: intPtr(5),
		},
		{
			name:      "budget_filter",
			payload:   `{"budget_filter":{"under_budget":2,"total_in":3},"items":[{"name":"A"}]}`,
			wantUnder: intPtr(2),
			wantTotal: intPtr(3),
		},
		{
			name:      "hotels.budget meta",
			payload:   `{"hotels":{"budget":{"meta":{"under_budget":4}},"items":[{"name":"A"}]}}`,
			wantUnder: intPtr(4),
		},
		{
			name:      "budget beats root meta",
			payload:   `{"budget":{"total_in":2},"meta":{"total_in":9},"items":[{"name":"A"}]}`,
			wantTotal: intPtr(2),
		},
		{
			name:      "root meta only",
			payload:   `{"meta":{"total_in":7,"under_budget":3},"items":[{"name":"A"}]}`,
			wantTotal: intPtr(7),
		},
		{
			name:      "budget before budget_filter",
			payload:   `{"budget":{"under_budget":1},"budget_filter":{"under_budget":8},"items":[{"name":"A"}]}`,
			wantUnder: intPtr(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := normalize.Normalize(decode(t, tt.payload)).Meta.Counts
			if c == nil {
				t.Fatal("expected counts")
			}
			if !equalIntPtr(c.UnderBudget, tt.wantUnder) {
				t.Errorf("under_budget = %v, want %v", fmtIntPtr(c.UnderBudget), fmtIntPtr(tt.wantUnder))
			}
			if !equalIntPtr(c.TotalIn, tt.wantTotal) {
				t.Errorf("total_in = %v, want %v", fmtIntPtr(c.TotalIn), fmtIntPtr(tt.wantTotal))
			}
		})
	}
}

func TestNormalize_PoolLocations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "hotels.hotels", payload: `{"hotels":{"hotels":[{"name":"A"}]}}`, want: "A"},
		{name: "hotels.items", payload: `{"hotels":{"items":[{"name":"A"}]}}`, want: "A"},
		{name: "hotels.results", payload: `{"hotels":{"results":[{"name":"A"}]}}`, want: "A"},
		{name: "hotels.top", payload: `{"hotels":{"top":[{"name":"A"}]}}`, want: "A"},
		{name: "hotels.candidates", payload: `{"hotels":{"candidates":[{"name":"A"}]}}`, want: "A"},
		{name: "top", payload: `{"top":[{"name":"A"}]}`, want: "A"},
		{name: "candidates", payload: `{"candidates":[{"name":"A"}]}`, want: "A"},
		{name: "ranked", payload: `{"ranked":[{"name":"A"}]}`, want: "A"},
		{name: "data", payload: `{"data":[{"name":"A"}]}`, want: "A"},
		{name: "payload", payload: `{"payload":[{"name":"A"}]}`, want: "A"},
		{
			name:    "checked in order",
			payload: `{"payload":[{"name":"P"}],"ranked":[{"name":"R"}],"hotels":{"top":[{"name":"T"}],"hotels":[{"name":"H"}]},"offers":[{"name":"O"}]}`,
			want:    "O,H,T,R,P",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := normalize.Normalize(decode(t, tt.payload))
			names := make([]string, 0, len(resp.Items))
			for _, it := range resp.Items {
				names = append(names, *it.Name)
			}
			if got := strings.Join(names, ","); got != tt.want {
				t.Errorf("items = %q, want %q", got, tt.want)
			}
			if resp.Meta.Counts == nil || resp.Meta.Counts.Pools != len(names) {
				t.Errorf("unexpected counts: %+v", resp.Meta.Counts)
			}
		})
	}
}

func TestNormalize_ExponentNumbers(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"results":[{"name":"A","price":1.2e2,"lat":5e-1,"lng":-1E-1}]}`))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		t.Fatal(err)
	}

	resp := normalize.Normalize(payload)
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	it := resp.Items[0]
	if it.Price == nil || *it.Price != 120 {
		t.Errorf("price = %v, want 120", it.Price)
	}
	if it.Lat == nil || *it.Lat != 0.5 {
		t.Errorf("lat = %v, want 0.5", it.Lat)
	}
	if it.Lng == nil || *it.Lng != -0.1 {
		t.Errorf("lng = %v, want -0.1", it.Lng)
	}
}

func TestNormalize_SingleItemFallback(t *testing.T) {
	resp := normalize.Normalize(decode(t, `{"hotel_name":"Solo","nightly_price":"95"}`))
	if len(resp.Items) != 1 || *resp.Items[0].Name != "Solo" {
		t.Fatalf("expected single item fallback, got %+v", resp.Items)
	}
	if resp.Meta.Counts == nil || resp.Meta.Counts.Pools != 0 || resp.Meta.Counts.Items != 1 {
		t.Errorf("unexpected counts: %+v", resp.Meta.Counts)
	}
}

func TestNormalizer_CustomPolicy(t *testing.T) {
	p := normalize.DefaultPolicy()
	p.DefaultCurrency = "EUR"
	p.Prices = normalize.PriceFields([]string{"price", "est_price_gbp"}, []string{"est_price_gbp"})
	n := normalize.New(p, nil)

	resp := n.Normalize(decode(t, `{"items":[{"name":"A","price":"50","est_price_gbp":"40"},{"name":"B","est_price_gbp":"40"}]}`))
	if *resp.Items[0].Price != 50 || resp.Items[0].Currency != "EUR" {
		t.Errorf("expected 50 EUR, got %v %s", *resp.Items[0].Price, resp.Items[0].Currency)
	}
	if resp.Items[1].Currency != "GBP" {
		t.Errorf("expected GBP inferred from est_price_gbp, got %s", resp.Items[1].Currency)
	}
}

func TestMerge(t *testing.T) {
	a := normalize.Normalize(decode(t, `{"items":[{"id":"H1","name":"One"}],"notes":"from a"}`))
	b := normalize.Normalize(decode(t, `{"results":[{"id":"h1","name":"Dup"},{"id":"H2","name":"Two"}],"summary":"b says hi","agent":"b"}`))

	merged := normalize.Merge(a, types.Empty(), b)

	if len(merged.Items) != 2 || *merged.Items[0].Name != "One" || *merged.Items[1].Name != "Two" {
		t.Fatalf("unexpected merged items: %s", mustJSON(t, stripRaw(merged.Items)))
	}
	if merged.Narrative != "from a" {
		t.Errorf("expected first narrative, got %q", merged.Narrative)
	}
	if merged.Meta.Agent != "b" {
		t.Errorf("expected agent b, got %q", merged.Meta.Agent)
	}
	if merged.Meta.Counts == nil || merged.Meta.Counts.Pools != 2 || merged.Meta.Counts.Items != 2 {
		t.Errorf("unexpected counts: %+v", merged.Meta.Counts)
	}

	if got := mustJSON(t, normalize.Merge()); got != emptyJSON {
		t.Errorf("expected empty merge to be canonical empty, got %s", got)
	}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("invalid fixture: %v", err)
	}
	return m
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func stripRaw(items []types.Item) []types.Item {
	out := make([]types.Item, len(items))
	for i, it := range items {
		it.Raw = nil
		out[i] = it
	}
	return out
}

func intPtr(n int) *int { return &n }

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtIntPtr(p *int) string {
	if p == nil {
		return "nil"
	}
	return strconv.Itoa(*p)
}
