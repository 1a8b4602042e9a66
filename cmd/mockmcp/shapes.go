package main

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Payload shapes the mock can emit.
const (
	shapeFlat    = "flat"
	shapePlanner = "planner"
	shapeAmadeus = "amadeus"
)

type hotel struct {
	id       string
	name     string
	street   string
	postcode string
	lat, lng float64
	stars    int
	rating   float64
	nightly  [2]float64
}

var catalogue = []hotel{
	{"H001", "The Grand Regent", "12 Park Lane", "W1K 1AA", 51.5074, -0.1527, 5, 9.1, [2]float64{320, 480}},
	{"H002", "Riverside Spa Hotel", "4 Embankment Place", "WC2N 6NN", 51.5079, -0.1232, 4, 8.6, [2]float64{180, 260}},
	{"H003", "Kensington Court", "88 Cromwell Road", "SW7 5BT", 51.4946, -0.1845, 4, 8.2, [2]float64{150, 220}},
	{"H004", "Shoreditch Loft", "21 Rivington Street", "EC2A 3DU", 51.5265, -0.0798, 3, 7.9, [2]float64{95, 140}},
}

func price(h hotel, nights int) float64 {
	perNight := h.nightly[0] + rand.Float64()*(h.nightly[1]-h.nightly[0])
	total := perNight * float64(nights)
	return float64(int(total*100)) / 100
}

func cityOf(stay stayInput) string {
	if stay.CityCode == "" {
		return "LON"
	}
	return strings.ToUpper(stay.CityCode)
}

// buildPayload renders the catalogue in the requested shape. Unknown shapes fall back to flat.
func buildPayload(shape string, stay stayInput, query string) map[string]any {
	switch shape {
	case shapePlanner:
		return plannerPayload(stay, query)
	case shapeAmadeus:
		return amadeusPayload(stay)
	default:
		return flatPayload(stay)
	}
}

// flatPayload mimics a plain hotel search: string prices with a currency symbol.
func flatPayload(stay stayInput) map[string]any {
	nights := stay.nights()
	results := make([]any, 0, len(catalogue))
	for i, h := range catalogue {
		rec := map[string]any{
			"id":     h.id,
			"name":   h.name,
			"price":  fmt.Sprintf("£%.2f", price(h, nights)),
			"city":   cityOf(stay),
			"rating": h.rating,
			"stars":  h.stars,
			"address": map[string]any{
				"line1":       h.street,
				"postal_code": h.postcode,
			},
			"location":  map[string]any{"lat": h.lat, "lng": h.lng},
			"check_in":  stay.CheckIn,
			"check_out": stay.CheckOut,
		}
		// Every other record carries a gallery instead of a thumbnail.
		if i%2 == 0 {
			rec["thumbnail"] = fmt.Sprintf("https://img.example.com/%s.jpg", strings.ToLower(h.id))
		} else {
			rec["photos"] = []any{map[string]any{"url": fmt.Sprintf("https://img.example.com/%s-1.jpg", strings.ToLower(h.id))}}
		}
		results = append(results, rec)
	}

	return map[string]any{
		"results":   results,
		"narrative": fmt.Sprintf("%d hotels found in %s for %d night(s).", len(results), cityOf(stay), nights),
	}
}

// plannerPayload mimics a planner trace with a search step and a budget filter step.
func plannerPayload(stay stayInput, query string) map[string]any {
	nights := stay.nights()
	limit := stay.MaxPriceGBP * float64(nights)

	offers := []any{}
	under := 0
	for _, h := range catalogue {
		total := price(h, nights)
		if limit > 0 && total > limit {
			continue
		}
		under++
		offers = append(offers, map[string]any{
			"hotel_id":      h.id,
			"hotel_name":    h.name,
			"est_price_gbp": total,
			"check_in":      stay.CheckIn,
			"check_out":     stay.CheckOut,
			"rating":        h.rating,
		})
	}

	notes := []any{fmt.Sprintf("searched %s", cityOf(stay))}
	if query != "" {
		notes = append(notes, "query: "+query)
	}

	return map[string]any{
		"agent": "planner",
		"notes": notes,
		"steps": []any{
			map[string]any{
				"tool":   "hotel_search",
				"result": map[string]any{"city_code": cityOf(stay), "count": len(catalogue)},
			},
			map[string]any{
				"tool":   "budget_filter",
				"notes":  []any{fmt.Sprintf("%d of %d within budget", under, len(catalogue))},
				"result": map[string]any{"offers": offers},
			},
		},
		"budget": map[string]any{
			"max_price_gbp": stay.MaxPriceGBP,
			"under_budget":  under,
			"total_in":      len(catalogue),
		},
	}
}

// amadeusPayload mimics an Amadeus-style offers response priced in EUR.
func amadeusPayload(stay stayInput) map[string]any {
	nights := stay.nights()
	data := make([]any, 0, len(catalogue))
	for _, h := range catalogue {
		data = append(data, map[string]any{
			"type": "hotel-offers",
			"hotel": map[string]any{
				"hotelId":   h.id,
				"name":      strings.ToUpper(h.name),
				"cityCode":  cityOf(stay),
				"latitude":  h.lat,
				"longitude": h.lng,
				"rating":    fmt.Sprint(h.stars),
			},
			"offers": []any{
				map[string]any{
					"checkInDate":  stay.CheckIn,
					"checkOutDate": stay.CheckOut,
					"price": map[string]any{
						"currency": "EUR",
						"total":    fmt.Sprintf("%.2f", price(h, nights)*1.17),
					},
				},
			},
		})
	}
	return map[string]any{"data": data}
}
