package normalize

import (
	"strings"

	"github.com/alex-user-go/luxsearch/internal/search/types"
)

// NormalizeItem maps a coerced record onto the canonical item.
// It returns nil when neither a name nor an id can be resolved.
func (n *Normalizer) NormalizeItem(rec map[string]any) *types.Item {
	if rec == nil {
		return nil
	}
	p := n.policy

	name := firstString(rec, p.Names)
	id := firstString(rec, p.IDs)
	if id == nil && name != nil {
		id = synthesizeID(rec, *name, p)
	}
	if id == nil && name == nil {
		return nil
	}

	price, gbp := resolvePrice(rec, p.Prices)

	return &types.Item{
		ID:        id,
		Name:      name,
		Price:     price,
		Currency:  resolveCurrency(rec, p, gbp),
		Address:   resolveAddress(rec, p),
		City:      firstString(rec, p.Cities),
		Lat:       firstNumber(rec, p.Lats),
		Lng:       firstNumber(rec, p.Lngs),
		Stars:     firstNumber(rec, p.Stars),
		Rating:    firstNumber(rec, p.Ratings),
		Thumbnail: resolveThumbnail(rec, p),
		Source:    resolveSource(rec, p),
		Raw:       rec,
	}
}

func synthesizeID(rec map[string]any, name string, p Policy) *string {
	parts := []string{name}
	if s := firstString(rec, p.CheckIns); s != nil {
		parts = append(parts, *s)
	}
	if s := firstString(rec, p.CheckOuts); s != nil {
		parts = append(parts, *s)
	}
	slug := Slugify(strings.Join(parts, "-"))
	if slug == "" {
		return nil
	}
	return &slug
}

func resolvePrice(rec map[string]any, accs []PriceAccessor) (*float64, bool) {
	for _, acc := range accs {
		if v := ParseNumber(acc.Get(rec)); v != nil {
			return v, acc.GBP
		}
	}
	return nil, false
}

func resolveCurrency(rec map[string]any, p Policy, gbp bool) string {
	if s := firstString(rec, p.Currencies); s != nil {
		return strings.ToUpper(*s)
	}
	if gbp {
		return "GBP"
	}
	return p.DefaultCurrency
}

func resolveAddress(rec map[string]any, p Policy) *string {
	var parts []string
	for _, accs := range [][]Accessor{p.AddressLine1, p.AddressLine2, p.AddressPostal} {
		if s := firstString(rec, accs); s != nil {
			parts = append(parts, *s)
		}
	}
	if len(parts) > 0 {
		joined := strings.Join(parts, ", ")
		return &joined
	}
	// "address" may be an object here, in which case String skips it.
	return firstString(rec, p.AddressFreeform)
}

var urlKeys = []string{"url", "href", "src", "uri"}

func resolveThumbnail(rec map[string]any, p Policy) *string {
	var pool []any
	for _, acc := range p.Thumbnails {
		if v := acc.Get(rec); v != nil {
			pool = append(pool, v)
		}
	}
	for _, acc := range p.Galleries {
		if list, ok := acc.Get(rec).([]any); ok {
			pool = append(pool, list...)
		}
	}

	for _, c := range pool {
		if s := imageURL(c); s != "" {
			fixed := FixPhotoURL(s)
			return &fixed
		}
	}
	return nil
}

func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range urlKeys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

const placesPhotoEndpoint = "maps.googleapis.com/maps/api/place/photo"

var photoParamFix = strings.NewReplacer(
	"?photo_reference=", "?photoreference=",
	"&photo_reference=", "&photoreference=",
)

// FixPhotoURL strips wrapping quotes and renames the photo_reference query
// parameter on Places photo URLs to photoreference, which is the name the
// endpoint accepts. Any other URL is returned as is.
func FixPhotoURL(s string) string {
	s = unquote(strings.TrimSpace(s))
	if !strings.Contains(s, placesPhotoEndpoint) {
		return s
	}
	return photoParamFix.Replace(s)
}

func resolveSource(rec map[string]any, p Policy) string {
	if s := String(rec["source"]); s != nil {
		return *s
	}
	for _, k := range p.StayFields {
		if _, ok := rec[k]; ok {
			return p.SearchSource
		}
	}
	return p.PlanSource
}
