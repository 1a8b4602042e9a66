package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// numberToken matches the first signed or unsigned integer or decimal in a string.
// Both '.' and ',' are accepted as the decimal separator.
var numberToken = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// ParseNumber extracts a finite number from v.
// Strings may be quoted, prefixed with a currency symbol or suffixed with a unit.
// A json.Number is read whole, exponent included.
// It returns nil for anything it cannot read.
func ParseNumber(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return finite(float64(n))
	case int32:
		return finite(float64(n))
	case int64:
		return finite(float64(n))
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil
		}
		f, _ := d.Float64()
		return finite(f)
	case string:
		return parseNumberString(n)
	default:
		return nil
	}
}

func parseNumberString(s string) *float64 {
	tok := numberToken.FindString(unquote(strings.TrimSpace(s)))
	if tok == "" {
		return nil
	}
	tok = strings.TrimPrefix(strings.Replace(tok, ",", ".", 1), "+")

	d, err := decimal.NewFromString(tok)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return finite(f)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// String returns v as a trimmed, non-empty string.
// Integral numbers are formatted without an exponent so numeric ids survive.
func String(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// Lookup walks a dotted path such as "price.total" or "offers.0.price.total".
// Missing or mistyped intermediate values yield nil.
func Lookup(rec map[string]any, path string) any {
	var cur any = rec
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil
			}
			cur = c[idx]
		default:
			return nil
		}
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// unquote strips one layer of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 60

// Slugify lowercases s, collapses runs of non-alphanumerics into one hyphen,
// trims hyphens and truncates to 60 characters.
func Slugify(s string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}
