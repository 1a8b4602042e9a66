package normalize

var hotelKeys = []string{"name", "hotel_name", "hotelName", "title", "property_name"}

var offerKeys = []string{
	"price", "est_price", "est_price_gbp", "price_gbp_norm",
	"total", "amount", "rate", "nightly_price", "pricing", "offers",
}

// LooksLikeHotel reports whether rec carries a name-like field.
func LooksLikeHotel(rec map[string]any) bool {
	return hasAny(rec, hotelKeys)
}

// LooksLikeOffer reports whether rec carries a price-like field.
func LooksLikeOffer(rec map[string]any) bool {
	return hasAny(rec, offerKeys)
}

func looksUseful(rec map[string]any) bool {
	return LooksLikeHotel(rec) || LooksLikeOffer(rec)
}

func hasAny(rec map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := rec[k]; ok {
			return true
		}
	}
	return false
}

// Coerce unwraps at most one level of wrapping around a hotel or offer record.
// A record that already looks like a hotel or offer is returned unchanged,
// even when it also carries a nested hotel object.
func Coerce(rec map[string]any) map[string]any {
	for _, k := range []string{"data", "result"} {
		if inner, ok := asMap(rec[k]); ok && looksUseful(inner) {
			return inner
		}
	}
	if looksUseful(rec) {
		return rec
	}
	for _, k := range []string{"hotel", "offer"} {
		if inner, ok := asMap(rec[k]); ok {
			return inner
		}
	}
	return rec
}
