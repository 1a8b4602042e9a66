package normalize

// Accessor reads one candidate value for an attribute from a raw record.
type Accessor struct {
	Path string
	Get  func(rec map[string]any) any
}

// Field returns an Accessor for a dotted path.
func Field(path string) Accessor {
	return Accessor{
		Path: path,
		Get: func(rec map[string]any) any {
			return Lookup(rec, path)
		},
	}
}

// Fields builds accessors for each path, preserving order.
func Fields(paths ...string) []Accessor {
	out := make([]Accessor, 0, len(paths))
	for _, p := range paths {
		out = append(out, Field(p))
	}
	return out
}

// PriceAccessor is a price candidate. GBP marks fields that are always
// denominated in pounds, which lets the currency be inferred.
type PriceAccessor struct {
	Accessor
	GBP bool
}

// Policy is the precedence table used by the normalizer. Each slice is tried
// in order and the first usable value wins.
type Policy struct {
	IDs        []Accessor
	Names      []Accessor
	Prices     []PriceAccessor
	Currencies []Accessor

	AddressLine1    []Accessor
	AddressLine2    []Accessor
	AddressPostal   []Accessor
	AddressFreeform []Accessor
	Cities          []Accessor

	Lats    []Accessor
	Lngs    []Accessor
	Stars   []Accessor
	Ratings []Accessor

	Thumbnails []Accessor
	Galleries  []Accessor

	CheckIns  []Accessor
	CheckOuts []Accessor

	// StayFields mark a record as coming from a hotel search rather than a plan.
	StayFields []string

	DefaultCurrency string
	SearchSource    string
	PlanSource      string
}

// Defaults used when a policy leaves them blank.
const (
	DefaultCurrency = "GBP"
	SourceSearch    = "hotel_search"
	SourcePlan      = "plan"
)

// DefaultPriceFields is the default price precedence.
var DefaultPriceFields = []string{
	"price_gbp_norm",
	"est_price_gbp",
	"est_price",
	"price.total",
	"price.amount",
	"price",
	"total",
	"amount",
	"rate.amount",
	"nightly_price",
	"pricing.total",
	"offers.0.price.total",
}

// DefaultGBPPriceFields lists the price fields that imply GBP.
var DefaultGBPPriceFields = []string{"price_gbp_norm", "est_price_gbp"}

// DefaultPolicy returns the standard precedence tables.
func DefaultPolicy() Policy {
	return Policy{
		IDs:   Fields("id", "hotel_id", "hotelId", "property_id", "place_id", "offer_id", "offerId", "hotel.hotelId", "hotel.id"),
		Names: Fields("name", "hotel_name", "hotelName", "title", "property_name", "hotel.name"),
		Prices: PriceFields(DefaultPriceFields, DefaultGBPPriceFields),
		Currencies: Fields("currency", "price.currency", "rate.currency", "pricing.currency", "offers.0.price.currency"),

		AddressLine1:    Fields("address.line1", "address.street", "address.lines.0", "address_line1", "street"),
		AddressLine2:    Fields("address.line2", "address_line2"),
		AddressPostal:   Fields("address.postal_code", "address.postalCode", "address.zip", "postal_code", "zip"),
		AddressFreeform: Fields("address", "formatted_address", "full_address", "location.address"),
		Cities:          Fields("city", "address.city", "address.cityName", "location.city", "city_name", "cityName", "hotel.cityCode", "city_code"),

		Lats: Fields("lat", "latitude", "location.lat", "location.latitude", "coordinates.lat", "coordinates.latitude",
			"geometry.location.lat", "geoCode.latitude", "hotel.latitude"),
		Lngs: Fields("lon", "lng", "longitude", "location.lng", "location.lon", "location.longitude",
			"coordinates.lng", "coordinates.lon", "coordinates.longitude", "geometry.location.lng", "geoCode.longitude", "hotel.longitude"),
		Stars:   Fields("stars", "star_rating", "starRating", "hotel_class", "hotel.rating"),
		Ratings: Fields("rating", "review_score", "reviewScore", "user_rating", "score"),

		Thumbnails: Fields("thumbnail", "thumbnail_url", "image", "image_url"),
		Galleries:  Fields("images", "photos", "media"),

		CheckIns:  Fields("check_in", "checkIn", "checkInDate"),
		CheckOuts: Fields("check_out", "checkOut", "checkOutDate"),

		StayFields: []string{"check_in", "check_out", "checkIn", "checkOut", "checkInDate", "checkOutDate", "room", "rate", "offers"},

		DefaultCurrency: DefaultCurrency,
		SearchSource:    SourceSearch,
		PlanSource:      SourcePlan,
	}
}

// PriceFields builds price accessors, flagging those listed in gbp.
func PriceFields(paths, gbp []string) []PriceAccessor {
	isGBP := make(map[string]bool, len(gbp))
	for _, p := range gbp {
		isGBP[p] = true
	}

	out := make([]PriceAccessor, 0, len(paths))
	for _, p := range paths {
		out = append(out, PriceAccessor{Accessor: Field(p), GBP: isGBP[p]})
	}
	return out
}

func (p Policy) withDefaults() Policy {
	if p.DefaultCurrency == "" {
		p.DefaultCurrency = DefaultCurrency
	}
	if p.SearchSource == "" {
		p.SearchSource = SourceSearch
	}
	if p.PlanSource == "" {
		p.PlanSource = SourcePlan
	}
	return p
}

func firstString(rec map[string]any, accs []Accessor) *string {
	for _, acc := range accs {
		if s := String(acc.Get(rec)); s != nil {
			return s
		}
	}
	return nil
}

func firstNumber(rec map[string]any, accs []Accessor) *float64 {
	for _, acc := range accs {
		if n := ParseNumber(acc.Get(rec)); n != nil {
			return n
		}
	}
	return nil
}
