package domain

// Classification is the promoted-vs-genuine verdict for a shop.
type Classification string

// Classification values, ordered from most to least trustworthy.
const (
	DefinitelyLocal    Classification = "definitely_local"
	LikelyLocal        Classification = "likely_local"
	ClassUnknown       Classification = "unknown"
	LikelyWanghong     Classification = "likely_wanghong"
	DefinitelyWanghong Classification = "definitely_wanghong"
)

// ParseClassification validates a classification from an external source,
// defaulting unknown values to ClassUnknown.
func ParseClassification(s string) Classification {
	switch Classification(s) {
	case DefinitelyLocal, LikelyLocal, LikelyWanghong, DefinitelyWanghong:
		return Classification(s)
	default:
		return ClassUnknown
	}
}

// Weight ranks classifications for the "pick one for me" follow-up.
func (c Classification) Weight() int {
	switch c {
	case DefinitelyLocal:
		return 5
	case LikelyLocal:
		return 4
	case LikelyWanghong:
		return 1
	case DefinitelyWanghong:
		return 0
	default:
		return 2
	}
}

// Wanghong reports whether the classification marks a promoted venue.
func (c Classification) Wanghong() bool {
	return c == DefinitelyWanghong || c == LikelyWanghong
}

// Verdict is the classification plus its numeric confidence and supporting
// reasons.
type Verdict struct {
	Class         Classification `json:"class"`
	Confidence    float64        `json:"confidence"`
	Reasons       []string       `json:"reasons,omitempty"`
	LocalMentions bool           `json:"local_mentions,omitempty"`
}

// DishNote is a named dish with the reason it is recommended or warned
// against.
type DishNote struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// ShopStats is the coarse at-a-glance rating block filled by enrichment.
type ShopStats struct {
	Flavor string `json:"flavor,omitempty"`
	Cost   string `json:"cost,omitempty"`
	Wait   string `json:"wait,omitempty"`
	Env    string `json:"env,omitempty"`
}

// POIRecord holds map-provider details for a shop.
type POIRecord struct {
	Address string   `json:"address,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Rating  string   `json:"rating,omitempty"`
	City    string   `json:"city,omitempty"`
	Photos  []string `json:"photos,omitempty"`
}

// Restaurant is one recommendation. Created during merge/cross-validation;
// confidence-adjustment rules mutate it; it is never deleted, only marked
// not recommended with a filter reason.
type Restaurant struct {
	Name        string   `json:"name"`
	Location    string   `json:"location,omitempty"`
	Features    []string `json:"features,omitempty"`
	SourceDocs  []string `json:"source_docs,omitempty"`
	Confidence  float64  `json:"confidence"`
	Verdict     *Verdict `json:"verdict,omitempty"`
	Recommended bool     `json:"recommended"`
	FilterReason string  `json:"filter_reason,omitempty"`

	// Enrichment fields, filled by the POI collaborator and the analyzer.
	POI     *POIRecord `json:"poi,omitempty"`
	Pros    []string   `json:"pros,omitempty"`
	Cons    []string   `json:"cons,omitempty"`
	MustTry []DishNote `json:"must_try,omitempty"`
	Avoid   []DishNote `json:"avoid,omitempty"`
	Stats   *ShopStats `json:"stats,omitempty"`
	Tags    []string   `json:"tags,omitempty"`
}

// Key returns the normalized merge key for this restaurant.
func (r *Restaurant) Key() string {
	return NormalizeShopName(r.Name)
}
