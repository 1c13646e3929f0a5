package domain

import "strings"

// UnitScore is the deterministic weight of one comment unit, with the three
// factors retained for explainability.
type UnitScore struct {
	UnitID        string    `json:"unit_id"`
	Text          string    `json:"text"`
	Weight        float64   `json:"weight"`
	Engagement    float64   `json:"engagement"`
	IdentityCoeff float64   `json:"identity_coeff"`
	ContentCoeff  float64   `json:"content_coeff"`
	Identity      Identity  `json:"identity"`
	Sentiment     Sentiment `json:"sentiment"`
	Correction    bool      `json:"correction,omitempty"`
	Shops         []string  `json:"shops,omitempty"`
}

// ShopScore aggregates unit scores for one shop across a document.
// StrongSignals counts strong-identity mentions; Corrections counts
// correction comments.
type ShopScore struct {
	Name          string      `json:"name"`
	Total         float64     `json:"total"`
	Mentions      int         `json:"mentions"`
	Positive      int         `json:"positive"`
	Negative      int         `json:"negative"`
	StrongSignals int         `json:"strong_signals"`
	Corrections   int         `json:"corrections"`
	TopUnits      []UnitScore `json:"top_units,omitempty"`
	Reasons       []string    `json:"reasons,omitempty"`
}

// NormalizeShopName produces the merge key for shop-name equality:
// whitespace trimmed and collapsed, case-insensitive. Merging is exact on
// the key, never fuzzy, so "Old Store " equals "old store" but "Old Store"
// does not equal "Old Store Branch 2".
func NormalizeShopName(name string) string {
	fields := strings.Fields(strings.ReplaceAll(name, "　", " "))
	return strings.ToLower(strings.Join(fields, " "))
}
