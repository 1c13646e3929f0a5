package domain

// SearchIntent is the structured form of a user request. It is immutable
// once parsed; follow-up turns that expand a prior search reuse it verbatim.
type SearchIntent struct {
	Location        string   `json:"location"`
	FoodType        string   `json:"food_type,omitempty"`
	Requirements    []string `json:"requirements,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
}

// Valid reports whether the intent carries the required location.
func (i SearchIntent) Valid() bool {
	return i.Location != ""
}

// Clone returns a deep copy so a reused intent cannot be mutated through
// a shared slice.
func (i SearchIntent) Clone() SearchIntent {
	c := i
	c.Requirements = append([]string(nil), i.Requirements...)
	c.ExcludeKeywords = append([]string(nil), i.ExcludeKeywords...)
	return c
}
