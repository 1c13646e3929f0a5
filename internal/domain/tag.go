package domain

// Identity is the semantic signal of how strongly a comment's author reads
// as a genuine local resident.
type Identity string

// Identity levels.
const (
	IdentityNone   Identity = "none"
	IdentityMedium Identity = "medium"
	IdentityStrong Identity = "strong"
)

// ParseIdentity validates an identity value from the tagger. Unknown values
// degrade to IdentityNone; the tagger is untrusted input.
func ParseIdentity(s string) Identity {
	switch Identity(s) {
	case IdentityMedium, IdentityStrong:
		return Identity(s)
	default:
		return IdentityNone
	}
}

// Sentiment is the tone of a comment.
type Sentiment string

// Sentiment values.
const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment validates a sentiment value from the tagger, defaulting
// unknown values to SentimentNeutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNegative:
		return Sentiment(s)
	default:
		return SentimentNeutral
	}
}

// SemanticTag is the tagger's structured judgment for one comment unit.
type SemanticTag struct {
	UnitID       string    `json:"id"`
	Identity     Identity  `json:"identity"`
	Sentiment    Sentiment `json:"sentiment"`
	IsCorrection bool      `json:"is_correction"`
	Shops        []string  `json:"mentioned_shops,omitempty"`
}

// EmptyTag is the safe default used when the tagger omitted a unit: the unit
// stays in the list but contributes no shop evidence.
func EmptyTag(unitID string) SemanticTag {
	return SemanticTag{UnitID: unitID, Identity: IdentityNone, Sentiment: SentimentNeutral}
}
