package search

import (
	"context"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// IntentParser turns a free-text user turn into a structured search intent.
// A missing or ambiguous location yields clarify questions, never an error.
type IntentParser interface {
	Parse(ctx context.Context, input string, conv *domain.ConversationContext) (ParseResult, error)
}

// ParseResult is the parser's answer: either a usable intent or the
// questions needed to obtain one.
type ParseResult struct {
	Intent      *domain.SearchIntent
	NeedClarify bool
	Questions   []string
}

// DocumentSource searches social-content documents. A query with zero hits
// returns an empty slice and nil error; failures return an error so the
// caller can tell the two apart.
type DocumentSource interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SourceDocument, error)
}

// Tagger tags one document's normalized units, returning exactly one valid
// tag per unit id.
type Tagger interface {
	TagUnits(ctx context.Context, doc domain.SourceDocument, units []domain.CommentUnit) (map[string]domain.SemanticTag, error)
}

// Analyzer is the degraded single-pass path: full free-text reasoning over
// a whole document when the unit-by-unit tagger is unavailable.
type Analyzer interface {
	Analyze(ctx context.Context, doc domain.SourceDocument, intent domain.SearchIntent) ([]*domain.Restaurant, error)
}

// Enricher fills POI detail fields on a recommendation in place.
type Enricher interface {
	Enrich(ctx context.Context, r *domain.Restaurant, cityHint string) error
}

// Emitter publishes one progress event for the running turn. A nil Emitter
// is valid and drops everything.
type Emitter = func(typ domain.EventType, data map[string]any)
