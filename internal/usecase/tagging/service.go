package tagging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// Service calls the tagger and repairs its output so downstream scoring
// only ever sees one valid tag per unit, keyed by unit id.
type Service struct {
	tagger Tagger
	logger *zap.Logger
}

// New creates a tagging service.
func New(tagger Tagger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tagger: tagger, logger: logger}
}

// TagUnits tags every unit of one document. Units the tagger missed get a
// neutral tag; tags for unknown unit ids are dropped; on duplicate ids the
// first tag wins. Enum values are re-validated even though the transport
// already parses them, so a misbehaving implementation cannot smuggle an
// invalid value into the arithmetic.
func (s *Service) TagUnits(ctx context.Context, doc domain.SourceDocument, units []domain.CommentUnit) (map[string]domain.SemanticTag, error) {
	out := make(map[string]domain.SemanticTag, len(units))
	if len(units) == 0 {
		return out, nil
	}

	raw, err := s.tagger.Tag(ctx, doc, units)
	if err != nil {
		return nil, fmt.Errorf("%w: tag document %s: %w", domain.ErrTaggerUnavailable, doc.ID, err)
	}

	known := make(map[string]bool, len(units))
	for _, u := range units {
		known[u.ID] = true
	}

	var dropped, duplicates int
	for _, t := range raw {
		if !known[t.UnitID] {
			dropped++
			continue
		}
		if _, ok := out[t.UnitID]; ok {
			duplicates++
			continue
		}
		out[t.UnitID] = sanitize(t)
	}

	var filled int
	for _, u := range units {
		if _, ok := out[u.ID]; !ok {
			out[u.ID] = domain.EmptyTag(u.ID)
			filled++
		}
	}

	if dropped > 0 || duplicates > 0 || filled > 0 {
		s.logger.Debug("repaired tagger output",
			zap.String("doc_id", doc.ID),
			zap.Int("dropped", dropped),
			zap.Int("duplicates", duplicates),
			zap.Int("filled", filled),
		)
	}
	return out, nil
}

func sanitize(t domain.SemanticTag) domain.SemanticTag {
	t.Identity = domain.ParseIdentity(string(t.Identity))
	t.Sentiment = domain.ParseSentiment(string(t.Sentiment))

	shops := t.Shops[:0]
	for _, shop := range t.Shops {
		if shop = strings.TrimSpace(shop); shop != "" {
			shops = append(shops, shop)
		}
	}
	if len(shops) == 0 {
		shops = nil
	}
	t.Shops = shops
	return t
}
