package tagging

import (
	"context"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// Tagger produces semantic tags for the comment units of one document.
// Implementations may return fewer tags than units, unknown enum values,
// or ids that match no unit; the service repairs all of that.
type Tagger interface {
	Tag(ctx context.Context, doc domain.SourceDocument, units []domain.CommentUnit) ([]domain.SemanticTag, error)
}
