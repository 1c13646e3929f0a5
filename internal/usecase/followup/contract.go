package followup

import (
	"context"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// Interpreter is the semantic fallback for turns no rule matches. It sees
// the current shop list and dialogue history and returns a structured
// action; it may answer with a new-search action to hand control back to
// the fresh-search path.
type Interpreter interface {
	Interpret(ctx context.Context, input string, conv *domain.ConversationContext) (domain.FollowUp, error)
}
