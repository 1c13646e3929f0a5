package followup

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// shortInputRunes is the length under which an unmatched turn is checked
// against known shop names before escalating to the interpreter.
const shortInputRunes = 20

type rule struct {
	typ     domain.FollowUpType
	pattern *regexp.Regexp
}

// Rules are checked in order; the first match wins and its capture group,
// if any, becomes the action target. Cheap deterministic matching runs
// before any interpreter call.
var rules = []rule{
	{domain.FollowUpExclude, regexp.MustCompile(`排除(.+)`)},
	{domain.FollowUpExclude, regexp.MustCompile(`不要(.+?)了`)},
	{domain.FollowUpExclude, regexp.MustCompile(`去掉(.+)`)},
	{domain.FollowUpExclude, regexp.MustCompile(`别推荐(.+)`)},

	{domain.FollowUpCategory, regexp.MustCompile(`只要(.+)`)},
	{domain.FollowUpCategory, regexp.MustCompile(`只看(.+)`)},
	{domain.FollowUpCategory, regexp.MustCompile(`换成(.+)`)},
	{domain.FollowUpCategory, regexp.MustCompile(`(火锅|川菜|烧烤|日料|西餐|面|粉)的`)},

	{domain.FollowUpLocation, regexp.MustCompile(`换个(地方|区域|城市)`)},
	{domain.FollowUpLocation, regexp.MustCompile(`(.+?(?:区|路|街|附近))的`)},

	{domain.FollowUpExpand, regexp.MustCompile(`还有(?:吗|其他|更多)`)},
	{domain.FollowUpExpand, regexp.MustCompile(`多找(?:几家|一些)`)},
	{domain.FollowUpExpand, regexp.MustCompile(`继续(?:找|搜)`)},
	{domain.FollowUpExpand, regexp.MustCompile(`再来(?:几个|一些)`)},
	{domain.FollowUpExpand, regexp.MustCompile(`不够`)},

	{domain.FollowUpDetail, regexp.MustCompile(`(.+?)(?:怎么样|好不好|推荐吗)`)},
	{domain.FollowUpDetail, regexp.MustCompile(`(.+?)(?:在哪|地址|位置)`)},
	{domain.FollowUpDetail, regexp.MustCompile(`(.+?)(?:什么菜|推荐菜)`)},
	{domain.FollowUpDetail, regexp.MustCompile(`介绍一下(.+)`)},
	{domain.FollowUpDetail, regexp.MustCompile(`详细说说(.+)`)},

	{domain.FollowUpConfirm, regexp.MustCompile(`就(?:这个|这家|它)了`)},
	{domain.FollowUpConfirm, regexp.MustCompile(`帮我选`)},
	{domain.FollowUpConfirm, regexp.MustCompile(`推荐(?:一家|哪家)`)},
	{domain.FollowUpConfirm, regexp.MustCompile(`去哪家`)},
}

// Classifier decides what a conversation turn means relative to the
// session's already-computed results.
type Classifier struct {
	interp Interpreter
	logger *zap.Logger
}

// New creates a classifier. A nil interpreter disables the semantic
// fallback; unmatched turns then classify as a new search.
func New(interp Interpreter, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{interp: interp, logger: logger}
}

// Classify maps a turn to a follow-up action. The first turn of a session
// is always a new search. Rule matches never touch the interpreter, so
// identical (input, context) pairs always classify identically.
func (c *Classifier) Classify(ctx context.Context, input string, conv *domain.ConversationContext) domain.FollowUp {
	if conv == nil || conv.TurnCount == 0 {
		return domain.FollowUp{Type: domain.FollowUpNewSearch}
	}

	input = strings.TrimSpace(input)
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		var target string
		if len(m) > 1 {
			target = strings.TrimSpace(m[1])
		}
		return domain.FollowUp{Type: r.typ, Target: target}
	}

	// A short turn that names a known shop is a detail question about it.
	if utf8.RuneCountInString(input) < shortInputRunes {
		for _, shop := range conv.AllShops() {
			if strings.Contains(input, shop.Name) || strings.Contains(strings.ToLower(input), shop.Key()) {
				return domain.FollowUp{Type: domain.FollowUpDetail, Target: shop.Name}
			}
		}
	}

	if c.interp == nil {
		return domain.FollowUp{Type: domain.FollowUpNewSearch}
	}
	fu, err := c.interp.Interpret(ctx, input, conv)
	if err != nil {
		c.logger.Warn("follow-up interpreter failed, treating turn as new search", zap.Error(err))
		return domain.FollowUp{Type: domain.FollowUpNewSearch}
	}
	return fu
}
