package scoring

import (
	"fmt"
	"sort"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// Policy holds every constant of the deterministic scoring arithmetic.
// Keeping them in one struct lets the config file tune thresholds without
// touching the formulas.
type Policy struct {
	StrongIdentityCoeff float64 `yaml:"strong_identity_coeff"`
	MediumIdentityCoeff float64 `yaml:"medium_identity_coeff"`

	CorrectionCoeff float64 `yaml:"correction_coeff"`
	NegativeCoeff   float64 `yaml:"negative_coeff"`

	// definitely_local requires at least DefinitelyLocalMinStrong strong
	// identity mentions and a total weight above DefinitelyLocalMinTotal.
	DefinitelyLocalMinStrong  int     `yaml:"definitely_local_min_strong"`
	DefinitelyLocalMinTotal   float64 `yaml:"definitely_local_min_total"`
	DefinitelyLocalConfidence float64 `yaml:"definitely_local_confidence"`

	LikelyLocalMinStrong  int     `yaml:"likely_local_min_strong"`
	LikelyLocalMinTotal   float64 `yaml:"likely_local_min_total"`
	LikelyLocalConfidence float64 `yaml:"likely_local_confidence"`

	WanghongConfidence float64 `yaml:"wanghong_confidence"`
	UnknownConfidence  float64 `yaml:"unknown_confidence"`

	// TopUnits caps how many highest-weight units are kept per shop for
	// explainability.
	TopUnits int `yaml:"top_units"`
}

// DefaultPolicy returns the production constants.
func DefaultPolicy() Policy {
	return Policy{
		StrongIdentityCoeff:       3.0,
		MediumIdentityCoeff:       2.0,
		CorrectionCoeff:           3.0,
		NegativeCoeff:             1.5,
		DefinitelyLocalMinStrong:  2,
		DefinitelyLocalMinTotal:   10,
		DefinitelyLocalConfidence: 0.9,
		LikelyLocalMinStrong:      1,
		LikelyLocalMinTotal:       5,
		LikelyLocalConfidence:     0.75,
		WanghongConfidence:        0.6,
		UnknownConfidence:         0.5,
		TopUnits:                  3,
	}
}

// Engine computes unit weights, per-shop aggregates, and classifications.
// All methods are pure arithmetic over already-tagged input.
type Engine struct {
	policy Policy
}

// New creates an engine. A zero-value policy selects DefaultPolicy.
func New(policy Policy) *Engine {
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	return &Engine{policy: policy}
}

// Score computes the weight of one unit from its tag:
// engagement x identity x content. A positive sentiment carries no
// multiplier of its own; the correction coefficient replaces, not stacks
// with, the negative one.
func (e *Engine) Score(unit domain.CommentUnit, tag domain.SemanticTag) domain.UnitScore {
	identity := 1.0
	switch tag.Identity {
	case domain.IdentityStrong:
		identity = e.policy.StrongIdentityCoeff
	case domain.IdentityMedium:
		identity = e.policy.MediumIdentityCoeff
	}

	content := 1.0
	switch {
	case tag.IsCorrection:
		content = e.policy.CorrectionCoeff
	case tag.Sentiment == domain.SentimentNegative:
		content = e.policy.NegativeCoeff
	}

	return domain.UnitScore{
		UnitID:        unit.ID,
		Text:          unit.Text,
		Weight:        unit.Engagement * identity * content,
		Engagement:    unit.Engagement,
		IdentityCoeff: identity,
		ContentCoeff:  content,
		Identity:      tag.Identity,
		Sentiment:     tag.Sentiment,
		Correction:    tag.IsCorrection,
		Shops:         tag.Shops,
	}
}

// ScoreAll scores every unit against its tag, substituting a neutral tag
// for units the tagger failed to cover.
func (e *Engine) ScoreAll(units []domain.CommentUnit, tags map[string]domain.SemanticTag) []domain.UnitScore {
	scores := make([]domain.UnitScore, 0, len(units))
	for _, u := range units {
		tag, ok := tags[u.ID]
		if !ok {
			tag = domain.EmptyTag(u.ID)
		}
		scores = append(scores, e.Score(u, tag))
	}
	return scores
}

// Aggregate groups unit scores by normalized shop name. Units that name no
// shop contribute to no aggregate. The result is ordered by total weight
// descending, name ascending on ties, so equal inputs always produce equal
// output.
func (e *Engine) Aggregate(scores []domain.UnitScore) []domain.ShopScore {
	byKey := make(map[string]*domain.ShopScore)
	for _, s := range scores {
		for _, shop := range s.Shops {
			key := domain.NormalizeShopName(shop)
			if key == "" {
				continue
			}
			agg, ok := byKey[key]
			if !ok {
				agg = &domain.ShopScore{Name: shop}
				byKey[key] = agg
			}

			agg.Total += s.Weight
			agg.Mentions++
			switch s.Sentiment {
			case domain.SentimentPositive:
				agg.Positive++
			case domain.SentimentNegative:
				agg.Negative++
			}
			if s.Identity == domain.IdentityStrong {
				agg.StrongSignals++
			}
			if s.Correction {
				agg.Corrections++
			}
			agg.TopUnits = append(agg.TopUnits, s)
		}
	}

	out := make([]domain.ShopScore, 0, len(byKey))
	for _, agg := range byKey {
		sort.SliceStable(agg.TopUnits, func(i, j int) bool {
			return agg.TopUnits[i].Weight > agg.TopUnits[j].Weight
		})
		if e.policy.TopUnits > 0 && len(agg.TopUnits) > e.policy.TopUnits {
			agg.TopUnits = agg.TopUnits[:e.policy.TopUnits]
		}
		agg.Reasons = reasons(agg)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Classify maps a shop aggregate to a verdict. Rules are checked from most
// to least trustworthy; the first match wins.
func (e *Engine) Classify(s domain.ShopScore) domain.Verdict {
	p := e.policy
	switch {
	case s.StrongSignals >= p.DefinitelyLocalMinStrong && s.Total > p.DefinitelyLocalMinTotal:
		return domain.Verdict{
			Class:         domain.DefinitelyLocal,
			Confidence:    p.DefinitelyLocalConfidence,
			Reasons:       s.Reasons,
			LocalMentions: true,
		}
	case s.StrongSignals >= p.LikelyLocalMinStrong && s.Total > p.LikelyLocalMinTotal:
		return domain.Verdict{
			Class:         domain.LikelyLocal,
			Confidence:    p.LikelyLocalConfidence,
			Reasons:       s.Reasons,
			LocalMentions: true,
		}
	case s.Negative > s.Positive:
		return domain.Verdict{
			Class:      domain.LikelyWanghong,
			Confidence: p.WanghongConfidence,
			Reasons:    s.Reasons,
		}
	default:
		return domain.Verdict{
			Class:      domain.ClassUnknown,
			Confidence: p.UnknownConfidence,
			Reasons:    s.Reasons,
		}
	}
}

func reasons(s *domain.ShopScore) []string {
	var out []string
	if s.StrongSignals > 0 {
		out = append(out, fmt.Sprintf("%d条明确本地人身份评论", s.StrongSignals))
	}
	if s.Corrections > 0 {
		out = append(out, fmt.Sprintf("%d条纠错类评论指向该店", s.Corrections))
	}
	if s.Positive > 0 {
		out = append(out, fmt.Sprintf("%d条正面评价", s.Positive))
	}
	if s.Negative > s.Positive {
		out = append(out, fmt.Sprintf("负面评价(%d)多于正面(%d)", s.Negative, s.Positive))
	}
	return out
}
