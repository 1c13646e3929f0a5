// Package preprocess converts raw comment records into normalized units
// carrying a deterministic engagement coefficient. It is the arithmetic
// backbone of the scoring pipeline: the semantic tagger is never trusted
// to compute any of these numbers.
package preprocess

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// DefaultMaxUnits bounds how many comments per document reach the tagger.
const DefaultMaxUnits = 30

// Inline engagement markup: "[112赞]", "[1.2k赞]", "[1w赞]", "[1万赞]",
// and the English "[112 likes]" form. Multiplier patterns are tried first
// so "[1.2k赞]" does not match the plain-number pattern as "2".
var likePatterns = []struct {
	re   *regexp.Regexp
	mult float64
}{
	{regexp.MustCompile(`\[(\d+(?:\.\d+)?)[kK](?:赞| ?likes?)\]`), 1000},
	{regexp.MustCompile(`\[(\d+(?:\.\d+)?)[wW万](?:赞| ?likes?)\]`), 10000},
	{regexp.MustCompile(`\[(\d+)(?:赞| ?likes?)\]`), 1},
}

// ExtractLikes pulls a like count out of inline markup and returns the text
// with the markup stripped. Returns the original text and 0 when no markup
// is present.
func ExtractLikes(text string) (string, int) {
	for _, p := range likePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cleaned := strings.TrimSpace(p.re.ReplaceAllString(text, ""))
		return cleaned, int(n * p.mult)
	}
	return text, 0
}

// EngagementCoefficient is the step function over like and sub-thread
// counts. Pure; the exact steps are a scoring contract, not a heuristic
// to tune casually.
func EngagementCoefficient(likes, subComments int) float64 {
	var base float64
	switch {
	case likes > 50:
		base = 2.0
	case likes >= 20:
		base = 1.5
	case likes >= 5:
		base = 1.2
	default:
		base = 1.0
	}
	if subComments > 10 {
		base *= 1.5
	}
	return base
}

// Service normalizes raw comments for one document.
type Service struct {
	maxUnits int
}

// New creates a preprocessor. maxUnits <= 0 selects DefaultMaxUnits.
func New(maxUnits int) *Service {
	if maxUnits <= 0 {
		maxUnits = DefaultMaxUnits
	}
	return &Service{maxUnits: maxUnits}
}

// Normalize converts raw comments into ordered units, capped at maxUnits.
// Unit ids are "c0", "c1", ... by position; empty comments are skipped but
// do not shift later ids out of order. Explicit like counts win over counts
// recovered from inline markup.
func (s *Service) Normalize(comments []domain.Comment) []domain.CommentUnit {
	if len(comments) > s.maxUnits {
		comments = comments[:s.maxUnits]
	}

	units := make([]domain.CommentUnit, 0, len(comments))
	for i, c := range comments {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}

		cleaned, markupLikes := ExtractLikes(text)
		likes := c.Likes
		if likes == 0 {
			likes = markupLikes
		}
		if cleaned == "" {
			cleaned = text
		}

		units = append(units, domain.CommentUnit{
			ID:          "c" + strconv.Itoa(i),
			Text:        cleaned,
			Likes:       likes,
			SubComments: c.SubComments,
			Engagement:  EngagementCoefficient(likes, c.SubComments),
		})
	}
	return units
}

