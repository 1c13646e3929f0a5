package search

import (
	"strings"
	"unicode/utf8"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

const (
	maxPhase3Names  = 6
	phase3NamesPerQ = 2
)

// genericFoodType is the placeholder food type that phase 4 skips.
const genericFoodType = "美食"

// phase1Queries casts the broad net: location plus locals/old-establishment
// qualifiers, and up to two of the user's own requirement phrases.
func phase1Queries(intent domain.SearchIntent) []string {
	base := intent.Location
	food := intent.FoodType
	if food == "" {
		food = genericFoodType
	}

	queries := []string{
		base + " 本地人 老店",
		base + " " + food + " 地道",
		base + " 本地人 推荐",
	}
	for i, req := range intent.Requirements {
		if i >= 2 {
			break
		}
		queries = append(queries, base+" "+req)
	}
	return queries[:3]
}

// phase2Queries digs for hidden gems with unassuming/alley qualifiers.
func phase2Queries(intent domain.SearchIntent) []string {
	base := intent.Location
	return []string{
		base + " 苍蝇馆子 好吃",
		base + " 小馆子 本地人",
		base + " 巷子里 老店",
	}
}

// phase3Queries re-queries candidate shop names extracted from earlier
// phases, two names per query.
func phase3Queries(location string, names []string) []string {
	if len(names) > maxPhase3Names {
		names = names[:maxPhase3Names]
	}
	var queries []string
	for i := 0; i < len(names); i += phase3NamesPerQ {
		end := i + phase3NamesPerQ
		if end > len(names) {
			end = len(names)
		}
		queries = append(queries, location+" "+strings.Join(names[i:end], " "))
	}
	return queries
}

// phase4Queries runs the category deep-dive, only warranted for a specific
// food type.
func phase4Queries(intent domain.SearchIntent) []string {
	if intent.FoodType == "" || intent.FoodType == genericFoodType {
		return nil
	}
	return []string{
		intent.Location + " " + intent.FoodType + " 老店",
		intent.Location + " " + intent.FoodType + " 本地人",
	}
}

// expandQueries uses a deliberately different qualifier set so an "expand"
// turn surfaces documents the first pass missed.
func expandQueries(intent domain.SearchIntent) []string {
	base := intent.Location
	return []string{
		base + " 隐藏美食",
		base + " 老字号",
		base + " 街边小店",
	}
}

// extractShopNames pulls candidate shop-name tokens from document titles:
// whitespace- or bar-separated tokens containing a shop/restaurant suffix
// character, 2 to 10 runes long, first occurrence wins.
func extractShopNames(docs []domain.SourceDocument) []string {
	var names []string
	seen := make(map[string]bool)
	for _, doc := range docs {
		title := doc.Title
		if title == "" || (!strings.Contains(title, "店") && !strings.Contains(title, "馆")) {
			continue
		}
		title = strings.ReplaceAll(title, "｜", " ")
		title = strings.ReplaceAll(title, "|", " ")
		for _, w := range strings.Fields(title) {
			if !strings.Contains(w, "店") && !strings.Contains(w, "馆") {
				continue
			}
			if n := utf8.RuneCountInString(w); n < 2 || n > 10 {
				continue
			}
			if !seen[w] {
				seen[w] = true
				names = append(names, w)
			}
			if len(names) >= maxPhase3Names {
				return names
			}
		}
	}
	return names
}
