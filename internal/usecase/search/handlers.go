package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// categoryMapping widens a category filter keyword to its related cuisine
// terms, so "面食" also matches shops tagged 抄手 or 饺子.
var categoryMapping = map[string][]string{
	"炒菜": {"炒菜", "川菜", "家常菜", "江湖菜", "小炒", "中餐", "粤菜", "湘菜"},
	"川菜": {"川菜", "炒菜", "家常菜", "江湖菜"},
	"火锅": {"火锅", "串串", "冒菜", "麻辣烫"},
	"烧烤": {"烧烤", "烤肉", "撸串", "烤鱼"},
	"面食": {"面", "抄手", "馄饨", "饺子", "面条", "粉"},
	"小吃": {"小吃", "小吃店", "路边摊", "点心"},
	"甜品": {"甜品", "甜点", "蛋糕", "奶茶"},
	"鱼":  {"鱼", "鱼庄", "烤鱼", "冷锅鱼", "花椒鱼"},
}

// handleExclude adds the target to the session's exclusion list and narrows
// the working set. The exclusion persists across later expands.
func (s *Service) handleExclude(_ context.Context, conv *domain.ConversationContext, target string, _ Emitter) domain.SearchOutcome {
	if target != "" {
		conv.ExcludeShop(target)
	}

	var keep []string
	var kept []*domain.Restaurant
	before := len(conv.Working)
	for _, key := range conv.Working {
		r, ok := conv.Shops[key]
		if !ok || conv.IsExcluded(r.Name) {
			continue
		}
		keep = append(keep, key)
		kept = append(kept, r)
	}
	conv.SetWorking(keep)

	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: kept,
		FilteredCount:   before - len(kept),
		Summary:         fmt.Sprintf("已排除 %s，剩余 %d 家推荐", target, len(kept)),
	}
}

// handleCategory narrows the working set to shops whose name or features
// match the category. It filters from the full superset, so pivoting from
// one category to another does not lose shops; an empty match leaves the
// working set untouched.
func (s *Service) handleCategory(_ context.Context, conv *domain.ConversationContext, target string, _ Emitter) domain.SearchOutcome {
	keywords := []string{target}
	for category, related := range categoryMapping {
		if strings.Contains(target, category) || strings.Contains(category, target) {
			keywords = append(keywords, related...)
		}
	}

	candidates := s.scopeCandidates(conv)
	var keep []string
	var kept []*domain.Restaurant
	for _, r := range candidates {
		if matchesCategory(r, keywords) {
			keep = append(keep, r.Key())
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		return domain.SearchOutcome{
			Status:  domain.OutcomeOK,
			Summary: fmt.Sprintf("在现有 %d 家店铺中未找到%s类，可以尝试重新搜索", len(candidates), target),
		}
	}

	conv.SetWorking(keep)
	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: kept,
		FilteredCount:   len(candidates) - len(kept),
		Summary:         fmt.Sprintf("从现有结果中筛选出 %d 家%s类店铺", len(kept), target),
	}
}

// handleLocation narrows the working set to shops in the target area,
// matching location text and shop names by substring in either direction.
func (s *Service) handleLocation(_ context.Context, conv *domain.ConversationContext, target string, _ Emitter) domain.SearchOutcome {
	candidates := s.scopeCandidates(conv)
	var keep []string
	var kept []*domain.Restaurant
	for _, r := range candidates {
		match := strings.Contains(r.Name, target)
		if r.Location != "" && target != "" {
			match = match || strings.Contains(r.Location, target) || strings.Contains(target, r.Location)
		}
		if match {
			keep = append(keep, r.Key())
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		return domain.SearchOutcome{
			Status:  domain.OutcomeOK,
			Summary: fmt.Sprintf("在现有 %d 家店铺中未找到%s区域的店铺，可以尝试重新搜索", len(candidates), target),
		}
	}

	conv.SetWorking(keep)
	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: kept,
		FilteredCount:   len(candidates) - len(kept),
		Summary:         fmt.Sprintf("从现有结果中筛选出 %d 家位于%s的店铺", len(kept), target),
	}
}

// handleExpand reruns a narrower search with a different qualifier set,
// skipping documents already seen, and merges strictly-new shops into the
// working set. Excluded shops stay excluded.
func (s *Service) handleExpand(ctx context.Context, conv *domain.ConversationContext, _ string, emit Emitter) domain.SearchOutcome {
	if conv.LastIntent == nil {
		return domain.SearchOutcome{
			Status:       domain.OutcomeError,
			ErrorMessage: "无法扩展搜索，请先进行搜索",
		}
	}
	intent := conv.LastIntent.Clone()

	emit(domain.EventStepStart, map[string]any{"step": "search", "message": "扩展搜索"})
	pool := newDocPool(conv.SeenDocs)
	s.runPhase(ctx, expandQueries(intent), pool)
	docs := pool.docs()
	emit(domain.EventStepDone, map[string]any{"step": "search", "message": fmt.Sprintf("新增 %d 篇笔记", len(docs))})

	if len(docs) == 0 {
		return domain.SearchOutcome{
			Status:          domain.OutcomeOK,
			Recommendations: conv.WorkingShops(),
			Summary:         "未找到更多店铺",
		}
	}

	restaurants := s.analyzeDocuments(ctx, docs, intent)
	merged := s.mergeAndValidate(restaurants)

	var fresh []*domain.Restaurant
	for _, r := range merged {
		if !r.Recommended || conv.IsExcluded(r.Name) {
			continue
		}
		if _, exists := conv.Shops[r.Key()]; exists {
			continue
		}
		fresh = append(fresh, r)
	}

	conv.AddShops(fresh)
	for _, d := range docs {
		conv.MarkSeen(d.ID)
	}
	s.enrichAll(ctx, fresh, intent.Location, emit)

	all := conv.WorkingShops()
	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: all,
		Summary:         fmt.Sprintf("找到 %d 家新店铺，共 %d 家", len(fresh), len(all)),
	}
}

// handleDetail returns the single matching shop with its full explanation
// fields, enriching it first if POI details are still missing.
func (s *Service) handleDetail(ctx context.Context, conv *domain.ConversationContext, target string, _ Emitter) domain.SearchOutcome {
	if target == "" {
		return domain.SearchOutcome{
			Status:       domain.OutcomeError,
			ErrorMessage: "请指定要查询的店铺名称",
		}
	}
	r := conv.ShopByName(target)
	if r == nil {
		return domain.SearchOutcome{
			Status:  domain.OutcomeOK,
			Summary: fmt.Sprintf("未找到 %s 的信息，可能需要重新搜索", target),
		}
	}

	if r.POI == nil && s.enricher != nil {
		if err := s.enricher.Enrich(ctx, r, r.Location); err != nil {
			s.logger.Warn("poi enrichment failed", zap.String("shop", r.Name), zap.Error(err))
		}
	}

	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: []*domain.Restaurant{r},
		Summary:         detailSummary(r),
	}
}

// handleConfirm picks the single best shop by classification weight scaled
// by confidence.
func (s *Service) handleConfirm(_ context.Context, conv *domain.ConversationContext, _ string, _ Emitter) domain.SearchOutcome {
	shops := conv.WorkingShops()
	if len(shops) == 0 {
		return domain.SearchOutcome{
			Status:       domain.OutcomeError,
			ErrorMessage: "没有可选的店铺，请先进行搜索",
		}
	}

	best := shops[0]
	bestScore := confirmScore(best)
	for _, r := range shops[1:] {
		if score := confirmScore(r); score > bestScore {
			best, bestScore = r, score
		}
	}

	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: []*domain.Restaurant{best},
		Summary:         fmt.Sprintf("推荐你去 %s！", best.Name),
	}
}

// scopeCandidates is the narrowing base for category/location filters: the
// full superset minus exclusions, in insertion order.
func (s *Service) scopeCandidates(conv *domain.ConversationContext) []*domain.Restaurant {
	var out []*domain.Restaurant
	for _, r := range conv.AllShops() {
		if !conv.IsExcluded(r.Name) {
			out = append(out, r)
		}
	}
	return out
}

func matchesCategory(r *domain.Restaurant, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(r.Name, kw) {
			return true
		}
		for _, f := range r.Features {
			if strings.Contains(f, kw) || strings.Contains(kw, f) {
				return true
			}
		}
	}
	return false
}

func confirmScore(r *domain.Restaurant) float64 {
	weight := domain.ClassUnknown.Weight()
	if r.Verdict != nil {
		weight = r.Verdict.Class.Weight()
	}
	return float64(weight) * r.Confidence
}

func detailSummary(r *domain.Restaurant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", r.Name)
	location := r.Location
	if r.POI != nil && r.POI.Address != "" {
		location = r.POI.Address
	}
	if location == "" {
		location = "位置信息见评论区"
	}
	fmt.Fprintf(&b, "- 位置: %s\n", location)
	if len(r.Features) > 0 {
		features := r.Features
		if len(features) > 5 {
			features = features[:5]
		}
		fmt.Fprintf(&b, "- 特点: %s\n", strings.Join(features, ", "))
	}
	if r.Verdict != nil {
		fmt.Fprintf(&b, "- 判定: %s\n", r.Verdict.Class)
		if len(r.Verdict.Reasons) > 0 {
			reasons := r.Verdict.Reasons
			if len(reasons) > 3 {
				reasons = reasons[:3]
			}
			fmt.Fprintf(&b, "- 理由: %s\n", strings.Join(reasons, ", "))
		}
	}
	return b.String()
}
