package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/followup"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/preprocess"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/scoring"
)

// Options are the orchestration knobs. Fast mode is a flag here, never a
// behavior baked into the phase functions.
type Options struct {
	// PerQueryLimit caps results per document-source query.
	PerQueryLimit int
	// PhaseWidth bounds concurrent queries within one phase.
	PhaseWidth int
	// DocWorkers bounds concurrent per-document analysis.
	DocWorkers int
	// QueryTimeout bounds each document-source call; exceeding it degrades
	// that one query to an empty result.
	QueryTimeout time.Duration
	// FastMode short-circuits remaining phases once FastModeLimit documents
	// are gathered.
	FastMode      bool
	FastModeLimit int
}

// ApplyDefaults fills unset options with production values.
func (o *Options) ApplyDefaults() {
	if o.PerQueryLimit <= 0 {
		o.PerQueryLimit = 4
	}
	if o.PhaseWidth <= 0 {
		o.PhaseWidth = 3
	}
	if o.DocWorkers <= 0 {
		o.DocWorkers = 4
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 15 * time.Second
	}
	if o.FastModeLimit <= 0 {
		o.FastModeLimit = 8
	}
}

// Service orchestrates one conversation turn: classify the turn, gather
// evidence through the phased search, run each document through the
// preprocess/tag/score pipeline, merge shops across documents, and apply
// follow-up actions to the already-computed set.
type Service struct {
	parser     IntentParser
	source     DocumentSource
	pre        *preprocess.Service
	tagger     Tagger
	engine     *scoring.Engine
	classifier *followup.Classifier
	analyzer   Analyzer
	enricher   Enricher
	opts       Options
	logger     *zap.Logger

	handlers map[domain.FollowUpType]handlerFunc
}

type handlerFunc func(ctx context.Context, conv *domain.ConversationContext, target string, emit Emitter) domain.SearchOutcome

// New creates the orchestrator. Analyzer and enricher are optional; without
// an analyzer the degraded path is unavailable and tagger failures skip the
// document, without an enricher recommendations ship without POI details.
func New(
	parser IntentParser, source DocumentSource,
	pre *preprocess.Service, tagger Tagger, engine *scoring.Engine,
	classifier *followup.Classifier, analyzer Analyzer, enricher Enricher,
	opts Options, logger *zap.Logger,
) *Service {
	opts.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		parser:     parser,
		source:     source,
		pre:        pre,
		tagger:     tagger,
		engine:     engine,
		classifier: classifier,
		analyzer:   analyzer,
		enricher:   enricher,
		opts:       opts,
		logger:     logger,
	}
	s.handlers = map[domain.FollowUpType]handlerFunc{
		domain.FollowUpExclude:  s.handleExclude,
		domain.FollowUpCategory: s.handleCategory,
		domain.FollowUpLocation: s.handleLocation,
		domain.FollowUpExpand:   s.handleExpand,
		domain.FollowUpDetail:   s.handleDetail,
		domain.FollowUpConfirm:  s.handleConfirm,
	}
	return s
}

// RunTurn processes one user turn against the session's conversation
// context. All failure states come back as outcome data; the returned
// outcome is never accompanied by a panic or error.
func (s *Service) RunTurn(ctx context.Context, conv *domain.ConversationContext, input string, emit Emitter) domain.SearchOutcome {
	if emit == nil {
		emit = func(domain.EventType, map[string]any) {}
	}
	conv.AddUserMessage(input)

	fu := s.classifier.Classify(ctx, input, conv)
	s.logger.Info("turn classified",
		zap.String("action", fu.Type.String()),
		zap.String("target", fu.Target),
	)

	var outcome domain.SearchOutcome
	if h, ok := s.handlers[fu.Type]; ok {
		outcome = h(ctx, conv, fu.Target, emit)
	} else {
		outcome = s.handleNewSearch(ctx, conv, input, emit)
	}

	conv.TurnCount++
	if outcome.Summary != "" {
		conv.AddAssistantMessage(outcome.Summary)
	}
	return outcome
}

func (s *Service) handleNewSearch(ctx context.Context, conv *domain.ConversationContext, input string, emit Emitter) domain.SearchOutcome {
	emit(domain.EventStepStart, map[string]any{"step": "intent", "message": "解析搜索意图"})

	parsed, err := s.parser.Parse(ctx, input, conv)
	if err != nil {
		emit(domain.EventStepError, map[string]any{"step": "intent", "message": err.Error()})
		return domain.SearchOutcome{Status: domain.OutcomeError, ErrorMessage: "意图解析失败: " + err.Error()}
	}
	if parsed.NeedClarify || parsed.Intent == nil || !parsed.Intent.Valid() {
		emit(domain.EventStepDone, map[string]any{"step": "intent", "message": "需要补充信息"})
		questions := parsed.Questions
		if len(questions) == 0 {
			questions = []string{"想在哪个城市或区域找呢？"}
		}
		return domain.SearchOutcome{
			Status:           domain.OutcomeClarify,
			ClarifyQuestions: questions,
			Summary:          "需要更多信息以完成搜索",
		}
	}
	intent := parsed.Intent.Clone()
	emit(domain.EventStepDone, map[string]any{
		"step":    "intent",
		"message": strings.TrimSpace(intent.Location + " " + intent.FoodType),
		"intent":  intent,
	})

	emit(domain.EventStepStart, map[string]any{"step": "search", "message": "分阶段搜索笔记"})
	docs := s.gatherDocuments(ctx, intent, nil, emit)
	if len(docs) == 0 {
		emit(domain.EventStepDone, map[string]any{"step": "search", "message": "未找到相关笔记"})
		return domain.SearchOutcome{
			Status:  domain.OutcomeOK,
			Summary: fmt.Sprintf("未找到关于 %s 的相关笔记", intent.Location),
		}
	}
	emit(domain.EventStepDone, map[string]any{"step": "search", "message": fmt.Sprintf("共获取 %d 篇笔记", len(docs))})

	emit(domain.EventStepStart, map[string]any{"step": "analyze", "message": "分析笔记和评论"})
	restaurants := s.analyzeDocuments(ctx, docs, intent)
	emit(domain.EventStepDone, map[string]any{"step": "analyze", "message": fmt.Sprintf("识别出 %d 家店铺", len(restaurants))})

	emit(domain.EventStepStart, map[string]any{"step": "validate", "message": "交叉验证和合并"})
	merged := s.mergeAndValidate(restaurants)
	recommended, filtered := s.finalize(merged, conv)
	emit(domain.EventStepDone, map[string]any{"step": "validate", "message": fmt.Sprintf("筛选出 %d 家推荐", len(recommended))})

	conv.LastIntent = &intent
	conv.AddShops(recommended)
	for _, d := range docs {
		conv.MarkSeen(d.ID)
	}

	s.enrichAll(ctx, recommended, intent.Location, emit)

	return domain.SearchOutcome{
		Status:          domain.OutcomeOK,
		Recommendations: recommended,
		FilteredCount:   filtered,
		Summary:         fmt.Sprintf("在 %s 找到 %d 家推荐店铺，过滤了 %d 家", intent.Location, len(recommended), filtered),
	}
}

// gatherDocuments runs the phased queries. Queries within a phase run
// concurrently bounded by PhaseWidth; phases are sequential because phase 3
// depends on earlier titles. Documents are deduplicated by source id across
// the whole run, including ids already seen in prior turns.
func (s *Service) gatherDocuments(ctx context.Context, intent domain.SearchIntent, priorSeen map[string]bool, emit Emitter) []domain.SourceDocument {
	pool := newDocPool(priorSeen)

	phases := []struct {
		name    string
		queries func() []string
	}{
		{"broad", func() []string { return phase1Queries(intent) }},
		{"hidden", func() []string { return phase2Queries(intent) }},
		{"verify", func() []string { return phase3Queries(intent.Location, extractShopNames(pool.docs())) }},
		{"category", func() []string { return phase4Queries(intent) }},
	}

	for _, phase := range phases {
		if s.shouldStop(pool.size()) {
			s.logger.Info("fast mode reached document limit", zap.Int("docs", pool.size()))
			break
		}
		queries := phase.queries()
		if len(queries) == 0 {
			continue
		}
		s.runPhase(ctx, queries, pool)
		emit(domain.EventProgress, map[string]any{
			"phase": phase.name,
			"docs":  pool.size(),
		})
	}
	return pool.docs()
}

func (s *Service) shouldStop(docCount int) bool {
	return s.opts.FastMode && docCount >= s.opts.FastModeLimit
}

// runPhase executes one phase's queries. A failed or timed-out query
// degrades to an empty result and never fails the run.
func (s *Service) runPhase(ctx context.Context, queries []string, pool *docPool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PhaseWidth)
	for _, query := range queries {
		query := query
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.opts.QueryTimeout)
			defer cancel()

			docs, err := s.source.Search(qctx, query, s.opts.PerQueryLimit)
			if err != nil {
				s.logger.Warn("document query failed", zap.String("query", query), zap.Error(err))
				return nil
			}
			added := pool.add(docs)
			s.logger.Debug("document query done", zap.String("query", query), zap.Int("new", added))
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
}

// analyzeDocuments runs the preprocess/tag/score pipeline per document with
// a bounded worker pool. A single document's failure is logged and skipped.
func (s *Service) analyzeDocuments(ctx context.Context, docs []domain.SourceDocument, intent domain.SearchIntent) []*domain.Restaurant {
	var (
		mu  sync.Mutex
		out []*domain.Restaurant
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.DocWorkers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			recs, err := s.analyzeOne(gctx, doc, intent)
			if err != nil {
				s.logger.Warn("document analysis skipped", zap.String("doc_id", doc.ID), zap.Error(err))
				return nil
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return out
}

// analyzeOne scores one document. Tagger failure falls back to the legacy
// single-pass analyzer when one is configured.
func (s *Service) analyzeOne(ctx context.Context, doc domain.SourceDocument, intent domain.SearchIntent) ([]*domain.Restaurant, error) {
	units := s.pre.Normalize(doc.Comments)
	if len(units) == 0 {
		return nil, nil
	}

	tags, err := s.tagger.TagUnits(ctx, doc, units)
	if err != nil {
		if s.analyzer == nil {
			return nil, err
		}
		s.logger.Warn("tagger unavailable, using single-pass analyzer", zap.String("doc_id", doc.ID), zap.Error(err))
		return s.analyzer.Analyze(ctx, doc, intent)
	}

	scores := s.engine.ScoreAll(units, tags)
	aggs := s.engine.Aggregate(scores)

	recs := make([]*domain.Restaurant, 0, len(aggs))
	for _, agg := range aggs {
		verdict := s.engine.Classify(agg)
		r := &domain.Restaurant{
			Name:        agg.Name,
			Location:    intent.Location,
			Features:    append([]string(nil), doc.Tags...),
			SourceDocs:  []string{doc.ID},
			Confidence:  verdict.Confidence,
			Verdict:     &verdict,
			Recommended: !verdict.Class.Wanghong(),
		}
		if verdict.Class.Wanghong() {
			r.FilterReason = wanghongReason(verdict)
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// mergeAndValidate merges same-named shops across documents and applies the
// corroboration adjustments: union source ids and features, keep the higher
// confidence with its backing verdict, then scale confidence by how many
// documents agree.
func (s *Service) mergeAndValidate(recs []*domain.Restaurant) []*domain.Restaurant {
	merged := make(map[string]*domain.Restaurant)
	var order []string

	for _, r := range recs {
		key := r.Key()
		if key == "" || r.Name == "未知" {
			continue
		}
		existing, ok := merged[key]
		if !ok {
			merged[key] = r
			order = append(order, key)
			continue
		}
		existing.SourceDocs = unionStrings(existing.SourceDocs, r.SourceDocs)
		existing.Features = unionStrings(existing.Features, r.Features)
		if r.Confidence > existing.Confidence {
			existing.Confidence = r.Confidence
			existing.Verdict = r.Verdict
			existing.Recommended = r.Recommended
			existing.FilterReason = r.FilterReason
		}
	}

	out := make([]*domain.Restaurant, 0, len(order))
	for _, key := range order {
		r := merged[key]
		sources := len(r.SourceDocs)
		switch {
		case r.Verdict != nil && r.Verdict.Class.Wanghong():
			r.Recommended = false
			if r.FilterReason == "" {
				r.FilterReason = wanghongReason(*r.Verdict)
			}
		case sources < 2:
			r.Confidence *= 0.7
		case sources >= 3 && r.Verdict != nil && r.Verdict.LocalMentions:
			r.Confidence = min(r.Confidence*1.2, 1.0)
		}
		out = append(out, r)
	}
	return out
}

// finalize drops promoted and user-excluded shops and sorts the rest by
// confidence, then corroboration.
func (s *Service) finalize(merged []*domain.Restaurant, conv *domain.ConversationContext) (recommended []*domain.Restaurant, filtered int) {
	for _, r := range merged {
		if conv.IsExcluded(r.Name) {
			r.Recommended = false
			if r.FilterReason == "" {
				r.FilterReason = "已被用户排除"
			}
		}
		if r.Recommended {
			recommended = append(recommended, r)
		} else {
			filtered++
		}
	}
	sort.SliceStable(recommended, func(i, j int) bool {
		if recommended[i].Confidence != recommended[j].Confidence {
			return recommended[i].Confidence > recommended[j].Confidence
		}
		return len(recommended[i].SourceDocs) > len(recommended[j].SourceDocs)
	})
	return recommended, filtered
}

// enrichAll fills POI details shop by shop, emitting each enriched
// recommendation as its own event. Enrichment failures leave the shop
// without details, never without a recommendation.
func (s *Service) enrichAll(ctx context.Context, recs []*domain.Restaurant, cityHint string, emit Emitter) {
	if len(recs) == 0 {
		return
	}
	emit(domain.EventStepStart, map[string]any{"step": "enrich", "message": fmt.Sprintf("补充 %d 家店铺信息", len(recs))})
	for _, r := range recs {
		if s.enricher != nil {
			if err := s.enricher.Enrich(ctx, r, cityHint); err != nil {
				s.logger.Warn("poi enrichment failed", zap.String("shop", r.Name), zap.Error(err))
			}
		}
		emit(domain.EventRestaurant, map[string]any{"restaurant": r})
	}
	emit(domain.EventStepDone, map[string]any{"step": "enrich", "message": fmt.Sprintf("完成 %d 家店铺信息补充", len(recs))})
}

func wanghongReason(v domain.Verdict) string {
	reasons := v.Reasons
	if len(reasons) > 2 {
		reasons = reasons[:2]
	}
	return "判定为网红店: " + strings.Join(reasons, ", ")
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			a = append(a, s)
		}
	}
	return a
}

// docPool is the deduplicated evidence pool shared by concurrent queries.
type docPool struct {
	mu   sync.Mutex
	seen map[string]bool
	list []domain.SourceDocument
}

func newDocPool(priorSeen map[string]bool) *docPool {
	seen := make(map[string]bool, len(priorSeen))
	for id := range priorSeen {
		seen[id] = true
	}
	return &docPool{seen: seen}
}

func (p *docPool) add(docs []domain.SourceDocument) (added int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" || p.seen[d.ID] {
			continue
		}
		p.seen[d.ID] = true
		p.list = append(p.list, d)
		added++
	}
	return added
}

func (p *docPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.list)
}

func (p *docPool) docs() []domain.SourceDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SourceDocument(nil), p.list...)
}
