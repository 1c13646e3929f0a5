package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/db"
	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "poi_cache:"

// DefaultCacheTTL bounds how long a cached POI record is served before the
// provider is asked again.
const DefaultCacheTTL = 7 * 24 * time.Hour

// POIProvider looks up map-provider details for a shop. A shop the provider
// does not know yields (nil, nil), distinct from a provider failure.
type POIProvider interface {
	Lookup(ctx context.Context, name, cityHint string) (*domain.POIRecord, error)
}

// store is the consumer interface for the POI cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service fills POI detail fields on recommendations, caching lookups by
// shop name so repeat turns never hit the provider twice for one shop.
type Service struct {
	provider   POIProvider
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates the enrichment service. cacheTotal is a counter vec with
// label "result" ("hit"/"miss"), passed explicitly; it and the store may be
// nil, which disables caching. A non-positive ttl falls back to
// DefaultCacheTTL.
func New(provider POIProvider, s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Enrich fills r.POI in place. A provider miss leaves the recommendation
// untouched; a provider failure is reported so the caller can log it, but
// the recommendation itself stays valid either way.
func (s *Service) Enrich(ctx context.Context, r *domain.Restaurant, cityHint string) error {
	if r.POI != nil {
		return nil
	}
	key := s.cacheKey(r.Name, cityHint)

	if poi, ok := s.getFromCache(ctx, key); ok {
		s.incCache("hit")
		r.POI = poi
		return nil
	}
	s.incCache("miss")

	poi, err := s.provider.Lookup(ctx, r.Name, cityHint)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %w", domain.ErrEnrichUnavailable, r.Name, err)
	}
	if poi == nil {
		return nil
	}

	s.putToCache(ctx, key, poi)
	r.POI = poi
	return nil
}

func (s *Service) incCache(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) cacheKey(name, cityHint string) string {
	h := sha256.Sum256([]byte(cityHint + "\x00" + domain.NormalizeShopName(name)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (s *Service) getFromCache(ctx context.Context, key string) (*domain.POIRecord, bool) {
	if s.store == nil {
		return nil, false
	}
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("failed to get cached poi record", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var poi domain.POIRecord
	if err := json.Unmarshal(data, &poi); err != nil {
		s.logger.Warn("failed to parse cached poi record", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &poi, true
}

func (s *Service) putToCache(ctx context.Context, key string, poi *domain.POIRecord) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(poi)
	if err != nil {
		return
	}
	if err := s.store.SetWithTTL(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("failed to cache poi record", zap.String("key", key), zap.Error(err))
	}
}
