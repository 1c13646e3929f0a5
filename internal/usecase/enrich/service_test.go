package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/db"
	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

type mockProvider struct {
	calls int
	poi   *domain.POIRecord
	err   error
}

func (m *mockProvider) Lookup(_ context.Context, _, _ string) (*domain.POIRecord, error) {
	m.calls++
	return m.poi, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestEnrichCachesByName(t *testing.T) {
	provider := &mockProvider{poi: &domain.POIRecord{Address: "人民路1号", City: "蒙自"}}
	svc := New(provider, newMockKVStore(), 0, nil, nil)

	r1 := &domain.Restaurant{Name: "老面馆"}
	if err := svc.Enrich(context.Background(), r1, "蒙自"); err != nil {
		t.Fatal(err)
	}
	if r1.POI == nil || r1.POI.Address != "人民路1号" {
		t.Fatalf("poi = %+v", r1.POI)
	}

	// Case/whitespace variants of the same shop hit the cache.
	r2 := &domain.Restaurant{Name: " 老面馆 "}
	if err := svc.Enrich(context.Background(), r2, "蒙自"); err != nil {
		t.Fatal(err)
	}
	if r2.POI == nil || r2.POI.Address != "人民路1号" {
		t.Fatalf("cached poi = %+v", r2.POI)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestEnrichCacheWriteCarriesTTL(t *testing.T) {
	provider := &mockProvider{poi: &domain.POIRecord{Address: "人民路1号"}}
	kv := newMockKVStore()
	svc := New(provider, kv, 48*time.Hour, nil, nil)

	r := &domain.Restaurant{Name: "老面馆"}
	if err := svc.Enrich(context.Background(), r, "蒙自"); err != nil {
		t.Fatal(err)
	}
	for key, ttl := range kv.ttls {
		if ttl != 48*time.Hour {
			t.Errorf("ttl for %s = %v, want 48h", key, ttl)
		}
	}
	if len(kv.ttls) != 1 {
		t.Fatalf("cache writes = %d, want 1", len(kv.ttls))
	}

	// Zero ttl falls back to the default rather than writing forever-keys.
	svc = New(provider, newMockKVStore(), 0, nil, nil)
	if svc.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %v, want DefaultCacheTTL", svc.ttl)
	}
}

func TestEnrichProviderMiss(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, newMockKVStore(), 0, nil, nil)

	r := &domain.Restaurant{Name: "无名小店"}
	if err := svc.Enrich(context.Background(), r, ""); err != nil {
		t.Fatal(err)
	}
	if r.POI != nil {
		t.Errorf("poi = %+v, want nil on provider miss", r.POI)
	}
	// A miss is not cached as a record, so the next call asks again.
	if err := svc.Enrich(context.Background(), r, ""); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
}

func TestEnrichProviderFailure(t *testing.T) {
	svc := New(&mockProvider{err: errors.New("quota exceeded")}, newMockKVStore(), 0, nil, nil)

	r := &domain.Restaurant{Name: "老面馆"}
	err := svc.Enrich(context.Background(), r, "蒙自")
	if !errors.Is(err, domain.ErrEnrichUnavailable) {
		t.Fatalf("err = %v, want ErrEnrichUnavailable", err)
	}
	if r.POI != nil {
		t.Errorf("poi set despite failure: %+v", r.POI)
	}
}

func TestEnrichSkipsAlreadyEnriched(t *testing.T) {
	provider := &mockProvider{poi: &domain.POIRecord{Address: "另一个地址"}}
	svc := New(provider, newMockKVStore(), 0, nil, nil)

	r := &domain.Restaurant{Name: "老面馆", POI: &domain.POIRecord{Address: "已有地址"}}
	if err := svc.Enrich(context.Background(), r, ""); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 0 || r.POI.Address != "已有地址" {
		t.Errorf("enrich overwrote existing poi: calls=%d poi=%+v", provider.calls, r.POI)
	}
}

func TestEnrichWithoutStore(t *testing.T) {
	provider := &mockProvider{poi: &domain.POIRecord{Address: "人民路1号"}}
	svc := New(provider, nil, 0, nil, nil)

	r := &domain.Restaurant{Name: "老面馆"}
	if err := svc.Enrich(context.Background(), r, ""); err != nil {
		t.Fatal(err)
	}
	if r.POI == nil {
		t.Fatal("poi not set")
	}
}
