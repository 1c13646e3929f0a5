package tagging

import (
	"context"
	"errors"
	"testing"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

type mockTagger struct {
	tags []domain.SemanticTag
	err  error
}

func (m *mockTagger) Tag(_ context.Context, _ domain.SourceDocument, _ []domain.CommentUnit) ([]domain.SemanticTag, error) {
	return m.tags, m.err
}

func TestTagUnitsRepairsOutput(t *testing.T) {
	tagger := &mockTagger{tags: []domain.SemanticTag{
		{UnitID: "c0", Identity: "strong", Sentiment: "positive", Shops: []string{" 老面馆 ", ""}},
		{UnitID: "c0", Identity: "medium", Sentiment: "negative"}, // duplicate, ignored
		{UnitID: "c9", Identity: "strong"},                        // unknown id, dropped
		{UnitID: "c1", Identity: "local expert", Sentiment: "meh"},
	}}
	svc := New(tagger, nil)

	units := []domain.CommentUnit{{ID: "c0"}, {ID: "c1"}, {ID: "c2"}}
	tags, err := svc.TagUnits(context.Background(), domain.SourceDocument{ID: "n1"}, units)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 3 {
		t.Fatalf("got %d tags, want 3", len(tags))
	}

	c0 := tags["c0"]
	if c0.Identity != domain.IdentityStrong || c0.Sentiment != domain.SentimentPositive {
		t.Errorf("c0 = %+v", c0)
	}
	if len(c0.Shops) != 1 || c0.Shops[0] != "老面馆" {
		t.Errorf("c0 shops = %v", c0.Shops)
	}

	// Unknown enum values degrade to the safe defaults.
	c1 := tags["c1"]
	if c1.Identity != domain.IdentityNone || c1.Sentiment != domain.SentimentNeutral {
		t.Errorf("c1 = %+v", c1)
	}

	// Missing unit filled with a neutral tag carrying no shop evidence.
	c2 := tags["c2"]
	if c2.Identity != domain.IdentityNone || c2.Sentiment != domain.SentimentNeutral || len(c2.Shops) != 0 {
		t.Errorf("c2 = %+v", c2)
	}
}

func TestTagUnitsTaggerFailure(t *testing.T) {
	svc := New(&mockTagger{err: errors.New("rate limited")}, nil)

	_, err := svc.TagUnits(context.Background(), domain.SourceDocument{ID: "n1"}, []domain.CommentUnit{{ID: "c0"}})
	if !errors.Is(err, domain.ErrTaggerUnavailable) {
		t.Fatalf("err = %v, want ErrTaggerUnavailable", err)
	}
}

func TestTagUnitsEmptyInput(t *testing.T) {
	calls := &mockTagger{err: errors.New("must not be called")}
	svc := New(calls, nil)

	tags, err := svc.TagUnits(context.Background(), domain.SourceDocument{ID: "n1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Fatalf("got %d tags, want 0", len(tags))
	}
}
