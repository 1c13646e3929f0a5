package turnstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndFetchTurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := domain.TurnRecord{
		SessionID: "s1",
		TurnID:    1,
		Query:     "蒙自米线",
		Outcome: domain.SearchOutcome{
			Status:  domain.OutcomeOK,
			Summary: "找到 1 家推荐店铺",
			Recommendations: []*domain.Restaurant{
				{Name: "老面馆", Confidence: 0.9, Recommended: true, SourceDocs: []string{"d1", "d2"}},
			},
			FilteredCount: 2,
		},
		CreatedAt: time.Now(),
	}
	if err := s.SaveTurn(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Turn(ctx, "s1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != rec.Query || got.Outcome.FilteredCount != 2 {
		t.Errorf("got %+v", got)
	}
	if len(got.Outcome.Recommendations) != 1 || got.Outcome.Recommendations[0].Name != "老面馆" {
		t.Errorf("outcome = %+v", got.Outcome)
	}
}

func TestTurnNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Turn(context.Background(), "s1", 7); !errors.Is(err, domain.ErrTurnNotFound) {
		t.Fatalf("err = %v, want ErrTurnNotFound", err)
	}
	if _, err := s.LatestTurn(context.Background(), "s1"); !errors.Is(err, domain.ErrTurnNotFound) {
		t.Fatalf("err = %v, want ErrTurnNotFound", err)
	}
}

func TestLatestTurnAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := s.SaveTurn(ctx, domain.TurnRecord{
			SessionID: "s1",
			TurnID:    i,
			Query:     "q",
			Outcome:   domain.SearchOutcome{Status: domain.OutcomeOK},
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	// Another session must not leak into s1's history.
	_ = s.SaveTurn(ctx, domain.TurnRecord{
		SessionID: "s2", TurnID: 1, Query: "q",
		Outcome: domain.SearchOutcome{Status: domain.OutcomeOK}, CreatedAt: time.Now(),
	})

	latest, err := s.LatestTurn(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.TurnID != 3 {
		t.Errorf("latest turn = %d", latest.TurnID)
	}

	turns, err := s.Turns(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns", len(turns))
	}
	for i, rec := range turns {
		if rec.TurnID != i+1 {
			t.Errorf("turns[%d].TurnID = %d", i, rec.TurnID)
		}
	}
}

func TestSaveTurnReplacesSameTurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := domain.TurnRecord{
		SessionID: "s1", TurnID: 1, Query: "first",
		Outcome: domain.SearchOutcome{Status: domain.OutcomeOK}, CreatedAt: time.Now(),
	}
	if err := s.SaveTurn(ctx, base); err != nil {
		t.Fatal(err)
	}
	base.Query = "second"
	if err := s.SaveTurn(ctx, base); err != nil {
		t.Fatal(err)
	}

	turns, err := s.Turns(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Query != "second" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestRequestStatusUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.RequestStatus(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	err := s.SetRequestStatus(ctx, domain.RequestStatus{
		SessionID: "s1", TurnID: 1, Status: domain.StatusLoading, Query: "蒙自米线", UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.SetRequestStatus(ctx, domain.RequestStatus{
		SessionID: "s1", TurnID: 1, Status: domain.StatusError, Err: "下游超时", UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.RequestStatus(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusError || got.Err != "下游超时" {
		t.Errorf("status = %+v", got)
	}
}
