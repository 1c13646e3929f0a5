package chi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/stream"
)

type stubRunner struct {
	outcome domain.SearchOutcome
}

func (r *stubRunner) RunTurn(_ context.Context, conv *domain.ConversationContext, input string, emit func(domain.EventType, map[string]any)) domain.SearchOutcome {
	emit(domain.EventStepStart, map[string]any{"step": "search"})
	emit(domain.EventStepDone, map[string]any{"step": "search"})
	conv.TurnCount++
	return r.outcome
}

type memTurns struct {
	mu       sync.Mutex
	turns    map[string]map[int]domain.TurnRecord
	statuses map[string]domain.RequestStatus
}

func newMemTurns() *memTurns {
	return &memTurns{
		turns:    map[string]map[int]domain.TurnRecord{},
		statuses: map[string]domain.RequestStatus{},
	}
}

func (s *memTurns) SaveTurn(_ context.Context, rec domain.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turns[rec.SessionID] == nil {
		s.turns[rec.SessionID] = map[int]domain.TurnRecord{}
	}
	s.turns[rec.SessionID][rec.TurnID] = rec
	return nil
}

func (s *memTurns) Turn(_ context.Context, sessionID string, turnID int) (domain.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.turns[sessionID][turnID]
	if !ok {
		return domain.TurnRecord{}, fmt.Errorf("%w: turn %d", domain.ErrTurnNotFound, turnID)
	}
	return rec, nil
}

func (s *memTurns) LatestTurn(_ context.Context, sessionID string) (domain.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.TurnRecord
	found := false
	for _, rec := range s.turns[sessionID] {
		if !found || rec.TurnID > latest.TurnID {
			latest = rec
			found = true
		}
	}
	if !found {
		return domain.TurnRecord{}, fmt.Errorf("%w: session %s", domain.ErrTurnNotFound, sessionID)
	}
	return latest, nil
}

func (s *memTurns) Turns(_ context.Context, sessionID string) ([]domain.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TurnRecord
	for i := 1; ; i++ {
		rec, ok := s.turns[sessionID][i]
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *memTurns) SetRequestStatus(_ context.Context, status domain.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.SessionID] = status
	return nil
}

func (s *memTurns) RequestStatus(_ context.Context, sessionID string) (domain.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[sessionID]
	if !ok {
		return domain.RequestStatus{}, fmt.Errorf("%w: session %s", domain.ErrSessionNotFound, sessionID)
	}
	return st, nil
}

func newTestServer(t *testing.T, outcome domain.SearchOutcome) (*httptest.Server, *memTurns) {
	t.Helper()
	hub := stream.NewHub(time.Minute)
	turns := newMemTurns()
	manager := stream.NewManager(hub, &stubRunner{outcome: outcome}, nil, turns, zap.NewNop())

	srv := NewServer(manager, nil, zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, turns
}

func okOutcome() domain.SearchOutcome {
	return domain.SearchOutcome{
		Status: domain.OutcomeOK,
		Recommendations: []*domain.Restaurant{
			{Name: "建新园", Location: "昆明"},
		},
		Summary: "找到 1 家本地人推荐的店",
	}
}

func submit(t *testing.T, ts *httptest.Server, sessionID, query string) (*http.Response, submitResponse) {
	t.Helper()
	body, _ := json.Marshal(submitRequest{SessionID: sessionID, Query: query})
	resp, err := http.Post(ts.URL+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var out submitResponse
	if resp.StatusCode == http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode submit response: %v", err)
		}
	}
	resp.Body.Close()
	return resp, out
}

func waitCompleted(t *testing.T, ts *httptest.Server, sessionID string) stream.RecoveryInfo {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/v1/search/recover/" + sessionID)
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		var info stream.RecoveryInfo
		err = json.NewDecoder(resp.Body).Decode(&info)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode recovery: %v", err)
		}
		if info.Status.Terminal() {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal state")
	return stream.RecoveryInfo{}
}

func TestSubmitAndRecover(t *testing.T) {
	ts, turns := newTestServer(t, okOutcome())

	resp, ref := submit(t, ts, "", "昆明米线推荐")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if ref.SessionID == "" || ref.TurnID != 1 {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if want := "/v1/search/stream/" + ref.SessionID; ref.StreamURL != want {
		t.Fatalf("stream_url = %q, want %q", ref.StreamURL, want)
	}

	info := waitCompleted(t, ts, ref.SessionID)
	if info.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", info.Status)
	}
	if info.Outcome == nil || len(info.Outcome.Recommendations) != 1 {
		t.Fatalf("unexpected outcome %+v", info.Outcome)
	}

	turns.mu.Lock()
	_, persisted := turns.turns[ref.SessionID][1]
	turns.mu.Unlock()
	if !persisted {
		t.Fatal("turn was not persisted")
	}
}

func TestSubmitEmptyQuery(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	resp, _ := submit(t, ts, "", "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitInvalidBody(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	resp, err := http.Post(ts.URL+"/v1/search", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "bad_request" {
		t.Fatalf("code = %q, want bad_request", body["code"])
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)

	resp, err := http.Get(ts.URL + "/v1/search/stream/" + ref.SessionID + "?lastEventIndex=-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var types []string
	var ids []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			types = append(types, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "id: "):
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{"step_start", "step_done", "result", "done"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i, typ := range want {
		if types[i] != typ {
			t.Fatalf("event %d = %q, want %q", i, types[i], typ)
		}
	}
	for i, id := range ids {
		if id != fmt.Sprint(i) {
			t.Fatalf("event ids = %v, want contiguous from 0", ids)
		}
	}
}

func TestStreamReplayFromLastEventIndex(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)

	resp, err := http.Get(ts.URL + "/v1/search/stream/" + ref.SessionID + "?lastEventIndex=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var events []domain.SearchEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.SearchEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events after index 1, want 2", len(events))
	}
	if events[0].Index != 2 {
		t.Fatalf("first replayed index = %d, want 2", events[0].Index)
	}
	for _, ev := range events {
		if !ev.Replayed {
			t.Fatalf("event %d not marked replayed", ev.Index)
		}
	}
}

func TestStreamBadIndex(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)

	resp, err := http.Get(ts.URL + "/v1/search/stream/" + ref.SessionID + "?lastEventIndex=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	resp, err := http.Get(ts.URL + "/v1/search/stream/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRecoverUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	resp, err := http.Get(ts.URL + "/v1/search/recover/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "session_not_found" {
		t.Fatalf("code = %q, want session_not_found", body["code"])
	}
}

func TestTurnHistory(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)
	submit(t, ts, ref.SessionID, "换清淡一点的")
	waitCompleted(t, ts, ref.SessionID)

	resp, err := http.Get(ts.URL + "/v1/search/" + ref.SessionID + "/turns")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		SessionID string              `json:"session_id"`
		Turns     []domain.TurnRecord `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(list.Turns))
	}
	if list.Turns[1].Query != "换清淡一点的" {
		t.Fatalf("second turn query = %q", list.Turns[1].Query)
	}

	single, err := http.Get(ts.URL + "/v1/search/" + ref.SessionID + "/turns/1")
	if err != nil {
		t.Fatal(err)
	}
	defer single.Body.Close()
	var rec domain.TurnRecord
	if err := json.NewDecoder(single.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.TurnID != 1 || rec.Query != "昆明米线推荐" {
		t.Fatalf("unexpected turn %+v", rec)
	}
}

func TestTurnNotFound(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)

	resp, err := http.Get(ts.URL + "/v1/search/" + ref.SessionID + "/turns/9")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "turn_not_found" {
		t.Fatalf("code = %q, want turn_not_found", body["code"])
	}
}

func TestResetSession(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	_, ref := submit(t, ts, "", "昆明米线推荐")
	waitCompleted(t, ts, ref.SessionID)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/search/"+ref.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	// The event stream is gone; the durable turn history is not.
	after, err := http.Get(ts.URL + "/v1/search/stream/" + ref.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	after.Body.Close()
	if after.StatusCode != http.StatusNotFound {
		t.Fatalf("stream after reset = %d, want 404", after.StatusCode)
	}

	recov, err := http.Get(ts.URL + "/v1/search/recover/" + ref.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	defer recov.Body.Close()
	var info stream.RecoveryInfo
	if err := json.NewDecoder(recov.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Status != domain.StatusCompleted || info.Outcome == nil {
		t.Fatalf("recover after reset = %+v, want durable completed turn", info)
	}
}

func TestHealthCheck(t *testing.T) {
	ts, _ := newTestServer(t, okOutcome())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

type failPinger struct{}

func (failPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthCheckUnhealthy(t *testing.T) {
	hub := stream.NewHub(time.Minute)
	manager := stream.NewManager(hub, &stubRunner{}, nil, newMemTurns(), zap.NewNop())
	srv := NewServer(manager, failPinger{}, zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
