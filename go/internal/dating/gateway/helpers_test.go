package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

var testStart = time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC)

// memStore is an in-memory Store and results.Repository.
type memStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*models.Event
	rounds   map[uuid.UUID]*models.Round
	roster   map[uuid.UUID][]models.Attendee
	matches  map[uuid.UUID]*models.Match
	order    []uuid.UUID
	statuses []models.RoundStatusChange
}

func newMemStore() *memStore {
	return &memStore{
		events:  make(map[uuid.UUID]*models.Event),
		rounds:  make(map[uuid.UUID]*models.Round),
		roster:  make(map[uuid.UUID][]models.Attendee),
		matches: make(map[uuid.UUID]*models.Match),
	}
}

func (s *memStore) addEvent(capacity int) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &models.Event{ID: uuid.New(), Name: "Valentine's mixer", TableCapacity: capacity}
	s.events[e.ID] = e
	return e
}

func (s *memStore) addRound(eventID uuid.UUID, number int, status models.RoundStatus) *models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &models.Round{
		ID:                uuid.New(),
		EventID:           eventID,
		RoundNumber:       number,
		DurationSeconds:   300,
		BreakAfterSeconds: 60,
		Status:            status,
	}
	s.rounds[r.ID] = r
	return r
}

func (s *memStore) addAttendee(eventID uuid.UUID, category models.Category) models.Attendee {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Attendee{ID: uuid.New(), EventID: eventID, DisplayName: string(category), Category: category}
	s.roster[eventID] = append(s.roster[eventID], a)
	return a
}

func (s *memStore) roundMatches(roundID uuid.UUID) []models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, id := range s.order {
		if m := s.matches[id]; m.RoundID == roundID {
			out = append(out, *m)
		}
	}
	return out
}

func (s *memStore) roundStatus(roundID uuid.UUID) models.RoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds[roundID].Status
}

func (s *memStore) LoadRound(_ context.Context, roundID uuid.UUID) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) LoadEvent(_ context.Context, eventID uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) LoadRoster(_ context.Context, eventID uuid.UUID) ([]models.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Attendee(nil), s.roster[eventID]...), nil
}

func (s *memStore) LoadPastPairings(_ context.Context, eventID uuid.UUID) ([]models.PastPairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PastPairing
	for _, id := range s.order {
		m := s.matches[id]
		if m.EventID != eventID {
			continue
		}
		out = append(out, models.PastPairing{
			AttendeeAID: m.AttendeeAID,
			AttendeeBID: m.AttendeeBID,
			RoundNumber: s.rounds[m.RoundID].RoundNumber,
		})
	}
	return out, nil
}

func (s *memStore) CountRoundMatches(_ context.Context, roundID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.matches {
		if m.RoundID == roundID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ActivateRound(_ context.Context, round *models.Round, planned []matching.PlannedMatch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[round.ID]
	if !ok || r.Status != models.RoundStatusPending {
		return models.ErrRoundNotPending
	}
	r.Status = models.RoundStatusActive
	r.StartedAt = &at
	s.insertMatches(round, planned)
	return nil
}

func (s *memStore) addMatches(round *models.Round, planned []matching.PlannedMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertMatches(round, planned)
}

func (s *memStore) insertMatches(round *models.Round, planned []matching.PlannedMatch) {
	for _, p := range planned {
		m := &models.Match{
			ID:          uuid.New(),
			EventID:     round.EventID,
			RoundID:     round.ID,
			TableNumber: p.TableNumber,
			AttendeeAID: p.AttendeeAID,
			AttendeeBID: p.AttendeeBID,
			ResponseA:   models.MatchResponseNoResponse,
			ResponseB:   models.MatchResponseNoResponse,
			CreatedAt:   testStart,
		}
		s.matches[m.ID] = m
		s.order = append(s.order, m.ID)
	}
}

func (s *memStore) UpdateRoundStatus(_ context.Context, change models.RoundStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, change)
	if r, ok := s.rounds[change.RoundID]; ok {
		r.Status = change.Status
	}
	return nil
}

func (s *memStore) GetMatch(_ context.Context, matchID uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateMatchResponse(_ context.Context, u results.ResponseUpdate) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[u.MatchID]
	if !ok {
		return nil, models.ErrNotFound
	}
	*m = results.ApplyResponse(*m, u)
	cp := *m
	return &cp, nil
}

func (s *memStore) ListEventMatches(_ context.Context, eventID uuid.UUID) ([]models.MatchDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	categories := make(map[uuid.UUID]models.Category)
	for _, a := range s.roster[eventID] {
		categories[a.ID] = a.Category
	}
	var out []models.MatchDetail
	for _, id := range s.order {
		m := s.matches[id]
		if m.EventID != eventID {
			continue
		}
		out = append(out, models.MatchDetail{
			Match:       *m,
			RoundNumber: s.rounds[m.RoundID].RoundNumber,
			CategoryA:   categories[m.AttendeeAID],
			CategoryB:   categories[m.AttendeeBID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

// recordingStatuses keeps status changes in memory.
type recordingStatuses struct {
	mu      sync.Mutex
	changes []models.RoundStatusChange
}

func (r *recordingStatuses) Enqueue(change models.RoundStatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingStatuses) all() []models.RoundStatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RoundStatusChange(nil), r.changes...)
}

type testEnv struct {
	gw       *Gateway
	hub      *Hub
	store    *memStore
	registry *timer.Registry
	statuses *recordingStatuses
	clock    *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	store := newMemStore()
	hub := NewHub()
	statuses := &recordingStatuses{}
	registry := timer.NewRegistry(context.Background(), clock, NewTranslator(hub, statuses), timer.DefaultWarningPolicy())
	t.Cleanup(registry.Shutdown)

	gw := New(Deps{
		Hub:        hub,
		Registry:   registry,
		Store:      store,
		Aggregator: results.NewAggregator(store, clock),
		Authorizer: tokenAuthorizer{},
		Clock:      clock,
	}, DefaultConnectionConfig())
	return &testEnv{gw: gw, hub: hub, store: store, registry: registry, statuses: statuses, clock: clock}
}

// connect registers a socketless client subscribed to rooms.
func (e *testEnv) connect(t *testing.T, identity auth.Identity, eventID uuid.UUID, rooms ...RoomKey) *Client {
	t.Helper()
	c := NewClient(identity, eventID, 64)
	if err := e.hub.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, k := range rooms {
		if err := e.hub.Subscribe(c.ID, k); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	return c
}

// tokenAuthorizer accepts tokens of the form "<role>" or "attendee:<uuid>".
type tokenAuthorizer struct{}

func (tokenAuthorizer) Authorize(_ context.Context, token string, _ uuid.UUID) (auth.Identity, error) {
	switch {
	case token == "":
		return auth.Identity{}, auth.ErrUnauthorized
	case token == "organizer":
		return auth.Identity{UserID: "org-1", Role: auth.RoleOrganizer}, nil
	case len(token) > len("attendee:") && token[:len("attendee:")] == "attendee:":
		id, err := uuid.Parse(token[len("attendee:"):])
		if err != nil {
			return auth.Identity{}, auth.ErrUnauthorized
		}
		return auth.Identity{UserID: "user-" + id.String()[:8], Role: auth.RoleAttendee, AttendeeID: id}, nil
	case token == "outsider":
		return auth.Identity{}, auth.ErrForbidden
	default:
		return auth.Identity{}, auth.ErrUnauthorized
	}
}

type wireMessage map[string]any

func (m wireMessage) kind() string {
	s, _ := m["type"].(string)
	return s
}

// queued returns every message waiting in c's queue.
func queued(t *testing.T, c *Client) []wireMessage {
	t.Helper()
	var out []wireMessage
	for {
		select {
		case payload, ok := <-c.Send():
			if !ok {
				return out
			}
			var m wireMessage
			if err := json.Unmarshal(payload, &m); err != nil {
				t.Fatalf("invalid payload %s: %v", payload, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func kinds(msgs []wireMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.kind()
	}
	return out
}

// find returns the first queued message of the given type.
func find(t *testing.T, msgs []wireMessage, kind MessageType) wireMessage {
	t.Helper()
	for _, m := range msgs {
		if m.kind() == string(kind) {
			return m
		}
	}
	t.Fatalf("no %s message in %v", kind, kinds(msgs))
	return nil
}
