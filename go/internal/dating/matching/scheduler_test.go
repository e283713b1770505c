package matching

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

func testID(n int) uuid.UUID {
	var id uuid.UUID
	id[14] = byte(n >> 8)
	id[15] = byte(n)
	return id
}

func attendee(n int, c models.Category) models.Attendee {
	return models.Attendee{ID: testID(n), Category: c}
}

// balancedRoster returns size top_male attendees (ids 1..size) and size
// top_female attendees (ids 101..100+size).
func balancedRoster(size int) []models.Attendee {
	var roster []models.Attendee
	for i := 1; i <= size; i++ {
		roster = append(roster, attendee(i, models.CategoryTopMale))
	}
	for i := 1; i <= size; i++ {
		roster = append(roster, attendee(100+i, models.CategoryTopFemale))
	}
	return roster
}

func assertValidPlan(t *testing.T, c *Compatibility, roster []models.Attendee, plan *Plan) {
	t.Helper()
	categories := make(map[uuid.UUID]models.Category)
	for _, a := range roster {
		categories[a.ID] = a.Category
	}
	seen := make(map[uuid.UUID]bool)
	for i, m := range plan.Matches {
		if m.TableNumber != i+1 {
			t.Errorf("match %d has table %d, want %d", i, m.TableNumber, i+1)
		}
		if m.AttendeeAID == m.AttendeeBID {
			t.Errorf("table %d seats %s with itself", m.TableNumber, m.AttendeeAID)
		}
		if !c.Compatible(categories[m.AttendeeAID], categories[m.AttendeeBID]) {
			t.Errorf("table %d pairs incompatible categories %s and %s",
				m.TableNumber, categories[m.AttendeeAID], categories[m.AttendeeBID])
		}
		for _, id := range []uuid.UUID{m.AttendeeAID, m.AttendeeBID} {
			if seen[id] {
				t.Errorf("attendee %s seated twice", id)
			}
			seen[id] = true
		}
	}
	for _, id := range plan.SittingOut {
		if seen[id] {
			t.Errorf("attendee %s both seated and sitting out", id)
		}
		seen[id] = true
	}
	if len(seen) != len(categories) {
		t.Errorf("plan accounts for %d attendees, roster has %d", len(seen), len(categories))
	}
}

func TestBuildRoundSixAttendees(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	roster := balancedRoster(3)

	plan, err := s.BuildRound(roster, nil, 3)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	if len(plan.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(plan.Matches))
	}
	if len(plan.SittingOut) != 0 {
		t.Fatalf("expected nobody sitting out, got %v", plan.SittingOut)
	}
	assertValidPlan(t, DefaultCompatibility(), roster, plan)
	for _, m := range plan.Matches {
		if m.CategoryA == m.CategoryB {
			t.Errorf("table %d is not cross-category", m.TableNumber)
		}
	}
}

func TestBuildRoundIsDeterministic(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	roster := []models.Attendee{
		attendee(7, models.CategoryTopMale),
		attendee(3, models.CategoryBottomFemale),
		attendee(9, models.CategoryTopFemale),
		attendee(1, models.CategoryBottomMale),
		attendee(4, models.CategoryTopFemale),
		attendee(8, models.CategoryTopMale),
		attendee(2, models.CategoryBottomFemale),
	}
	history := NewHistory([]models.PastPairing{
		{AttendeeAID: testID(7), AttendeeBID: testID(9), RoundNumber: 1},
		{AttendeeAID: testID(1), AttendeeBID: testID(3), RoundNumber: 1},
	})

	first, err := s.BuildRound(roster, history, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}

	shuffled := append([]models.Attendee(nil), roster...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, err := s.BuildRound(shuffled, history, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("plans differ:\n%+v\n%+v", first, second)
	}
}

func TestBuildRoundFairnessOverRounds(t *testing.T) {
	for _, size := range []int{3, 4, 5} {
		size := size
		t.Run(fmt.Sprintf("%dx%d", size, size), func(t *testing.T) {
			s := NewScheduler(DefaultCompatibility())
			roster := balancedRoster(size)
			history := NewHistory(nil)
			met := make(map[pairKey]int)

			for round := 1; round <= size; round++ {
				plan, err := s.BuildRound(roster, history, size)
				if err != nil {
					t.Fatalf("round %d: %v", round, err)
				}
				assertValidPlan(t, DefaultCompatibility(), roster, plan)
				if len(plan.Matches) != size {
					t.Fatalf("round %d: expected %d matches, got %d", round, size, len(plan.Matches))
				}
				for _, m := range plan.Matches {
					k := newPairKey(m.AttendeeAID, m.AttendeeBID)
					met[k]++
					if met[k] > 1 {
						t.Fatalf("round %d repeats pair %s/%s before pool was exhausted",
							round, m.AttendeeAID, m.AttendeeBID)
					}
					history.Record(m.AttendeeAID, m.AttendeeBID, round)
				}
			}
			if len(met) != size*size {
				t.Fatalf("expected every cross pair to meet once, got %d distinct pairs", len(met))
			}

			// With the pool exhausted the next round falls back to the
			// pairs that met longest ago.
			plan, err := s.BuildRound(roster, history, size)
			if err != nil {
				t.Fatalf("round %d: %v", size+1, err)
			}
			for _, m := range plan.Matches {
				if rec := history.Lookup(m.AttendeeAID, m.AttendeeBID); rec.LastRound != 1 {
					t.Errorf("expected round-1 pair to repeat first, got pair last seen in round %d", rec.LastRound)
				}
			}
		})
	}
}

func TestBuildRoundOddRosterSitsOut(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	roster := []models.Attendee{
		attendee(1, models.CategoryTopMale),
		attendee(2, models.CategoryTopMale),
		attendee(3, models.CategoryTopMale),
		attendee(4, models.CategoryTopFemale),
		attendee(5, models.CategoryTopFemale),
	}
	plan, err := s.BuildRound(roster, nil, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	if len(plan.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(plan.Matches))
	}
	if len(plan.SittingOut) != 1 || plan.SittingOut[0] != testID(3) {
		t.Fatalf("expected attendee 3 sitting out, got %v", plan.SittingOut)
	}
	assertValidPlan(t, DefaultCompatibility(), roster, plan)
}

func TestBuildRoundPrefersCategoryPriority(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	roster := []models.Attendee{
		attendee(1, models.CategoryTopMale),
		attendee(2, models.CategoryBottomFemale),
		attendee(3, models.CategoryTopFemale),
	}
	plan, err := s.BuildRound(roster, nil, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	if len(plan.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(plan.Matches))
	}
	m := plan.Matches[0]
	if m.AttendeeAID != testID(1) || m.AttendeeBID != testID(3) {
		t.Fatalf("expected top_male seated with top_female, got %s/%s", m.AttendeeAID, m.AttendeeBID)
	}
}

func TestBuildRoundReseatsToAvoidSittingOut(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	// Attendee 1 prefers 3 (top_female), but 2 has already met 4, so 1 is
	// moved over to 4 to keep every table fresh.
	roster := []models.Attendee{
		attendee(1, models.CategoryTopMale),
		attendee(2, models.CategoryBottomMale),
		attendee(3, models.CategoryTopFemale),
		attendee(4, models.CategoryBottomFemale),
	}
	history := NewHistory([]models.PastPairing{
		{AttendeeAID: testID(2), AttendeeBID: testID(4), RoundNumber: 1},
	})
	plan, err := s.BuildRound(roster, history, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	if len(plan.SittingOut) != 0 {
		t.Fatalf("expected everyone seated, sitting out: %v", plan.SittingOut)
	}
	assertValidPlan(t, DefaultCompatibility(), roster, plan)
	for _, m := range plan.Matches {
		if m.PreviouslyPaired != 0 {
			t.Errorf("table %d repeats a pairing", m.TableNumber)
		}
	}
}

func TestBuildRoundCompatibilityProperty(t *testing.T) {
	c := DefaultCompatibility()
	s := NewScheduler(c)
	rng := rand.New(rand.NewSource(7))
	cats := models.Categories()

	for trial := 0; trial < 50; trial++ {
		var roster []models.Attendee
		size := 2 + rng.Intn(30)
		for i := 0; i < size; i++ {
			roster = append(roster, attendee(i+1, cats[rng.Intn(len(cats))]))
		}
		plan, err := s.BuildRound(roster, nil, 0)
		if errors.Is(err, ErrInsufficientRoster) {
			continue
		}
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		assertValidPlan(t, c, roster, plan)
	}
}

func TestBuildRoundErrors(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())

	t.Run("single attendee", func(t *testing.T) {
		_, err := s.BuildRound([]models.Attendee{attendee(1, models.CategoryTopMale)}, nil, 0)
		if !errors.Is(err, ErrInsufficientRoster) {
			t.Fatalf("expected ErrInsufficientRoster, got %v", err)
		}
	})

	t.Run("no compatible pair", func(t *testing.T) {
		roster := []models.Attendee{
			attendee(1, models.CategoryTopMale),
			attendee(2, models.CategoryBottomMale),
			attendee(3, models.CategoryTopMale),
		}
		_, err := s.BuildRound(roster, nil, 0)
		var insufficient *InsufficientRosterError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected *InsufficientRosterError, got %v", err)
		}
		if insufficient.Roster != 3 || insufficient.Eligible != 0 {
			t.Fatalf("unexpected error detail: %+v", insufficient)
		}
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		_, err := s.BuildRound(balancedRoster(3), nil, 2)
		var capErr *CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("expected *CapacityError, got %v", err)
		}
		if capErr.Required != 3 || capErr.Capacity != 2 {
			t.Fatalf("unexpected error detail: %+v", capErr)
		}
		if !errors.Is(err, ErrCapacity) {
			t.Fatal("expected errors.Is(err, ErrCapacity)")
		}
	})
}

func TestPlanStats(t *testing.T) {
	s := NewScheduler(DefaultCompatibility())
	roster := []models.Attendee{
		attendee(1, models.CategoryTopMale),
		attendee(2, models.CategoryTopFemale),
		attendee(3, models.CategoryBottomMale),
		attendee(4, models.CategoryBottomFemale),
		attendee(5, models.CategoryBottomFemale),
	}
	history := NewHistory([]models.PastPairing{
		{AttendeeAID: testID(1), AttendeeBID: testID(2), RoundNumber: 1},
	})
	plan, err := s.BuildRound(roster, history, 0)
	if err != nil {
		t.Fatalf("BuildRound: %v", err)
	}
	stats := plan.Stats()
	if stats.Matches != 2 || stats.SittingOut != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	total := 0
	for _, n := range stats.ByCategoryPair {
		total += n
	}
	if total != 2 {
		t.Fatalf("category breakdown counts %d matches, want 2", total)
	}
}

func TestHistoryLookupIsOrderIndependent(t *testing.T) {
	h := NewHistory(nil)
	h.Record(testID(2), testID(1), 1)
	h.Record(testID(1), testID(2), 3)

	rec := h.Lookup(testID(1), testID(2))
	if rec.Count != 2 || rec.LastRound != 3 {
		t.Fatalf("Lookup = %+v, want count 2 last round 3", rec)
	}
	if h.Lookup(testID(2), testID(1)) != rec {
		t.Fatal("lookup depends on argument order")
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	var nilHistory *History
	if nilHistory.Lookup(testID(1), testID(2)) != (PairRecord{}) {
		t.Fatal("nil history should report never paired")
	}
}
