package matching

import (
	"sort"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// PlannedMatch is a table assignment produced for a round before it is
// persisted.
type PlannedMatch struct {
	TableNumber      int
	AttendeeAID      uuid.UUID
	AttendeeBID      uuid.UUID
	CategoryA        models.Category
	CategoryB        models.Category
	PreviouslyPaired int
}

// Plan is the outcome of scheduling one round.
type Plan struct {
	Matches    []PlannedMatch
	SittingOut []uuid.UUID
}

// RoundPlanStats summarises a plan for organizers.
type RoundPlanStats struct {
	Matches        int            `json:"matches"`
	SittingOut     int            `json:"sitting_out"`
	ByCategoryPair map[string]int `json:"by_category_pair"`
	RepeatPairings int            `json:"repeat_pairings"`
}

// Stats summarises the plan.
func (p *Plan) Stats() RoundPlanStats {
	s := RoundPlanStats{
		Matches:        len(p.Matches),
		SittingOut:     len(p.SittingOut),
		ByCategoryPair: make(map[string]int),
	}
	for _, m := range p.Matches {
		s.ByCategoryPair[models.CategoryPairKey(m.CategoryA, m.CategoryB)]++
		if m.PreviouslyPaired > 0 {
			s.RepeatPairings++
		}
	}
	return s
}

// Scheduler assigns attendees to tables for a round.
type Scheduler struct {
	compat *Compatibility
}

// NewScheduler creates a scheduler over the given compatibility table.
func NewScheduler(compat *Compatibility) *Scheduler {
	if compat == nil {
		compat = DefaultCompatibility()
	}
	return &Scheduler{compat: compat}
}

type edge struct {
	to       int
	tier     int // last round the pair met, 0 if never
	count    int
	priority int
}

func (a edge) less(b edge, ids []uuid.UUID) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if a.count != b.count {
		return a.count < b.count
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return idLess(ids[a.to], ids[b.to])
}

// BuildRound pairs the roster for the next round.
//
// Pairs that met least recently are seated first. Within a recency tier
// every free attendee, in ascending id order, takes its best free partner;
// when none is left it may re-seat already paired attendees along an
// alternating path so that nobody sits out while a pairing of the same or
// a fresher tier would seat them. The result depends only on the roster,
// the history and the compatibility table.
func (s *Scheduler) BuildRound(roster []models.Attendee, history *History, tableCapacity int) (*Plan, error) {
	people := normalizeRoster(roster)
	n := len(people)
	ids := make([]uuid.UUID, n)
	for i, a := range people {
		ids[i] = a.ID
	}

	adj := make([][]edge, n)
	tierSet := make(map[int]struct{})
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			prio, ok := s.compat.Priority(people[i].Category, people[j].Category)
			if !ok {
				continue
			}
			rec := history.Lookup(ids[i], ids[j])
			adj[i] = append(adj[i], edge{to: j, tier: rec.LastRound, count: rec.Count, priority: prio})
			adj[j] = append(adj[j], edge{to: i, tier: rec.LastRound, count: rec.Count, priority: prio})
			tierSet[rec.LastRound] = struct{}{}
		}
	}

	eligible := 0
	for i := range adj {
		if len(adj[i]) > 0 {
			eligible++
		}
		list := adj[i]
		sort.Slice(list, func(x, y int) bool { return list[x].less(list[y], ids) })
	}
	if eligible < 2 {
		return nil, &InsufficientRosterError{Roster: n, Eligible: eligible}
	}

	tiers := make([]int, 0, len(tierSet))
	for t := range tierSet {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)

	m := &matcher{adj: adj, mate: make([]int, n)}
	for i := range m.mate {
		m.mate[i] = -1
	}
	for _, limit := range tiers {
		for u := 0; u < n; u++ {
			if m.mate[u] != -1 || len(adj[u]) == 0 {
				continue
			}
			m.visited = make([]bool, n)
			m.augment(u, limit)
		}
	}

	plan := &Plan{}
	table := 1
	for u := 0; u < n; u++ {
		v := m.mate[u]
		switch {
		case v == -1:
			plan.SittingOut = append(plan.SittingOut, ids[u])
		case u < v:
			plan.Matches = append(plan.Matches, PlannedMatch{
				TableNumber:      table,
				AttendeeAID:      ids[u],
				AttendeeBID:      ids[v],
				CategoryA:        people[u].Category,
				CategoryB:        people[v].Category,
				PreviouslyPaired: history.Lookup(ids[u], ids[v]).Count,
			})
			table++
		}
	}

	if tableCapacity > 0 && len(plan.Matches) > tableCapacity {
		return nil, &CapacityError{Required: len(plan.Matches), Capacity: tableCapacity}
	}
	return plan, nil
}

type matcher struct {
	adj     [][]edge
	mate    []int
	visited []bool
}

// augment seats u using edges no staler than limit, reporting success.
func (m *matcher) augment(u, limit int) bool {
	m.visited[u] = true
	for _, e := range m.adj[u] {
		if e.tier > limit {
			break
		}
		if v := e.to; !m.visited[v] && m.mate[v] == -1 {
			m.visited[v] = true
			m.pair(u, v)
			return true
		}
	}
	for _, e := range m.adj[u] {
		if e.tier > limit {
			break
		}
		v := e.to
		if m.visited[v] {
			continue
		}
		m.visited[v] = true
		w := m.mate[v]
		if w == -1 || m.visited[w] {
			continue
		}
		if m.augment(w, limit) {
			m.pair(u, v)
			return true
		}
	}
	return false
}

func (m *matcher) pair(u, v int) {
	m.mate[u] = v
	m.mate[v] = u
}

// normalizeRoster sorts by id and drops duplicate ids.
func normalizeRoster(roster []models.Attendee) []models.Attendee {
	out := make([]models.Attendee, 0, len(roster))
	seen := make(map[uuid.UUID]struct{}, len(roster))
	for _, a := range roster {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}
