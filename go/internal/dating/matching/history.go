package matching

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// PairRecord summarises how often and how recently two attendees met.
type PairRecord struct {
	Count     int
	LastRound int
}

type pairKey struct {
	lo, hi uuid.UUID
}

func newPairKey(a, b uuid.UUID) pairKey {
	if idLess(b, a) {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

func idLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// History is the pairing record of an event, rebuilt from persisted matches
// before each round.
type History struct {
	pairs map[pairKey]PairRecord
}

// NewHistory indexes past pairings by unordered attendee pair.
func NewHistory(past []models.PastPairing) *History {
	h := &History{pairs: make(map[pairKey]PairRecord, len(past))}
	for _, p := range past {
		h.Record(p.AttendeeAID, p.AttendeeBID, p.RoundNumber)
	}
	return h
}

// Record notes that a and b sat together in round.
func (h *History) Record(a, b uuid.UUID, round int) {
	if h.pairs == nil {
		h.pairs = make(map[pairKey]PairRecord)
	}
	k := newPairKey(a, b)
	rec := h.pairs[k]
	rec.Count++
	if round > rec.LastRound {
		rec.LastRound = round
	}
	h.pairs[k] = rec
}

// Lookup returns the record for the pair; the zero value means never paired.
func (h *History) Lookup(a, b uuid.UUID) PairRecord {
	if h == nil {
		return PairRecord{}
	}
	return h.pairs[newPairKey(a, b)]
}

// Len returns the number of distinct pairs seen.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.pairs)
}
