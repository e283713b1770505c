package models

import "github.com/google/uuid"

// Category is the pairing category an attendee registered under.
type Category string

const (
	CategoryTopMale      Category = "top_male"
	CategoryTopFemale    Category = "top_female"
	CategoryBottomMale   Category = "bottom_male"
	CategoryBottomFemale Category = "bottom_female"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryTopMale, CategoryTopFemale, CategoryBottomMale, CategoryBottomFemale}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTopMale, CategoryTopFemale, CategoryBottomMale, CategoryBottomFemale:
		return true
	}
	return false
}

// Attendee is a registered participant of an event. Only ID and Category
// drive pairing; the rest is carried for display.
type Attendee struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	DisplayName string    `json:"display_name"`
	Category    Category  `json:"category"`
}

// PastPairing is one earlier seating of two attendees in the same event.
type PastPairing struct {
	AttendeeAID uuid.UUID `json:"attendee_a_id"`
	AttendeeBID uuid.UUID `json:"attendee_b_id"`
	RoundNumber int       `json:"round_number"`
}

// CategoryPairKey returns an order-independent key such as
// "top_female-top_male" for reporting by category pair.
func CategoryPairKey(a, b Category) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + "-" + string(b)
}
