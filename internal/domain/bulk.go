package domain

import "github.com/google/uuid"

// BulkAction is an administrative operation applied to many trips at once.
type BulkAction string

const (
	BulkUpdatePrice BulkAction = "UPDATE_PRICE"
	BulkHalt        BulkAction = "HALT"
	BulkResume      BulkAction = "RESUME"
	BulkDelete      BulkAction = "DELETE"
)

// MaxBulkTrips is the hard cap on trip ids per bulk call. Larger requests are
// rejected, never truncated.
const MaxBulkTrips = 100

// Valid reports whether a is a known bulk action.
func (a BulkAction) Valid() bool {
	switch a {
	case BulkUpdatePrice, BulkHalt, BulkResume, BulkDelete:
		return true
	}
	return false
}

// BulkRequest is one bulk call. Price is required for UPDATE_PRICE only.
type BulkRequest struct {
	Action  BulkAction  `json:"action"`
	TripIDs []uuid.UUID `json:"trip_ids"`
	Price   *float64    `json:"price,omitempty"`
}

// BulkResult reports per-item outcomes. The batch never fails as a whole once
// the up-front cap and authorization checks pass; Skipped counts ids a
// set-oriented halt/resume did not match.
type BulkResult struct {
	Action    BulkAction  `json:"action"`
	Requested int         `json:"requested"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	TimedOut  bool        `json:"timed_out"`
	Items     []ItemError `json:"errors"`
}

// Fail records a per-item failure.
func (r *BulkResult) Fail(tripID uuid.UUID, err error) {
	r.Failed++
	r.Items = append(r.Items, NewItemError(tripID, err))
}
