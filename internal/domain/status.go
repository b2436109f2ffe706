package domain

// TripStatus is the operational state of a trip.
type TripStatus string

const (
	StatusScheduled TripStatus = "SCHEDULED"
	StatusDelayed   TripStatus = "DELAYED"
	StatusBoarding  TripStatus = "BOARDING"
	StatusDeparted  TripStatus = "DEPARTED"
	StatusCompleted TripStatus = "COMPLETED"
	StatusCancelled TripStatus = "CANCELLED"
)

// AllowedTransitions is the trip state flow. Statuses missing from the map
// (COMPLETED, CANCELLED) are terminal. Actor-specific rules such as who may
// depart a trip are enforced by the service layer; this map only defines which
// pairs are structurally valid.
var AllowedTransitions = map[TripStatus][]TripStatus{
	StatusScheduled: {StatusDelayed, StatusBoarding, StatusDeparted, StatusCancelled},
	StatusDelayed:   {StatusBoarding, StatusDeparted, StatusCancelled, StatusScheduled},
	StatusBoarding:  {StatusDeparted, StatusCancelled, StatusDelayed},
	StatusDeparted:  {StatusCompleted},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[TripStatus][]TripStatus) map[TripStatus]map[TripStatus]struct{} {
	set := make(map[TripStatus]map[TripStatus]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[TripStatus]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to TripStatus) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// NextStatuses returns the legal targets from s in table order. The returned
// slice is a copy and is empty for terminal statuses.
func NextStatuses(s TripStatus) []TripStatus {
	next := AllowedTransitions[s]
	out := make([]TripStatus, len(next))
	copy(out, next)
	return out
}

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusDelayed, StatusBoarding, StatusDeparted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ViewOnly reports whether a trip in s may no longer have its fields edited.
// Only status and audit log writes are allowed past this point.
func (s TripStatus) ViewOnly() bool {
	return s == StatusDeparted || s == StatusCompleted || s == StatusCancelled
}

// ViewOnlyStatuses lists the statuses for which ViewOnly is true, in the form
// set-oriented queries need.
var ViewOnlyStatuses = []TripStatus{StatusDeparted, StatusCompleted, StatusCancelled}
