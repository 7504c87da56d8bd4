// Package domain holds the lead lifecycle model shared by the repository,
// service, and ranking layers.
package domain

// Type classifies what the contact is asking about.
type Type string

const (
	TypeBuyer    Type = "buyer"
	TypeSeller   Type = "seller"
	TypeMortgage Type = "mortgage"
	TypeRental   Type = "rental"
)

// Valid reports whether the lead type is one of the known values.
func (t Type) Valid() bool {
	switch t {
	case TypeBuyer, TypeSeller, TypeMortgage, TypeRental:
		return true
	}
	return false
}

// Status is a lead's position in its lifecycle.
type Status string

const (
	StatusNew        Status = "new"
	StatusDelivered  Status = "delivered"
	StatusContacted  Status = "contacted"
	StatusQualified  Status = "qualified"
	StatusClosedWon  Status = "closed_won"
	StatusClosedLost Status = "closed_lost"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitions is the lead lifecycle graph. closed_lost is reachable from any
// non-terminal delivered-or-later state; the closed states are terminal.
var transitions = map[Status][]Status{
	StatusNew:        {StatusDelivered},
	StatusDelivered:  {StatusContacted, StatusClosedLost},
	StatusContacted:  {StatusQualified, StatusClosedLost},
	StatusQualified:  {StatusClosedWon, StatusClosedLost},
	StatusClosedWon:  {},
	StatusClosedLost: {},
}

// CanTransition reports whether a lead may move from one status to another.
// A same-status "transition" is not legal here; callers treat it as a no-op
// before consulting the graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
