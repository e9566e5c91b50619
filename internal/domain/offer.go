package domain

import "time"

// OfferStatus is the lifecycle state of a transfer offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferApproved OfferStatus = "approved"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// Valid reports whether s is one of the four known statuses.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferApproved, OfferRejected, OfferExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferApproved || s == OfferRejected || s == OfferExpired
}

// CanTransition reports whether an offer in status s may move to next.
// Only pending offers move, and only into a terminal status.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	return s == OfferPending && next.IsTerminal()
}

// Offer is a proposal from one club to buy a player from another.
type Offer struct {
	ID           string      `json:"id"`
	PlayerID     string      `json:"playerId"`
	PlayerName   string      `json:"playerName"`
	FromClubID   string      `json:"fromClubId"`
	FromClubName string      `json:"fromClubName"`
	ToClubID     string      `json:"toClubId"`
	ToClubName   string      `json:"toClubName"`
	Amount       float64     `json:"amount"`
	Status       OfferStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	RejectReason string      `json:"rejectReason,omitempty"`
}

// IsStale reports whether a pending offer has passed its expiry at now.
func (o Offer) IsStale(now time.Time) bool {
	return o.Status == OfferPending && now.After(o.ExpiresAt)
}

// NewOffer is the caller-supplied part of an offer at creation time.
type NewOffer struct {
	PlayerID     string  `json:"playerId"`
	PlayerName   string  `json:"playerName,omitempty"`
	FromClubID   string  `json:"fromClubId"`
	FromClubName string  `json:"fromClubName,omitempty"`
	ToClubID     string  `json:"toClubId"`
	ToClubName   string  `json:"toClubName,omitempty"`
	Amount       float64 `json:"amount"`
}

// OfferFilter narrows an offer listing. Zero values match everything.
type OfferFilter struct {
	Status     OfferStatus
	ClubID     string // matches either side of the deal
	PlayerID   string
	SortRecent bool // createdAt descending instead of insertion order
}

// Match reports whether o satisfies every set field of f.
func (f OfferFilter) Match(o Offer) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.ClubID != "" && o.FromClubID != f.ClubID && o.ToClubID != f.ClubID {
		return false
	}
	if f.PlayerID != "" && o.PlayerID != f.PlayerID {
		return false
	}
	return true
}

// TransitionExtra carries optional fields applied alongside a status change.
type TransitionExtra struct {
	RejectReason string
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
}
