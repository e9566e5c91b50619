package domain

import "time"

// MarketState describes whether the transfer window is open.
type MarketState struct {
	Open     bool       `json:"open"`
	OpenedAt *time.Time `json:"openedAt,omitempty"`
	ClosesAt *time.Time `json:"closesAt,omitempty"`
}

// DueToClose reports whether an open market has passed its scheduled close.
func (m MarketState) DueToClose(now time.Time) bool {
	return m.Open && m.ClosesAt != nil && !now.Before(*m.ClosesAt)
}
