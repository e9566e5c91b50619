package domain

// Player is the reference data an offer is priced against.
type Player struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ClubID    string  `json:"clubId"`
	ClubName  string  `json:"clubName"`
	BasePrice float64 `json:"basePrice"`
}
