package domain

// Bus channels published by the services.
const (
	ChannelNotifications = "lvz:notifications"
	ChannelOffers        = "lvz:offers"
	ChannelMarket        = "lvz:market"
)

// OfferEvent is the payload published on ChannelOffers after a mutation.
type OfferEvent struct {
	Kind  string `json:"kind"` // created, approved, rejected, expired, imported
	Offer Offer  `json:"offer"`
}

// StreamOfferEvents is the durable log every OfferEvent is appended to.
const StreamOfferEvents = "lvz:offer-events"
