package bids

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeBidPlaced is the routing key for admission events
const EventTypeBidPlaced = "bid.placed"

// BidPlacedEvent is the outbox payload written in the same transaction as a
// successful admission.
type BidPlacedEvent struct {
	BidID     uuid.UUID `json:"bid_id"`
	AuctionID uuid.UUID `json:"auction_id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}
