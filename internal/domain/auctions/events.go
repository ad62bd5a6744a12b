package auctions

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeAuctionEnded is the routing key for settlement events
const EventTypeAuctionEnded = "auction.ended"

// AuctionEndedEvent is the outbox payload written when an auction settles.
// WinnerID is null when the auction had no bids or the reserve was not met;
// FinalPrice is the highest admitted amount either way.
type AuctionEndedEvent struct {
	AuctionID  uuid.UUID  `json:"auction_id"`
	ArtworkID  uuid.UUID  `json:"artwork_id"`
	SellerID   uuid.UUID  `json:"seller_id"`
	WinnerID   *uuid.UUID `json:"winner_id,omitempty"`
	FinalPrice *int64     `json:"final_price,omitempty"`
	BidCount   int64      `json:"bid_count"`
	ReserveMet bool       `json:"reserve_met"`
	EndedAt    time.Time  `json:"ended_at"`
}
