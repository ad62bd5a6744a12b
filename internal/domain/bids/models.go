package bids

import (
	"time"

	"github.com/google/uuid"

	"github.com/artfolio/auctions/internal/domain/auctions"
)

// Bid is an immutable, timestamped offer against an auction. Rows are insert
// only: they serve as the audit trail and are never updated or deleted.
type Bid struct {
	ID        uuid.UUID `db:"id"`
	AuctionID uuid.UUID `db:"auction_id"`
	UserID    uuid.UUID `db:"user_id"`
	Amount    int64     `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}

// UserBid is a bid joined with the status of its auction, for "my bids"
// style listings.
type UserBid struct {
	Bid
	AuctionStatus  auctions.Status
	AuctionEndTime time.Time
	ArtworkID      uuid.UUID
}

// PlaceBidCommand represents the command to place a bid
type PlaceBidCommand struct {
	AuctionID uuid.UUID
	UserID    uuid.UUID
	Amount    int64
}
