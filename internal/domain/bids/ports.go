package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artfolio/auctions/internal/domain/auctions"
	"github.com/artfolio/auctions/pkg/events"
)

// BidRepository defines the interface for the append-only bid ledger
type BidRepository interface {
	// SaveBid inserts a bid within a transaction. Bids are never mutated
	// after this insert.
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetBidByID retrieves a bid by its ID
	GetBidByID(ctx context.Context, bidID uuid.UUID) (*Bid, error)

	// ListBidsByAuctionID retrieves bids for an auction, newest first
	ListBidsByAuctionID(ctx context.Context, auctionID uuid.UUID, limit int) ([]*Bid, error)

	// ListBidsByUserID retrieves a user's bids joined with auction status,
	// newest first, with pagination
	ListBidsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserBid, error)

	// GetUserHighestBid returns the user's highest bid on an auction, or
	// nil when the user has not bid
	GetUserHighestBid(ctx context.Context, auctionID, userID uuid.UUID) (*Bid, error)
}

// AuctionStateMachine is the slice of the auction service the bid service
// needs: refreshing a locked row before admission.
type AuctionStateMachine interface {
	Refresh(ctx context.Context, tx pgx.Tx, auction *auctions.Auction) error
}

// AuctionRepository is the slice of auction persistence the bid service uses
type AuctionRepository interface {
	GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error)
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error)
	RaiseCurrentPrice(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) (bool, error)
}

// OutboxRepository defines the slice of the outbox the bid service writes to
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
