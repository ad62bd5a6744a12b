package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artfolio/auctions/pkg/events"
)

// Repository defines the interface for auction persistence
type Repository interface {
	// CreateAuction creates a new auction row
	CreateAuction(ctx context.Context, auction *Auction) error

	// GetAuctionByID retrieves an auction by its ID (non-transactional read)
	GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*Auction, error)

	// GetAuctionByIDForUpdate retrieves an auction and locks its row.
	// Every admission or transition happens under this lock, so two bids
	// racing on the same auction serialise here. Must run inside a transaction.
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error)

	// ActivateAuction moves a pending auction to active, guarded on the
	// stored status so the transition cannot resurrect a terminal row
	ActivateAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error)

	// EndAuction moves an auction to ended and records the winner, guarded
	// with WHERE status NOT IN ('ended','cancelled'). Returns false when the
	// row was already terminal, which means settlement must not run again.
	EndAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, winnerID *uuid.UUID) (bool, error)

	// CancelAuction moves a bid-free, non-terminal auction to cancelled
	CancelAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error)

	// RaiseCurrentPrice sets current_price to amount and increments
	// bid_count, conditional on amount still clearing the stored floor.
	// Returns false when the update matched no row (a concurrent bid won).
	RaiseCurrentPrice(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) (bool, error)

	// ListDueAuctionIDs returns IDs of pending/active auctions whose
	// end_time is at or before now, oldest expiry first
	ListDueAuctionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// ListAuctionsBySellerID retrieves a seller's auctions with pagination
	ListAuctionsBySellerID(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*Auction, error)
}

// TopBid is the ledger entry that decides settlement: the admitted bid with
// the greatest amount, ties broken by earliest created_at.
type TopBid struct {
	BidID     uuid.UUID
	UserID    uuid.UUID
	Amount    int64
	CreatedAt time.Time
}

// BidLedger is the read surface the state machine needs from the bid store.
// Defined here rather than in the bids package to keep the dependency
// pointing from bids to auctions.
type BidLedger interface {
	// TopBid returns the leading bid for an auction within the transaction,
	// or nil when the auction has no bids
	TopBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*TopBid, error)
}

// OutboxRepository defines the slice of the outbox the state machine writes to
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
