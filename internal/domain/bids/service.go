package bids

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/artfolio/auctions/internal/domain/auctions"
	"github.com/artfolio/auctions/pkg/clock"
	"github.com/artfolio/auctions/pkg/database"
	"github.com/artfolio/auctions/pkg/events"
)

// Validation errors
var (
	ErrAuctionNotActive  = fmt.Errorf("auction is not active")
	ErrBidTooLow         = fmt.Errorf("bid amount is below the minimum next bid")
	ErrInvalidBidAmount  = fmt.Errorf("bid amount must be positive")
	ErrSelfBidForbidden  = fmt.Errorf("seller cannot bid on their own artwork")
	ErrConcurrentBidLost = fmt.Errorf("a concurrent bid raised the price first")
)

// validateBidAmount checks a bid against the floor derived from the auction.
// The floor is starting_price until a bid exists, then current_price plus
// the minimum increment.
func validateBidAmount(amount, floor int64) error {
	if amount <= 0 {
		return ErrInvalidBidAmount
	}
	if amount < floor {
		return ErrBidTooLow
	}
	return nil
}

// Service admits bids and serves the read side of the ledger
type Service struct {
	txManager    database.TransactionManager
	bidRepo      BidRepository
	auctionRepo  AuctionRepository
	stateMachine AuctionStateMachine
	outboxRepo   OutboxRepository
	clock        clock.Clock
}

// NewService creates a new bid service
func NewService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	auctionRepo AuctionRepository,
	stateMachine AuctionStateMachine,
	outboxRepo OutboxRepository,
	clk clock.Clock,
) *Service {
	return &Service{
		txManager:    txManager,
		bidRepo:      bidRepo,
		auctionRepo:  auctionRepo,
		stateMachine: stateMachine,
		outboxRepo:   outboxRepo,
		clock:        clk,
	}
}

// PlaceBid validates and admits a bid. The admission check and the price
// update run in one transaction under the locked auction row: either the bid
// row and the auction update both commit, or neither does. The status is
// refreshed in the same transaction first, so a bid arriving between
// end_time and the next sweep settles the auction and is rejected with
// ErrAuctionNotActive rather than landing on a stale row.
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*Bid, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	// Lock the auction row so concurrent bids on this auction serialise
	auction, err := s.auctionRepo.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	if err := s.stateMachine.Refresh(ctx, tx, auction); err != nil {
		return nil, err
	}

	if auction.Status != auctions.StatusActive {
		// The refresh may just have settled an expired auction; persist that
		// transition even though the bid itself is rejected.
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
		return nil, ErrAuctionNotActive
	}

	if auction.IsOwnedBy(cmd.UserID) {
		return nil, ErrSelfBidForbidden
	}

	if valErr := validateBidAmount(cmd.Amount, auction.MinimumNextBid()); valErr != nil {
		return nil, valErr
	}

	bid := &Bid{
		ID:        uuid.New(),
		AuctionID: cmd.AuctionID,
		UserID:    cmd.UserID,
		Amount:    cmd.Amount,
		CreatedAt: s.clock.Now(),
	}

	if saveErr := s.bidRepo.SaveBid(ctx, tx, bid); saveErr != nil {
		return nil, fmt.Errorf("failed to save bid: %w", saveErr)
	}

	// The update re-checks the floor in SQL. Under the row lock the check
	// cannot fail, but the repository keeps the conditional form so the
	// stored price can never regress whatever path reaches it.
	raised, raiseErr := s.auctionRepo.RaiseCurrentPrice(ctx, tx, cmd.AuctionID, cmd.Amount)
	if raiseErr != nil {
		return nil, fmt.Errorf("failed to update current price: %w", raiseErr)
	}
	if !raised {
		return nil, ErrConcurrentBidLost
	}

	payload, marshalErr := json.Marshal(BidPlacedEvent{
		BidID:     bid.ID,
		AuctionID: bid.AuctionID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		PlacedAt:  bid.CreatedAt,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", marshalErr)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeBidPlaced,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if saveErr := s.outboxRepo.SaveEvent(ctx, tx, outboxEvent); saveErr != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", saveErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	return bid, nil
}

// ListBids retrieves the bids for an auction, newest first
func (s *Service) ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*Bid, error) {
	result, err := s.bidRepo.ListBidsByAuctionID(ctx, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return result, nil
}

// UserBids retrieves a user's bids joined with the status of each auction
func (s *Service) UserBids(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserBid, error) {
	result, err := s.bidRepo.ListBidsByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bids: %w", err)
	}
	return result, nil
}

// UserHighestBid returns the user's highest bid on an auction, or nil when
// the user has not bid on it
func (s *Service) UserHighestBid(ctx context.Context, auctionID, userID uuid.UUID) (*Bid, error) {
	bid, err := s.bidRepo.GetUserHighestBid(ctx, auctionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user highest bid: %w", err)
	}
	return bid, nil
}

// IsUserWinning reports whether the user currently leads an active auction,
// or won an ended one. The ended case reads winner_id, the single source of
// truth written at settlement.
func (s *Service) IsUserWinning(ctx context.Context, auctionID, userID uuid.UUID) (bool, error) {
	auction, err := s.auctionRepo.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return false, err
	}

	switch auction.Status {
	case auctions.StatusEnded:
		return auction.WinnerID != nil && *auction.WinnerID == userID, nil
	case auctions.StatusActive:
		if auction.CurrentPrice == nil {
			return false, nil
		}
		highest, err := s.bidRepo.GetUserHighestBid(ctx, auctionID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to get user highest bid: %w", err)
		}
		return highest != nil && highest.Amount == *auction.CurrentPrice, nil
	default:
		return false, nil
	}
}
