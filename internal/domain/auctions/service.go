package auctions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artfolio/auctions/pkg/clock"
	"github.com/artfolio/auctions/pkg/database"
	"github.com/artfolio/auctions/pkg/events"
)

// Service errors
var (
	ErrAuctionNotFound      = fmt.Errorf("auction not found")
	ErrInvalidStartingPrice = fmt.Errorf("starting price must be greater than 0")
	ErrInvalidReservePrice  = fmt.Errorf("reserve price must not be below the starting price")
	ErrInvalidBidIncrement  = fmt.Errorf("minimum bid increment must be greater than 0")
	ErrInvalidSchedule      = fmt.Errorf("end time must be after start time and in the future")
	ErrUnauthorized         = fmt.Errorf("unauthorized: only the seller can perform this action")
	ErrCannotCancel         = fmt.Errorf("cannot cancel auction: auction has bids or already ended")
)

// Service owns the auction lifecycle: creation, the time-driven state
// machine, and one-shot settlement on the transition to ended.
type Service struct {
	txManager database.TransactionManager
	repo      Repository
	ledger    BidLedger
	outbox    OutboxRepository
	clock     clock.Clock
}

// NewService creates a new auction lifecycle service
func NewService(
	txManager database.TransactionManager,
	repo Repository,
	ledger BidLedger,
	outbox OutboxRepository,
	clk clock.Clock,
) *Service {
	return &Service{
		txManager: txManager,
		repo:      repo,
		ledger:    ledger,
		outbox:    outbox,
		clock:     clk,
	}
}

// CreateAuction opens an auction for an artwork. The auction starts in
// pending, or directly in active when start_time is not in the future.
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	if cmd.StartingPrice <= 0 {
		return nil, ErrInvalidStartingPrice
	}
	if cmd.ReservePrice != nil && *cmd.ReservePrice < cmd.StartingPrice {
		return nil, ErrInvalidReservePrice
	}
	// A zero increment would admit a bid equal to the current price and
	// break the strictly-increasing admission order.
	if cmd.MinBidIncrement <= 0 {
		return nil, ErrInvalidBidIncrement
	}

	now := s.clock.Now()
	if !cmd.EndTime.After(cmd.StartTime) || !cmd.EndTime.After(now) {
		return nil, ErrInvalidSchedule
	}

	status := StatusPending
	if !now.Before(cmd.StartTime) {
		status = StatusActive
	}

	auction := &Auction{
		ID:              uuid.New(),
		ArtworkID:       cmd.ArtworkID,
		SellerID:        cmd.SellerID,
		StartingPrice:   cmd.StartingPrice,
		ReservePrice:    cmd.ReservePrice,
		MinBidIncrement: cmd.MinBidIncrement,
		StartTime:       cmd.StartTime,
		EndTime:         cmd.EndTime,
		Status:          status,
		BidCount:        0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	return auction, nil
}

// GetAuction retrieves an auction by ID without refreshing its status.
// Callers that need a fresh status should use RefreshStatus.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	auction, err := s.repo.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return auction, nil
}

// RefreshStatus derives the status implied by the clock, persists it when it
// changed, and runs settlement exactly once on the transition to ended. It is
// idempotent: refreshing an already-ended auction re-derives the same
// snapshot and never re-settles.
func (s *Service) RefreshStatus(ctx context.Context, auctionID uuid.UUID) (*Snapshot, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}

	if err := s.Refresh(ctx, tx, auction); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snapshotAt(auction, s.clock.Now()), nil
}

// Refresh applies the time-driven transition to a row already locked in the
// given transaction, mutating the auction in place. The bid service calls
// this before admission so a bid never lands on a stale status.
//
// Transitions: pending -> active needs no side effects; pending/active ->
// ended settles. A pending auction swept after its end_time goes straight
// to ended.
func (s *Service) Refresh(ctx context.Context, tx pgx.Tx, auction *Auction) error {
	implied := auction.StatusAt(s.clock.Now())
	if implied == auction.Status {
		return nil
	}

	switch implied {
	case StatusActive:
		activated, err := s.repo.ActivateAuction(ctx, tx, auction.ID)
		if err != nil {
			return fmt.Errorf("failed to activate auction: %w", err)
		}
		if activated {
			auction.Status = StatusActive
		}
	case StatusEnded:
		if err := s.settle(ctx, tx, auction); err != nil {
			return err
		}
	}

	return nil
}

// settle computes the final price and winner for an auction whose end_time
// has passed. The status-guarded update makes it run at most once even when
// concurrent callers hit the expiry boundary together.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, auction *Auction) error {
	var winnerID *uuid.UUID
	var finalPrice *int64
	reserveMet := false

	if auction.BidCount > 0 {
		top, err := s.ledger.TopBid(ctx, tx, auction.ID)
		if err != nil {
			return fmt.Errorf("failed to load top bid: %w", err)
		}
		if top != nil {
			finalPrice = &top.Amount
			// Winner only when the reserve is met; the final price stays
			// visible either way.
			if auction.ReserveMet(top.Amount) {
				reserveMet = true
				winnerID = &top.UserID
			}
		}
	}

	settled, err := s.repo.EndAuction(ctx, tx, auction.ID, winnerID)
	if err != nil {
		return fmt.Errorf("failed to end auction: %w", err)
	}
	if !settled {
		// Another caller settled the row first; nothing left to do.
		auction.Status = StatusEnded
		return nil
	}

	auction.Status = StatusEnded
	auction.WinnerID = winnerID

	payload, err := json.Marshal(AuctionEndedEvent{
		AuctionID:  auction.ID,
		ArtworkID:  auction.ArtworkID,
		SellerID:   auction.SellerID,
		WinnerID:   winnerID,
		FinalPrice: finalPrice,
		BidCount:   auction.BidCount,
		ReserveMet: reserveMet,
		EndedAt:    s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal auction.ended event: %w", err)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeAuctionEnded,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.outbox.SaveEvent(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// CancelAuction cancels an auction that has no bids yet. Cancelled is
// terminal: the sweeper and the bid service both refuse the row afterwards.
func (s *Service) CancelAuction(ctx context.Context, cmd CancelAuctionCommand) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	if !auction.IsOwnedBy(cmd.UserID) {
		return nil, ErrUnauthorized
	}

	// Re-derive before deciding: an auction past its end_time can no longer
	// be cancelled, it must settle.
	if auction.StatusAt(s.clock.Now()) == StatusEnded || auction.Status.Terminal() || auction.BidCount > 0 {
		return nil, ErrCannotCancel
	}

	cancelled, err := s.repo.CancelAuction(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel auction: %w", err)
	}
	if !cancelled {
		return nil, ErrCannotCancel
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = StatusCancelled
	return auction, nil
}

// ListSellerAuctions retrieves a seller's auctions with pagination
func (s *Service) ListSellerAuctions(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*Auction, error) {
	result, err := s.repo.ListAuctionsBySellerID(ctx, sellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list seller auctions: %w", err)
	}
	return result, nil
}
