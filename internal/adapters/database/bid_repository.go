package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artfolio/auctions/internal/domain/auctions"
	"github.com/artfolio/auctions/internal/domain/bids"
)

// PostgresBidRepository implements bids.BidRepository and auctions.BidLedger
// using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid inserts a bid within the given transaction
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (id, auction_id, user_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.AuctionID,
		bid.UserID,
		bid.Amount,
		bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetBidByID retrieves a bid by its ID
func (r *PostgresBidRepository) GetBidByID(ctx context.Context, bidID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE id = $1
	`
	var bid bids.Bid
	err := r.pool.QueryRow(ctx, query, bidID).Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.UserID,
		&bid.Amount,
		&bid.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("bid not found")
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}

// ListBidsByAuctionID retrieves bids for an auction, newest first
func (r *PostgresBidRepository) ListBidsByAuctionID(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bids.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		var bid bids.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.UserID,
			&bid.Amount,
			&bid.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

// ListBidsByUserID retrieves a user's bids joined with auction status,
// newest first, with pagination
func (r *PostgresBidRepository) ListBidsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*bids.UserBid, error) {
	query := `
		SELECT b.id, b.auction_id, b.user_id, b.amount, b.created_at,
		       a.status, a.end_time, a.artwork_id
		FROM bids b
		JOIN auctions a ON a.id = b.auction_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query user bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.UserBid
	for rows.Next() {
		var ub bids.UserBid
		if err := rows.Scan(
			&ub.ID,
			&ub.AuctionID,
			&ub.UserID,
			&ub.Amount,
			&ub.CreatedAt,
			&ub.AuctionStatus,
			&ub.AuctionEndTime,
			&ub.ArtworkID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user bid: %w", err)
		}
		result = append(result, &ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user bids: %w", err)
	}
	return result, nil
}

// GetUserHighestBid returns the user's highest bid on an auction, or nil
// when the user has not bid on it
func (r *PostgresBidRepository) GetUserHighestBid(ctx context.Context, auctionID, userID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE auction_id = $1 AND user_id = $2
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`
	var bid bids.Bid
	err := r.pool.QueryRow(ctx, query, auctionID, userID).Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.UserID,
		&bid.Amount,
		&bid.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user highest bid: %w", err)
	}
	return &bid, nil
}

// TopBid returns the leading bid for an auction within the transaction, or
// nil when the auction has no bids. Bids are totally ordered by amount, ties
// broken by earliest created_at.
func (r *PostgresBidRepository) TopBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.TopBid, error) {
	query := `
		SELECT id, user_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`
	var top auctions.TopBid
	err := tx.QueryRow(ctx, query, auctionID).Scan(
		&top.BidID,
		&top.UserID,
		&top.Amount,
		&top.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get top bid: %w", err)
	}
	return &top, nil
}
