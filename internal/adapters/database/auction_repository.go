package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artfolio/auctions/internal/domain/auctions"
	pkgdb "github.com/artfolio/auctions/pkg/database"
)

const auctionColumns = `
	id, artwork_id, seller_id, starting_price, reserve_price, min_bid_increment,
	current_price, start_time, end_time, status, bid_count, winner_id,
	created_at, updated_at
`

// PostgresAuctionRepository implements auctions.Repository using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

// CreateAuction creates a new auction row
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, auction *auctions.Auction) error {
	query := `
		INSERT INTO auctions (
			id, artwork_id, seller_id, starting_price, reserve_price, min_bid_increment,
			current_price, start_time, end_time, status, bid_count, winner_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::auction_status, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		auction.ID,
		auction.ArtworkID,
		auction.SellerID,
		auction.StartingPrice,
		auction.ReservePrice,
		auction.MinBidIncrement,
		auction.CurrentPrice,
		auction.StartTime,
		auction.EndTime,
		auction.Status,
		auction.BidCount,
		auction.WinnerID,
		auction.CreatedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuctionByID retrieves an auction by its ID (non-transactional read)
func (r *PostgresAuctionRepository) GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, r.pool, auctionID, false)
}

// GetAuctionByIDForUpdate retrieves an auction and locks its row.
// Must be called within a transaction.
func (r *PostgresAuctionRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, tx, auctionID, true)
}

// getAuctionByID is the internal implementation that works with any DBTX
func (r *PostgresAuctionRepository) getAuctionByID(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID, forUpdate bool) (*auctions.Auction, error) {
	query := "SELECT " + auctionColumns + " FROM auctions WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	auction, err := scanAuction(db.QueryRow(ctx, query, auctionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, auctions.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

// ActivateAuction moves a pending auction to active
func (r *PostgresAuctionRepository) ActivateAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := tx.Exec(ctx, query, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to activate auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// EndAuction moves an auction to ended and records the winner. The status
// guard makes the transition, and therefore settlement, happen at most once.
func (r *PostgresAuctionRepository) EndAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, winnerID *uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'ended', winner_id = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('ended', 'cancelled')
	`
	result, err := tx.Exec(ctx, query, auctionID, winnerID)
	if err != nil {
		return false, fmt.Errorf("failed to end auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CancelAuction moves a bid-free, non-terminal auction to cancelled
func (r *PostgresAuctionRepository) CancelAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'active') AND bid_count = 0
	`
	result, err := tx.Exec(ctx, query, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RaiseCurrentPrice sets current_price and increments bid_count, conditional
// on the amount still clearing the stored floor. The condition re-states the
// admission check in SQL so the stored price can never regress, even if a
// caller ever reached this without holding the row lock.
func (r *PostgresAuctionRepository) RaiseCurrentPrice(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) (bool, error) {
	query := `
		UPDATE auctions
		SET current_price = $2, bid_count = bid_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND $2 >= CASE
			WHEN current_price IS NULL THEN starting_price
			ELSE current_price + min_bid_increment
		  END
	`
	result, err := tx.Exec(ctx, query, auctionID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to raise current price: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListDueAuctionIDs returns IDs of pending/active auctions whose end_time is
// at or before now, oldest expiry first
func (r *PostgresAuctionRepository) ListDueAuctionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM auctions
		WHERE status IN ('pending', 'active') AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due auctions: %w", err)
	}
	return ids, nil
}

// ListAuctionsBySellerID retrieves a seller's auctions with pagination
func (r *PostgresAuctionRepository) ListAuctionsBySellerID(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*auctions.Auction, error) {
	query := "SELECT " + auctionColumns + `
		FROM auctions
		WHERE seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, sellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query seller auctions: %w", err)
	}
	defer rows.Close()

	var result []*auctions.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		result = append(result, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return result, nil
}

// scanAuction reads one auction row in auctionColumns order
func scanAuction(row pgx.Row) (*auctions.Auction, error) {
	var a auctions.Auction
	err := row.Scan(
		&a.ID,
		&a.ArtworkID,
		&a.SellerID,
		&a.StartingPrice,
		&a.ReservePrice,
		&a.MinBidIncrement,
		&a.CurrentPrice,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.BidCount,
		&a.WinnerID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
