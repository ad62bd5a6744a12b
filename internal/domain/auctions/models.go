package auctions

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an auction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Auction represents a timed sale attached to one artwork.
// Money fields are int64 cents. ReservePrice, CurrentPrice and WinnerID are
// nil until set; CurrentPrice is monotonically non-decreasing once set.
type Auction struct {
	ID              uuid.UUID  `db:"id"`
	ArtworkID       uuid.UUID  `db:"artwork_id"`
	SellerID        uuid.UUID  `db:"seller_id"`
	StartingPrice   int64      `db:"starting_price"`
	ReservePrice    *int64     `db:"reserve_price"`
	MinBidIncrement int64      `db:"min_bid_increment"`
	CurrentPrice    *int64     `db:"current_price"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         time.Time  `db:"end_time"`
	Status          Status     `db:"status"`
	BidCount        int64      `db:"bid_count"`
	WinnerID        *uuid.UUID `db:"winner_id"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// StatusAt derives the status implied by the stored times at the given
// instant. Terminal states never revert: once ended or cancelled the stored
// status wins regardless of the clock.
func (a *Auction) StatusAt(now time.Time) Status {
	if a.Status.Terminal() {
		return a.Status
	}
	if !now.Before(a.EndTime) {
		return StatusEnded
	}
	if !now.Before(a.StartTime) {
		return StatusActive
	}
	return StatusPending
}

// MinimumNextBid returns the lowest admissible bid amount: the current price
// plus the increment once a bid exists, otherwise the starting price.
func (a *Auction) MinimumNextBid() int64 {
	if a.CurrentPrice != nil {
		return *a.CurrentPrice + a.MinBidIncrement
	}
	return a.StartingPrice
}

// TimeRemaining returns the duration until end_time. Zero or negative means
// the auction is due for a sweep.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	return a.EndTime.Sub(now)
}

// ReserveMet reports whether the given amount satisfies the reserve price.
// An auction without a reserve is always met.
func (a *Auction) ReserveMet(amount int64) bool {
	return a.ReservePrice == nil || amount >= *a.ReservePrice
}

// IsOwnedBy reports whether the given user is the seller
func (a *Auction) IsOwnedBy(userID uuid.UUID) bool {
	return a.SellerID == userID
}

// Snapshot is the read model returned by RefreshStatus: the auction row plus
// the derived values callers need to render or pre-validate a bid.
type Snapshot struct {
	ID             uuid.UUID
	ArtworkID      uuid.UUID
	SellerID       uuid.UUID
	Status         Status
	StartingPrice  int64
	ReservePrice   *int64
	CurrentPrice   *int64
	BidCount       int64
	WinnerID       *uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	MinimumNextBid int64
	TimeRemaining  time.Duration
}

// snapshotAt builds a Snapshot from an auction row at the given instant
func snapshotAt(a *Auction, now time.Time) *Snapshot {
	return &Snapshot{
		ID:             a.ID,
		ArtworkID:      a.ArtworkID,
		SellerID:       a.SellerID,
		Status:         a.Status,
		StartingPrice:  a.StartingPrice,
		ReservePrice:   a.ReservePrice,
		CurrentPrice:   a.CurrentPrice,
		BidCount:       a.BidCount,
		WinnerID:       a.WinnerID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		MinimumNextBid: a.MinimumNextBid(),
		TimeRemaining:  a.TimeRemaining(now),
	}
}

// CreateAuctionCommand represents the seller action that opens an auction
type CreateAuctionCommand struct {
	ArtworkID       uuid.UUID
	SellerID        uuid.UUID
	StartingPrice   int64
	ReservePrice    *int64
	MinBidIncrement int64
	StartTime       time.Time
	EndTime         time.Time
}

// CancelAuctionCommand represents the seller action that cancels an auction
type CancelAuctionCommand struct {
	AuctionID uuid.UUID
	UserID    uuid.UUID
}
