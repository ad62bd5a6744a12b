package bids_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	adapters "github.com/artfolio/auctions/internal/adapters/database"
	"github.com/artfolio/auctions/internal/domain/auctions"
	"github.com/artfolio/auctions/internal/domain/bids"
	"github.com/artfolio/auctions/internal/testhelpers"
	"github.com/artfolio/auctions/pkg/clock"
	pkgdb "github.com/artfolio/auctions/pkg/database"
)

type bidStack struct {
	clock          *clock.Fixed
	auctionService *auctions.Service
	bidService     *bids.Service
	bidRepo        *adapters.PostgresBidRepository
	auctionRepo    *adapters.PostgresAuctionRepository
}

func newBidStack(t *testing.T, pool *pgxpool.Pool, now time.Time) *bidStack {
	t.Helper()

	clk := clock.NewFixed(now)
	txManager := pkgdb.NewPostgresTransactionManager(pool, 5*time.Second)
	auctionRepo := adapters.NewPostgresAuctionRepository(pool)
	bidRepo := adapters.NewPostgresBidRepository(pool)
	outboxRepo := adapters.NewPostgresOutboxRepository(pool)

	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, outboxRepo, clk)
	bidService := bids.NewService(txManager, bidRepo, auctionRepo, auctionService, outboxRepo, clk)

	return &bidStack{
		clock:          clk,
		auctionService: auctionService,
		bidService:     bidService,
		bidRepo:        bidRepo,
		auctionRepo:    auctionRepo,
	}
}

// seedActiveAuction creates an auction that is active at the stack's clock
func seedActiveAuction(t *testing.T, stack *bidStack, sellerID uuid.UUID, startingPrice, increment int64) *auctions.Auction {
	t.Helper()

	auction, err := stack.auctionService.CreateAuction(context.Background(), auctions.CreateAuctionCommand{
		ArtworkID:       uuid.New(),
		SellerID:        sellerID,
		StartingPrice:   startingPrice,
		MinBidIncrement: increment,
		StartTime:       stack.clock.Now().Add(-time.Minute),
		EndTime:         stack.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, auctions.StatusActive, auction.Status)
	return auction
}

func TestService_PlaceBid_Scenarios(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("first bid at starting price is admitted", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction := seedActiveAuction(t, stack, uuid.New(), 10000, 500)

		userID := uuid.New()
		bid, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID,
			UserID:    userID,
			Amount:    10000,
		})
		require.NoError(t, err)
		assert.Equal(t, auction.ID, bid.AuctionID)
		assert.Equal(t, userID, bid.UserID)
		assert.Equal(t, int64(10000), bid.Amount)

		// The bid row and the auction update committed together
		saved, err := stack.bidRepo.GetBidByID(ctx, bid.ID)
		require.NoError(t, err)
		assert.Equal(t, bid.Amount, saved.Amount)

		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.CurrentPrice)
		assert.Equal(t, int64(10000), *updated.CurrentPrice)
		assert.Equal(t, int64(1), updated.BidCount)

		// Admission wrote a bid.placed outbox event in the same transaction
		var count int
		err = testDB.Pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM outbox_events WHERE event_type = $1",
			bids.EventTypeBidPlaced,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("floor is current price plus increment", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction := seedActiveAuction(t, stack, uuid.New(), 50, 5)

		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 100,
		})
		require.NoError(t, err)

		// Floor is now 105: 104 rejected, 105 admitted
		_, err = stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 104,
		})
		assert.ErrorIs(t, err, bids.ErrBidTooLow)

		_, err = stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 105,
		})
		require.NoError(t, err)

		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(105), *updated.CurrentPrice)
		assert.Equal(t, int64(2), updated.BidCount)
	})

	t.Run("rejected bid leaves no partial state", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction := seedActiveAuction(t, stack, uuid.New(), 10000, 500)

		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 9999,
		})
		assert.ErrorIs(t, err, bids.ErrBidTooLow)

		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Nil(t, updated.CurrentPrice)
		assert.Zero(t, updated.BidCount)

		ledger, err := stack.bidService.ListBids(ctx, auction.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, ledger)
	})

	t.Run("seller cannot bid on own auction", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		sellerID := uuid.New()
		auction := seedActiveAuction(t, stack, sellerID, 10000, 500)

		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: sellerID, Amount: 10000,
		})
		assert.ErrorIs(t, err, bids.ErrSelfBidForbidden)

		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Zero(t, updated.BidCount)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction := seedActiveAuction(t, stack, uuid.New(), 10000, 500)

		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 0,
		})
		assert.ErrorIs(t, err, bids.ErrInvalidBidAmount)
	})

	t.Run("auction not found", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)

		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: uuid.New(), UserID: uuid.New(), Amount: 100,
		})
		assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
	})

	t.Run("pending auction rejects bids", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction, err := stack.auctionService.CreateAuction(ctx, auctions.CreateAuctionCommand{
			ArtworkID:       uuid.New(),
			SellerID:        uuid.New(),
			StartingPrice:   10000,
			MinBidIncrement: 500,
			StartTime:       base.Add(time.Hour),
			EndTime:         base.Add(2 * time.Hour),
		})
		require.NoError(t, err)

		_, err = stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 10000,
		})
		assert.ErrorIs(t, err, bids.ErrAuctionNotActive)
	})

	t.Run("bid on stored-pending auction whose start passed is admitted", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction, err := stack.auctionService.CreateAuction(ctx, auctions.CreateAuctionCommand{
			ArtworkID:       uuid.New(),
			SellerID:        uuid.New(),
			StartingPrice:   10000,
			MinBidIncrement: 500,
			StartTime:       base.Add(time.Hour),
			EndTime:         base.Add(2 * time.Hour),
		})
		require.NoError(t, err)

		// Start time passes without any sweep touching the row
		stack.clock.Advance(90 * time.Minute)

		_, err = stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 10000,
		})
		require.NoError(t, err)

		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, auctions.StatusActive, updated.Status)
	})

	t.Run("bid after end_time settles the auction and is rejected", func(t *testing.T) {
		stack := newBidStack(t, testDB.Pool, base)
		auction := seedActiveAuction(t, stack, uuid.New(), 100, 10)

		winner := uuid.New()
		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: winner, Amount: 100,
		})
		require.NoError(t, err)

		// The auction expires; the next bid arrives before any sweep
		stack.clock.Advance(2 * time.Hour)
		_, err = stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: uuid.New(), Amount: 200,
		})
		assert.ErrorIs(t, err, bids.ErrAuctionNotActive)

		// The late bid triggered settlement itself
		updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, auctions.StatusEnded, updated.Status)
		require.NotNil(t, updated.WinnerID)
		assert.Equal(t, winner, *updated.WinnerID)
		assert.Equal(t, int64(1), updated.BidCount)
	})
}

// TestService_PlaceBid_ConcurrentRace races N bidders at the same floor:
// exactly one is admitted, the rest are rejected, and the stored price
// equals the single admitted amount.
func TestService_PlaceBid_ConcurrentRace(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stack := newBidStack(t, testDB.Pool, base)
	ctx := context.Background()

	auction := seedActiveAuction(t, stack, uuid.New(), 10000, 500)

	const bidders = 10
	var admitted, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < bidders; i++ {
		g.Go(func() error {
			_, err := stack.bidService.PlaceBid(gctx, bids.PlaceBidCommand{
				AuctionID: auction.ID,
				UserID:    uuid.New(),
				Amount:    10000, // everyone targets the same floor
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, bids.ErrBidTooLow), errors.Is(err, bids.ErrConcurrentBidLost):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), admitted.Load(), "exactly one bid admitted per price level")
	assert.Equal(t, int64(bidders-1), rejected.Load())

	updated, err := stack.auctionRepo.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentPrice)
	assert.Equal(t, int64(10000), *updated.CurrentPrice)
	assert.Equal(t, int64(1), updated.BidCount)

	// The ledger's admitted sequence is strictly increasing in amount
	ledger, err := stack.bidService.ListBids(ctx, auction.ID, bidders)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
}

func TestService_Queries(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stack := newBidStack(t, testDB.Pool, base)
	ctx := context.Background()

	auction := seedActiveAuction(t, stack, uuid.New(), 100, 10)
	alice := uuid.New()
	bob := uuid.New()

	place := func(userID uuid.UUID, amount int64) {
		t.Helper()
		_, err := stack.bidService.PlaceBid(ctx, bids.PlaceBidCommand{
			AuctionID: auction.ID, UserID: userID, Amount: amount,
		})
		require.NoError(t, err)
		stack.clock.Advance(time.Second) // distinct created_at per bid
	}

	place(alice, 100)
	place(bob, 120)
	place(alice, 150)

	t.Run("ListBids returns newest first", func(t *testing.T) {
		ledger, err := stack.bidService.ListBids(ctx, auction.ID, 10)
		require.NoError(t, err)
		require.Len(t, ledger, 3)
		assert.Equal(t, int64(150), ledger[0].Amount)
		assert.Equal(t, int64(120), ledger[1].Amount)
		assert.Equal(t, int64(100), ledger[2].Amount)

		limited, err := stack.bidService.ListBids(ctx, auction.ID, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("UserBids joins auction status", func(t *testing.T) {
		userBids, err := stack.bidService.UserBids(ctx, alice, 10, 0)
		require.NoError(t, err)
		require.Len(t, userBids, 2)
		assert.Equal(t, int64(150), userBids[0].Amount)
		assert.Equal(t, auctions.StatusActive, userBids[0].AuctionStatus)
		assert.Equal(t, auction.ID, userBids[0].AuctionID)
	})

	t.Run("UserHighestBid", func(t *testing.T) {
		highest, err := stack.bidService.UserHighestBid(ctx, auction.ID, alice)
		require.NoError(t, err)
		require.NotNil(t, highest)
		assert.Equal(t, int64(150), highest.Amount)

		none, err := stack.bidService.UserHighestBid(ctx, auction.ID, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("IsUserWinning while active", func(t *testing.T) {
		winning, err := stack.bidService.IsUserWinning(ctx, auction.ID, alice)
		require.NoError(t, err)
		assert.True(t, winning)

		winning, err = stack.bidService.IsUserWinning(ctx, auction.ID, bob)
		require.NoError(t, err)
		assert.False(t, winning)
	})

	t.Run("IsUserWinning after settlement reads winner_id", func(t *testing.T) {
		stack.clock.Advance(2 * time.Hour)
		_, err := stack.auctionService.RefreshStatus(ctx, auction.ID)
		require.NoError(t, err)

		winning, err := stack.bidService.IsUserWinning(ctx, auction.ID, alice)
		require.NoError(t, err)
		assert.True(t, winning)

		winning, err = stack.bidService.IsUserWinning(ctx, auction.ID, bob)
		require.NoError(t, err)
		assert.False(t, winning)

		userBids, err := stack.bidService.UserBids(ctx, alice, 10, 0)
		require.NoError(t, err)
		require.NotEmpty(t, userBids)
		assert.Equal(t, auctions.StatusEnded, userBids[0].AuctionStatus)
	})
}
