// Package storetest holds fixtures and a behavioural suite every store
// backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"casino-engine/internal/fairness"
	"casino-engine/internal/models"
	"casino-engine/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const Currency = "USD"

var userSeq = time.Now().UnixNano() % 1_000_000_000

// UserID returns an id no earlier call in this process returned, so suites can
// share a database.
func UserID() int64 {
	return atomic.AddInt64(&userSeq, 1)
}

// CreateTestBet returns a placed bet with the given stake.
func CreateTestBet(userID int64, stake string) *models.Bet {
	return &models.Bet{
		ID:             models.GenerateBetID(),
		UserID:         userID,
		GameType:       models.GameTypeSlots,
		Currency:       Currency,
		Stake:          decimal.RequireFromString(stake),
		SeedID:         models.GenerateSeedID(),
		ServerSeedHash: fairness.HashSeed("test-seed"),
		ClientSeed:     "client",
		Params:         json.RawMessage(`{}`),
		State:          models.BetStatePlaced,
		Multiplier:     decimal.Zero,
		Payout:         decimal.Zero,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateTestSeed returns an active commitment for the pair.
func CreateTestSeed(userID int64, clientSeed string) *models.SeedCommitment {
	serverSeed, _ := fairness.GenerateServerSeed()
	return &models.SeedCommitment{
		ID:             models.GenerateSeedID(),
		UserID:         userID,
		ClientSeed:     clientSeed,
		ServerSeed:     serverSeed,
		ServerSeedHash: fairness.HashSeed(serverSeed),
		State:          models.SeedStateActive,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Run exercises the full store contract against s.
func Run(t *testing.T, s store.Store) {
	t.Run("fund and balance", func(t *testing.T) { testFund(t, s) })
	t.Run("place bet", func(t *testing.T) { testPlaceBet(t, s) })
	t.Run("insufficient balance writes nothing", func(t *testing.T) { testInsufficient(t, s) })
	t.Run("transition", func(t *testing.T) { testTransition(t, s) })
	t.Run("duplicate entry rejected", func(t *testing.T) { testDuplicateEntry(t, s) })
	t.Run("concurrent debits never overdraw", func(t *testing.T) { testConcurrentDebits(t, s) })
	t.Run("open bets", func(t *testing.T) { testOpenBets(t, s) })
	t.Run("seeds", func(t *testing.T) { testSeeds(t, s) })
}

func testFund(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()

	balance, err := s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	entry, err := s.Fund(ctx, user, Currency, dec("100.50"))
	require.NoError(t, err)
	assert.Equal(t, models.LedgerReasonDeposit, entry.Reason)
	assert.True(t, dec("100.50").Equal(entry.ResultingBalance))

	_, err = s.Fund(ctx, user, Currency, dec("0.50"))
	require.NoError(t, err)

	balance, err = s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, dec("101").Equal(balance), balance.String())

	other, err := s.Balance(ctx, user, "EUR")
	require.NoError(t, err)
	assert.True(t, other.IsZero())

	entries, err := s.Entries(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, dec("0.50").Equal(entries[0].Delta), "newest first")
}

func testPlaceBet(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("50"))
	require.NoError(t, err)

	bet := CreateTestBet(user, "20.00")
	entry, err := s.PlaceBet(ctx, bet)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerReasonBetDebit, entry.Reason)
	assert.True(t, dec("-20").Equal(entry.Delta))
	assert.True(t, dec("30").Equal(entry.ResultingBalance))

	got, err := s.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, bet.ID, got.ID)
	assert.Equal(t, models.BetStatePlaced, got.State)
	assert.True(t, bet.Stake.Equal(got.Stake))
	assert.JSONEq(t, `{}`, string(got.Params))

	bets, err := s.ListBets(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, bets, 1)

	_, err = s.GetBet(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrBetNotFound)
}

func testInsufficient(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("50"))
	require.NoError(t, err)

	bet := CreateTestBet(user, "100")
	_, err = s.PlaceBet(ctx, bet)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	balance, err := s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(balance))

	entries, err := s.EntriesForBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.GetBet(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrBetNotFound)
}

func testTransition(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("10"))
	require.NoError(t, err)

	bet := CreateTestBet(user, "10")
	// Compact, with a key order a canonicalizing backend would rewrite.
	bet.Params = json.RawMessage(`{"alpha":1,"z":2}`)
	_, err = s.PlaceBet(ctx, bet)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	bet.State = models.BetStateResolved
	bet.Outcome = json.RawMessage(`{"reels":[7,7,7],"rule":"triple_seven"}`)
	bet.Multiplier = dec("2.5")
	bet.ResolvedAt = &now
	require.NoError(t, s.Transition(ctx, bet, models.BetStatePlaced, nil))

	// A second resolve from placed loses the compare-and-set.
	err = s.Transition(ctx, bet, models.BetStatePlaced, nil)
	assert.ErrorIs(t, err, models.ErrResolutionConflict)

	bet.State = models.BetStateSettled
	bet.Payout = dec("25")
	bet.SettledAt = &now
	credit := &models.LedgerEntry{
		ID:        models.GenerateEntryID(),
		UserID:    user,
		Currency:  Currency,
		Delta:     bet.Payout,
		Reason:    models.LedgerReasonBetCredit,
		BetID:     bet.ID,
		CreatedAt: now,
	}
	require.NoError(t, s.Transition(ctx, bet, models.BetStateResolved, credit))
	assert.True(t, dec("25").Equal(credit.ResultingBalance))

	got, err := s.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, got.State)
	assert.True(t, dec("25").Equal(got.Payout))
	assert.True(t, dec("2.5").Equal(got.Multiplier))
	assert.Equal(t, `{"reels":[7,7,7],"rule":"triple_seven"}`, string(got.Outcome), "outcome bytes are stored verbatim")
	assert.Equal(t, `{"alpha":1,"z":2}`, string(got.Params), "params bytes are stored verbatim")
	require.NotNil(t, got.SettledAt)

	entries, err := s.EntriesForBet(ctx, bet.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	assert.True(t, dec("15").Equal(sum), "-stake + payout")

	balance, err := s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, dec("25").Equal(balance))

	// Settled is terminal.
	bet.State = models.BetStateVoided
	err = s.Transition(ctx, bet, models.BetStateSettled, nil)
	assert.Error(t, err)
}

func testDuplicateEntry(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("10"))
	require.NoError(t, err)

	bet := CreateTestBet(user, "10")
	_, err = s.PlaceBet(ctx, bet)
	require.NoError(t, err)

	// A debit for the same bet already exists; the transition must not apply.
	bet.State = models.BetStateVoided
	dup := &models.LedgerEntry{
		ID:        models.GenerateEntryID(),
		UserID:    user,
		Currency:  Currency,
		Delta:     dec("-1"),
		Reason:    models.LedgerReasonBetDebit,
		BetID:     bet.ID,
		CreatedAt: time.Now().UTC(),
	}
	err = s.Transition(ctx, bet, models.BetStatePlaced, dup)
	assert.ErrorIs(t, err, models.ErrDuplicateEntry)

	got, err := s.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatePlaced, got.State)

	balance, err := s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("100"))
	require.NoError(t, err)

	const workers = 25
	var (
		wg       sync.WaitGroup
		accepted int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PlaceBet(ctx, CreateTestBet(user, "10"))
			if err == nil {
				atomic.AddInt64(&accepted, 1)
			} else {
				assert.ErrorIs(t, err, models.ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), accepted)
	balance, err := s.Balance(ctx, user, Currency)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), balance.String())
}

func testOpenBets(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()
	_, err := s.Fund(ctx, user, Currency, dec("10"))
	require.NoError(t, err)

	bet := CreateTestBet(user, "1")
	bet.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	_, err = s.PlaceBet(ctx, bet)
	require.NoError(t, err)

	fresh := CreateTestBet(user, "1")
	_, err = s.PlaceBet(ctx, fresh)
	require.NoError(t, err)

	open, err := s.ListOpenBets(ctx, time.Now().Add(-time.Minute), 100)
	require.NoError(t, err)

	var ids []string
	for _, b := range open {
		ids = append(ids, b.ID)
	}
	assert.Contains(t, ids, bet.ID)
	assert.NotContains(t, ids, fresh.ID)
}

func testSeeds(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := UserID()

	_, err := s.ActiveSeed(ctx, user, "abc")
	assert.ErrorIs(t, err, models.ErrSeedNotFound)

	c := CreateTestSeed(user, "abc")
	require.NoError(t, s.SaveSeed(ctx, c))
	assert.ErrorIs(t, s.SaveSeed(ctx, CreateTestSeed(user, "abc")), models.ErrSeedState)

	active, err := s.ActiveSeed(ctx, user, "abc")
	require.NoError(t, err)
	assert.Equal(t, c.ID, active.ID)
	assert.Equal(t, c.ServerSeed, active.ServerSeed)

	// Compare-and-set on version.
	stale := active.Clone()
	active.NextNonce = 1
	active.Pending = 1
	require.NoError(t, s.UpdateSeed(ctx, active))
	assert.Equal(t, int64(1), active.Version)

	stale.NextNonce = 1
	assert.ErrorIs(t, s.UpdateSeed(ctx, stale), store.ErrConflict)

	_, err = s.LatestRetiredSeed(ctx, user, "abc")
	assert.ErrorIs(t, err, models.ErrSeedNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	active.State = models.SeedStateRetired
	active.Pending = 0
	active.RetiredAt = &now
	require.NoError(t, s.UpdateSeed(ctx, active))

	_, err = s.ActiveSeed(ctx, user, "abc")
	assert.ErrorIs(t, err, models.ErrSeedNotFound)

	retired, err := s.LatestRetiredSeed(ctx, user, "abc")
	require.NoError(t, err)
	assert.Equal(t, c.ID, retired.ID)
	assert.Equal(t, uint64(1), retired.NextNonce)

	next := CreateTestSeed(user, "abc")
	require.NoError(t, s.SaveSeed(ctx, next))

	got, err := s.GetSeed(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ServerSeedHash, got.ServerSeedHash)

	_, err = s.GetSeed(ctx, "seed_missing")
	assert.ErrorIs(t, err, models.ErrSeedNotFound)
}
