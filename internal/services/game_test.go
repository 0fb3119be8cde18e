package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/games"
	"casino-engine/internal/models"
	"casino-engine/internal/payout"
	"casino-engine/internal/seeds"
	"casino-engine/internal/services"
	"casino-engine/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const userID = int64(123456)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastGameUpdate(betID string, userID int64, multiplier decimal.Decimal) {
	m.Called(betID, userID, multiplier)
}

func (m *mockBroadcaster) BroadcastGameCrash(betID string, userID int64, crashPoint decimal.Decimal) {
	m.Called(betID, userID, crashPoint)
}

func (m *mockBroadcaster) BroadcastSettlement(event models.BetEvent) {
	m.Called(event)
}

func newBroadcaster() *mockBroadcaster {
	b := &mockBroadcaster{}
	b.On("BroadcastGameUpdate", mock.Anything, mock.Anything, mock.Anything).Maybe()
	b.On("BroadcastGameCrash", mock.Anything, mock.Anything, mock.Anything).Maybe()
	b.On("BroadcastSettlement", mock.Anything).Maybe()
	return b
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails the next n transitions with a connection error.
// lostReplies makes PlaceBet write the bet and then report a timeout;
// placeFailures makes it time out without writing.
type flakyStore struct {
	store.Store
	failures      atomic.Int32
	lostReplies   atomic.Int32
	placeFailures atomic.Int32
}

func (f *flakyStore) PlaceBet(ctx context.Context, bet *models.Bet) (*models.LedgerEntry, error) {
	if f.placeFailures.Add(-1) >= 0 {
		return nil, errors.New("i/o timeout")
	}
	entry, err := f.Store.PlaceBet(ctx, bet)
	if err != nil {
		return nil, err
	}
	if f.lostReplies.Add(-1) >= 0 {
		return nil, errors.New("i/o timeout")
	}
	return entry, nil
}

func (f *flakyStore) Transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return f.Store.Transition(ctx, bet, from, entry)
}

type harness struct {
	engine      *services.GameEngine
	vault       *seeds.Vault
	store       *flakyStore
	broadcaster *mockBroadcaster
	clock       *fakeClock
}

type option func(*services.EngineConfig, *[]games.Resolver)

func withRealClock() option {
	return func(cfg *services.EngineConfig, _ *[]games.Resolver) { cfg.Clock = nil }
}

func withCrashTick(d time.Duration) option {
	return func(cfg *services.EngineConfig, _ *[]games.Resolver) { cfg.CrashTick = d }
}

func withResolver(r games.Resolver) option {
	return func(_ *services.EngineConfig, resolvers *[]games.Resolver) {
		out := (*resolvers)[:0]
		for _, res := range *resolvers {
			if res.Type() != r.Type() {
				out = append(out, res)
			}
		}
		*resolvers = append(out, r)
	}
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()

	tables := config.DefaultGameTables()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := &flakyStore{Store: store.NewMemory()}
	vault := seeds.NewVault(s, 1<<32, time.Second)
	b := newBroadcaster()

	cfg := services.EngineConfig{
		StoreTimeout:    time.Second,
		SettleRetries:   3,
		RetryInterval:   time.Millisecond,
		CrashTick:       time.Hour,
		StartingBalance: dec("100"),
		DefaultCurrency: "USD",
		Clock:           clock.Now,
	}
	resolvers := games.DefaultResolvers(tables)
	for _, opt := range opts {
		opt(&cfg, &resolvers)
	}

	registry, err := games.NewRegistryFrom(resolvers...)
	require.NoError(t, err)

	engine := services.NewGameEngine(s, vault, registry, payout.NewCalculator(tables.Payout), b, cfg)
	t.Cleanup(engine.Shutdown)

	_, err = engine.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)

	return &harness{engine: engine, vault: vault, store: s, broadcaster: b, clock: clock}
}

func (h *harness) place(t *testing.T, game models.GameType, stake, params string) *models.Bet {
	t.Helper()
	bet, err := h.engine.PlaceBet(context.Background(), userID, &models.PlaceBetRequest{
		GameType: game,
		Stake:    dec(stake),
		Params:   json.RawMessage(params),
	})
	require.NoError(t, err)
	return bet
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := h.engine.Balance(context.Background(), userID, "USD")
	require.NoError(t, err)
	return b
}

func TestEnsureWalletFundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	balance, err := h.engine.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(balance), balance.String())

	entries, err := h.engine.Ledger(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerReasonDeposit, entries[0].Reason)
}

func TestPlaceAndCompleteBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeDiceRange, "10", `{"low":"0","high":"50"}`)
	assert.Equal(t, models.BetStatePlaced, bet.State)
	assert.Equal(t, uint64(0), bet.Nonce)
	assert.Equal(t, seeds.DefaultClientSeed, bet.ClientSeed)
	assert.NotEmpty(t, bet.ServerSeedHash)
	assert.True(t, dec("90").Equal(h.balance(t)))

	resp, err := h.engine.CompleteBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, resp.State)
	assert.True(t, dec("90").Add(resp.Payout).Equal(resp.NewBalance))
	assert.True(t, resp.NewBalance.Equal(h.balance(t)))

	h.broadcaster.AssertCalled(t, "BroadcastSettlement", mock.MatchedBy(func(e models.BetEvent) bool {
		return e.BetID == bet.ID && e.Type == models.BetEventSettled
	}))
}

func TestOutcomeReproducibleAfterRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "5", `{}`)
	resp, err := h.engine.CompleteBet(ctx, bet.ID)
	require.NoError(t, err)

	_, err = h.engine.VerifyBet(ctx, userID, bet.ID)
	assert.ErrorIs(t, err, models.ErrNotRotated)

	revealed, _, err := h.vault.Rotate(ctx, userID, "", "")
	require.NoError(t, err)
	assert.Equal(t, bet.ServerSeedHash, revealed.ServerSeedHash)

	verified, err := h.engine.Verify(&models.VerifyRequest{
		ServerSeed:     revealed.ServerSeed,
		ServerSeedHash: bet.ServerSeedHash,
		ClientSeed:     bet.ClientSeed,
		Nonce:          bet.Nonce,
		GameType:       bet.GameType,
		Params:         bet.Params,
	})
	require.NoError(t, err)
	require.NotNil(t, verified.HashMatches)
	assert.True(t, *verified.HashMatches)
	assert.JSONEq(t, string(resp.Outcome), string(verified.Outcome))
	assert.True(t, resp.Multiplier.Equal(verified.Multiplier))

	check, err := h.engine.VerifyBet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.True(t, check.Matches)
	assert.Equal(t, revealed.ServerSeed, check.ServerSeed)
}

func TestVerifyHashMismatch(t *testing.T) {
	h := newHarness(t)
	seed, err := fairness.GenerateServerSeed()
	require.NoError(t, err)

	resp, err := h.engine.Verify(&models.VerifyRequest{
		ServerSeed:     seed,
		ServerSeedHash: fairness.HashSeed("something else"),
		ClientSeed:     "abc",
		GameType:       models.GameTypeSlots,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.HashMatches)
	assert.False(t, *resp.HashMatches)
	assert.Equal(t, fairness.HashSeed(seed), resp.ServerSeedHash)

	_, err = h.engine.Verify(&models.VerifyRequest{ServerSeed: seed, ClientSeed: "abc", GameType: "roulette"})
	assert.ErrorIs(t, err, models.ErrInvalidParams)
}

func TestNoncesIncreasePerPair(t *testing.T) {
	h := newHarness(t)

	for want := uint64(0); want < 5; want++ {
		bet := h.place(t, models.GameTypeSlots, "1", `{}`)
		assert.Equal(t, want, bet.Nonce)
	}

	other, err := h.engine.PlaceBet(context.Background(), userID, &models.PlaceBetRequest{
		GameType:   models.GameTypeSlots,
		Stake:      dec("1"),
		ClientSeed: "lucky",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), other.Nonce)
	assert.Equal(t, "lucky", other.ClientSeed)
}

func TestInsufficientBalanceConsumesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.PlaceBet(ctx, userID, &models.PlaceBetRequest{
		GameType: models.GameTypeSlots,
		Stake:    dec("100.01"),
	})
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	current, err := h.vault.Current(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), current.NextNonce)
	assert.Equal(t, int64(0), current.Pending)

	entries, err := h.engine.Ledger(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, dec("100").Equal(h.balance(t)))
}

func TestPlaceBetLostReplyNeverReusesNonce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.lostReplies.Store(1)

	first, err := h.engine.PlaceBet(ctx, userID, &models.PlaceBetRequest{
		GameType: models.GameTypeSlots,
		Stake:    dec("10"),
	})
	require.NoError(t, err, "the bet landed, so placement succeeds")
	assert.Equal(t, uint64(0), first.Nonce)

	second := h.place(t, models.GameTypeSlots, "10", `{}`)
	assert.Equal(t, uint64(1), second.Nonce)
	assert.True(t, dec("80").Equal(h.balance(t)))

	history, err := h.engine.History(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.NotEqual(t, history[0].Nonce, history[1].Nonce)

	current, err := h.vault.Current(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current.NextNonce)
	assert.Equal(t, int64(2), current.Pending)

	_, _, err = h.vault.Rotate(ctx, userID, "", "")
	assert.ErrorIs(t, err, models.ErrSeedState, "seed stays hidden while both bets are open")
}

func TestPlaceBetFailedWriteBurnsNonce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.placeFailures.Store(1)

	_, err := h.engine.PlaceBet(ctx, userID, &models.PlaceBetRequest{
		GameType: models.GameTypeSlots,
		Stake:    dec("10"),
	})
	assert.ErrorIs(t, err, models.ErrSettlementIO)
	assert.True(t, dec("100").Equal(h.balance(t)))

	current, err := h.vault.Current(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), current.NextNonce)
	assert.Equal(t, int64(0), current.Pending, "a bet confirmed missing releases the pair")

	bet := h.place(t, models.GameTypeSlots, "10", `{}`)
	assert.Equal(t, uint64(1), bet.Nonce)
}

func TestPlaceBetValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []*models.PlaceBetRequest{
		{GameType: models.GameTypeSlots, Stake: dec("0")},
		{GameType: models.GameTypeSlots, Stake: dec("1.001")},
		{GameType: models.GameTypeSlots, Stake: dec("1"), Currency: "XYZ"},
		{GameType: models.GameTypeDiceRange, Stake: dec("1"), Params: json.RawMessage(`{"low":"60","high":"50"}`)},
		{GameType: "roulette", Stake: dec("1")},
	}
	for _, req := range cases {
		_, err := h.engine.PlaceBet(ctx, userID, req)
		assert.ErrorIs(t, err, models.ErrInvalidParams, "%+v", req)
	}
	assert.True(t, dec("100").Equal(h.balance(t)))
}

func TestConcurrentBetsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 20
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.PlaceBet(ctx, userID, &models.PlaceBetRequest{
				GameType: models.GameTypeSlots,
				Stake:    dec("10"),
			})
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), accepted.Load())
	assert.True(t, h.balance(t).IsZero())

	current, err := h.vault.Current(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), current.NextNonce)
}

func TestBalanceConservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	staked, paid := decimal.Zero, decimal.Zero
	for i := 0; i < 20; i++ {
		bet := h.place(t, models.GameTypeSlots, "2", `{}`)
		resp, err := h.engine.CompleteBet(ctx, bet.ID)
		require.NoError(t, err)
		staked = staked.Add(bet.Stake)
		paid = paid.Add(resp.Payout)
	}

	entries, err := h.engine.Ledger(ctx, userID, 100)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}

	balance := h.balance(t)
	assert.True(t, dec("100").Sub(staked).Add(paid).Equal(balance), balance.String())
	assert.True(t, sum.Equal(balance))
	assert.True(t, entries[0].ResultingBalance.Equal(balance))
}

func TestConcurrentSettlementCreditsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeCupGame, "10", `{"cup":0,"difficulty":"easy"}`)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, errs[i] = h.engine.CompleteBet(ctx, bet.ID)
			case 1:
				_, errs[i] = h.engine.Resolve(ctx, bet.ID)
			default:
				// Settle before any resolve is a legal rejection.
				if _, err := h.engine.Settle(ctx, bet.ID); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
					errs[i] = err
				}
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}

	final, err := h.engine.Bet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, final.State)

	entries, err := h.engine.BetEntries(ctx, userID, bet.ID)
	require.NoError(t, err)
	credits := 0
	for _, e := range entries {
		if e.Reason == models.LedgerReasonBetCredit {
			credits++
		}
	}
	assert.LessOrEqual(t, credits, 1)
	assert.Equal(t, final.Payout.IsPositive(), credits == 1)
	assert.True(t, dec("90").Add(final.Payout).Equal(h.balance(t)), "balance is conserved")
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "10", `{}`)

	_, err := h.engine.Settle(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "placed bets cannot settle")

	resolved, err := h.engine.Resolve(ctx, bet.ID)
	require.NoError(t, err)
	again, err := h.engine.Resolve(ctx, bet.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(resolved.Outcome), string(again.Outcome))

	first, err := h.engine.Settle(ctx, bet.ID)
	require.NoError(t, err)
	balance := h.balance(t)

	second, err := h.engine.Settle(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, first.State, second.State)
	assert.True(t, balance.Equal(h.balance(t)))

	resp, err := h.engine.CompleteBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(resp.NewBalance))

	entries, err := h.engine.BetEntries(ctx, userID, bet.ID)
	require.NoError(t, err)
	credits := 0
	for _, e := range entries {
		if e.Reason == models.LedgerReasonBetCredit {
			credits++
		}
	}
	assert.LessOrEqual(t, credits, 1)
	assert.Equal(t, resolved.Payout.IsPositive(), credits == 1)

	current, err := h.vault.Current(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.Pending)
}

func TestMalformedOutcomeVoidsBet(t *testing.T) {
	allTraps := func(_ fairness.Source, levels, columns int) [][]bool {
		traps := make([][]bool, levels)
		for i := range traps {
			traps[i] = make([]bool, columns)
			for c := range traps[i] {
				traps[i][c] = true
			}
		}
		return traps
	}
	tower := games.NewTowerWithLayout(config.DefaultGameTables().Tower, allTraps)
	h := newHarness(t, withResolver(tower))
	ctx := context.Background()

	bet := h.place(t, models.GameTypeTowerClimb, "10", `{"columns":3,"picks":[0]}`)

	_, err := h.engine.CompleteBet(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrBetVoided)
	assert.ErrorIs(t, err, models.ErrMalformedOutcome)

	stored, err := h.engine.Bet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateVoided, stored.State)
	assert.NotEmpty(t, stored.VoidReason)
	assert.True(t, dec("100").Equal(h.balance(t)))

	voided, err := h.engine.Void(ctx, bet.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, stored.VoidReason, voided.VoidReason)

	_, err = h.engine.Settle(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrBetVoided)

	entries, err := h.engine.BetEntries(ctx, userID, bet.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	h.broadcaster.AssertCalled(t, "BroadcastSettlement", mock.MatchedBy(func(e models.BetEvent) bool {
		return e.BetID == bet.ID && e.Type == models.BetEventVoided
	}))
}

func TestVoidRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	placed := h.place(t, models.GameTypeSlots, "10", `{}`)
	voided, err := h.engine.Void(ctx, placed.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, models.BetStateVoided, voided.State)
	assert.Equal(t, "operator", voided.VoidReason)
	assert.True(t, dec("100").Equal(h.balance(t)))

	_, err = h.engine.Resolve(ctx, placed.ID)
	assert.ErrorIs(t, err, models.ErrResolutionConflict)

	resolved := h.place(t, models.GameTypeSlots, "10", `{}`)
	_, err = h.engine.Resolve(ctx, resolved.ID)
	require.NoError(t, err)
	_, err = h.engine.Void(ctx, resolved.ID, "operator")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(h.balance(t)))

	settled := h.place(t, models.GameTypeSlots, "10", `{}`)
	_, err = h.engine.CompleteBet(ctx, settled.ID)
	require.NoError(t, err)
	_, err = h.engine.Void(ctx, settled.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = h.engine.Void(ctx, "bet_missing", "x")
	assert.ErrorIs(t, err, models.ErrBetNotFound)
}

func TestSettlementRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "10", `{}`)
	h.store.failures.Store(2)

	resp, err := h.engine.CompleteBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, resp.State)
}

func TestSettlementGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "10", `{}`)
	h.store.failures.Store(100)

	_, err := h.engine.CompleteBet(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrSettlementIO)

	h.store.failures.Store(0)
	stored, err := h.engine.Bet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatePlaced, stored.State)

	// Nothing was half-applied; the bet can still complete.
	resp, err := h.engine.CompleteBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, resp.State)
}

func TestLiveCrashImmediateCashOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeCrash, "10", `{"live":true}`)
	assert.True(t, dec("90").Equal(h.balance(t)))

	resp, err := h.engine.CashOut(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.True(t, dec("1").Equal(resp.Multiplier), resp.Multiplier.String())
	assert.True(t, dec("10").Equal(resp.Payout))
	assert.True(t, dec("100").Equal(resp.NewBalance))

	var out games.CrashOutcome
	require.NoError(t, json.Unmarshal(resp.Outcome, &out))
	assert.True(t, out.Won)

	_, err = h.engine.CashOut(ctx, userID, bet.ID)
	assert.ErrorIs(t, err, models.ErrResolutionConflict)
}

func TestLiveCrashCashOutAfterCrashLoses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeCrash, "10", `{"live":true}`)
	h.clock.Advance(100 * time.Hour)

	resp, err := h.engine.CashOut(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.True(t, resp.Payout.IsZero())
	assert.True(t, dec("90").Equal(resp.NewBalance))

	var out games.CrashOutcome
	require.NoError(t, json.Unmarshal(resp.Outcome, &out))
	assert.False(t, out.Won)
	assert.Nil(t, out.Cashout)
}

func TestCashOutRejectsOtherBets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	slots := h.place(t, models.GameTypeSlots, "1", `{}`)
	_, err := h.engine.CashOut(ctx, userID, slots.ID)
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	live := h.place(t, models.GameTypeCrash, "1", `{"live":true}`)
	_, err = h.engine.CashOut(ctx, userID+1, live.ID)
	assert.ErrorIs(t, err, models.ErrBetNotFound)
}

func TestLiveCrashRoundCompletesItself(t *testing.T) {
	cfg := config.DefaultGameTables().Crash
	cfg.GrowthRate = 0.01
	cfg.MaxCrashPoint = dec("2")
	h := newHarness(t, withRealClock(), withCrashTick(5*time.Millisecond), withResolver(games.NewCrash(cfg)))
	ctx := context.Background()

	bet := h.place(t, models.GameTypeCrash, "10", `{"live":true}`)

	require.Eventually(t, func() bool {
		stored, err := h.engine.Bet(ctx, userID, bet.ID)
		return err == nil && stored.State == models.BetStateSettled
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := h.engine.Bet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payout.IsZero())
	h.broadcaster.AssertCalled(t, "BroadcastGameCrash", bet.ID, userID, mock.Anything)
}

func TestSweepStaleCompletesOldBets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "10", `{}`)

	n, err := h.engine.SweepStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(2 * time.Minute)
	n, err = h.engine.SweepStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.engine.Bet(ctx, userID, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStateSettled, stored.State)
}

func TestBetOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bet := h.place(t, models.GameTypeSlots, "1", `{}`)
	_, err := h.engine.Bet(ctx, userID+1, bet.ID)
	assert.ErrorIs(t, err, models.ErrBetNotFound)

	history, err := h.engine.History(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, bet.ID, history[0].ID)
}
