package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/games"
	"casino-engine/internal/locks"
	"casino-engine/internal/models"
	"casino-engine/internal/payout"
	"casino-engine/internal/seeds"
	"casino-engine/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type EngineConfig struct {
	StoreTimeout    time.Duration
	SettleRetries   uint64
	RetryInterval   time.Duration
	CrashTick       time.Duration
	StartingBalance decimal.Decimal
	DefaultCurrency string
	// Clock is the engine's only time source; live crash timing uses it.
	Clock func() time.Time
}

func EngineConfigFrom(cfg *config.Config) EngineConfig {
	return EngineConfig{
		StoreTimeout:    cfg.StoreTimeout,
		SettleRetries:   cfg.SettleRetries,
		RetryInterval:   50 * time.Millisecond,
		CrashTick:       100 * time.Millisecond,
		StartingBalance: cfg.StartingBalance,
		DefaultCurrency: cfg.DefaultCurrency,
	}
}

// GameEngine is the bet ledger: it places, resolves, settles and voids bets,
// moving each one forward through placed -> resolved -> settled or to voided.
type GameEngine struct {
	store       store.Store
	vault       *seeds.Vault
	registry    *games.Registry
	payout      *payout.Calculator
	crash       *games.Crash
	broadcaster Broadcaster
	cfg         EngineConfig

	bets    *locks.Keyed
	wallets *locks.Keyed
	live    sync.Map // bet id -> *liveRound
	rounds  sync.WaitGroup
}

func NewGameEngine(s store.Store, vault *seeds.Vault, registry *games.Registry, calc *payout.Calculator, broadcaster Broadcaster, cfg EngineConfig) *GameEngine {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.CrashTick <= 0 {
		cfg.CrashTick = 100 * time.Millisecond
	}

	ge := &GameEngine{
		store:       s,
		vault:       vault,
		registry:    registry,
		payout:      calc,
		broadcaster: broadcaster,
		cfg:         cfg,
		bets:        locks.NewKeyed(),
		wallets:     locks.NewKeyed(),
	}
	if r, err := registry.Get(models.GameTypeCrash); err == nil {
		ge.crash, _ = r.(*games.Crash)
	}
	return ge
}

func (ge *GameEngine) DefaultCurrency() string {
	return ge.cfg.DefaultCurrency
}

func (ge *GameEngine) now() time.Time {
	return ge.cfg.Clock().UTC()
}

func (ge *GameEngine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return store.WithinTimeout(ctx, ge.cfg.StoreTimeout, fn)
}

var domainErrors = []error{
	models.ErrInsufficientBalance,
	models.ErrInvalidParams,
	models.ErrSeedState,
	models.ErrExhaustedSeed,
	models.ErrNotRotated,
	models.ErrSeedNotFound,
	models.ErrResolutionConflict,
	models.ErrSettlementIO,
	models.ErrBetNotFound,
	models.ErrBetVoided,
	models.ErrInvalidTransition,
	models.ErrMalformedOutcome,
	models.ErrDuplicateEntry,
}

// classify leaves domain errors alone and marks everything else coming out
// of persistence as ErrSettlementIO.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", models.ErrSettlementIO, err)
}

func betFields(bet *models.Bet) log.Fields {
	return log.Fields{
		"bet_id":    bet.ID,
		"user_id":   bet.UserID,
		"game_type": bet.GameType,
		"state":     bet.State,
	}
}

// PlaceBet validates the request, reserves the next nonce of the player's
// seed pair and debits the stake, all or nothing.
func (ge *GameEngine) PlaceBet(ctx context.Context, userID int64, req *models.PlaceBetRequest) (*models.Bet, error) {
	r := *req
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = ge.cfg.DefaultCurrency
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := ge.payout.ValidateStake(r.Stake, r.Currency); err != nil {
		return nil, err
	}
	if len(r.Params) == 0 {
		r.Params = json.RawMessage(`{}`)
	}
	if err := ge.registry.Validate(r.GameType, r.Params); err != nil {
		return nil, err
	}

	live := r.GameType == models.GameTypeCrash && games.IsLive(r.Params)
	if live && ge.crash == nil {
		return nil, fmt.Errorf("%w: live crash rounds are not available", models.ErrInvalidParams)
	}

	bet := &models.Bet{
		ID:         models.GenerateBetID(),
		UserID:     userID,
		GameType:   r.GameType,
		Currency:   r.Currency,
		Stake:      r.Stake,
		Params:     r.Params,
		State:      models.BetStatePlaced,
		Multiplier: decimal.Zero,
		Payout:     decimal.Zero,
	}

	var (
		crashPoint decimal.Decimal
		attempted  bool
	)
	_, _, err := ge.vault.Allocate(ctx, userID, r.ClientSeed, func(c *models.SeedCommitment, nonce uint64) error {
		bet.SeedID = c.ID
		bet.ServerSeedHash = c.ServerSeedHash
		bet.ClientSeed = c.ClientSeed
		bet.Nonce = nonce
		bet.CreatedAt = ge.now()
		if live {
			crashPoint = ge.crash.CrashPoint(fairness.NewStream(c.ServerSeed, c.ClientSeed, nonce).Next())
		}

		attempted = true
		return classify(ge.call(ctx, func(ctx context.Context) error {
			_, err := ge.store.PlaceBet(ctx, bet)
			return err
		}))
	})
	if err != nil {
		err = classify(err)
		if !attempted || !errors.Is(err, models.ErrSettlementIO) {
			return nil, err
		}
		if bet, err = ge.reconcilePlacement(ctx, bet, err); err != nil {
			return nil, err
		}
	}

	log.WithFields(betFields(bet)).WithFields(log.Fields{
		"stake":    bet.Stake.String(),
		"currency": bet.Currency,
		"nonce":    bet.Nonce,
	}).Info("Bet placed")

	if live {
		ge.startRound(bet, crashPoint)
	}
	return bet.Clone(), nil
}

// reconcilePlacement decides a placement whose store write failed
// ambiguously. A bet that landed is returned as placed. A bet that is
// confirmed missing releases its pending count; its nonce stays burned.
func (ge *GameEngine) reconcilePlacement(ctx context.Context, bet *models.Bet, cause error) (*models.Bet, error) {
	ctx = context.WithoutCancel(ctx)

	stored, err := ge.load(ctx, bet.ID)
	switch {
	case err == nil:
		log.WithFields(betFields(stored)).WithError(cause).Warn("Bet write reported failure but landed")
		return stored, nil
	case errors.Is(err, models.ErrBetNotFound):
		if rerr := ge.vault.Release(ctx, bet.SeedID); rerr != nil {
			log.WithError(rerr).WithFields(betFields(bet)).Warn("Failed to release seed pending count")
		}
		return nil, cause
	default:
		log.WithError(err).WithFields(betFields(bet)).Error("Placement outcome unknown, seed pair stays pending")
		return nil, cause
	}
}

func (ge *GameEngine) load(ctx context.Context, betID string) (*models.Bet, error) {
	var bet *models.Bet
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		bet, err = ge.store.GetBet(ctx, betID)
		return err
	})
	return bet, classify(err)
}

// transition persists a state change, retrying only persistence failures.
// Retries are safe because a bet's ledger entry is unique per reason.
func (ge *GameEngine) transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ge.cfg.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, ge.cfg.SettleRetries), ctx)

	op := func() error {
		err := classify(ge.call(ctx, func(ctx context.Context) error {
			return ge.store.Transition(ctx, bet, from, entry)
		}))
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrSettlementIO) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithFields(betFields(bet)).WithField("retry_in", wait).Warn("Bet transition failed, retrying")
	})
}

func (ge *GameEngine) resolveLocked(ctx context.Context, bet *models.Bet) (*models.Bet, error) {
	switch bet.State {
	case models.BetStateResolved, models.BetStateSettled:
		return bet, nil
	case models.BetStateVoided:
		return nil, fmt.Errorf("%w: bet %s: %w", models.ErrResolutionConflict, bet.ID, models.ErrBetVoided)
	}

	commitment, err := ge.vault.Lookup(ctx, bet.SeedID)
	if err != nil {
		return nil, classify(err)
	}

	src := fairness.NewStream(commitment.ServerSeed, bet.ClientSeed, bet.Nonce)
	ev, err := ge.registry.Evaluate(bet.GameType, src, bet.Params)
	var settlement payout.Settlement
	if err == nil {
		settlement, err = ge.payout.Settle(bet.Stake, ev.Multiplier, bet.Currency)
	}
	if err != nil {
		log.WithError(err).WithFields(betFields(bet)).Error("Bet could not be resolved, voiding")
		if _, verr := ge.voidLocked(ctx, bet, err.Error()); verr != nil {
			return nil, verr
		}
		return nil, fmt.Errorf("%w: %w", models.ErrBetVoided, err)
	}

	now := ge.now()
	next := bet.Clone()
	next.State = models.BetStateResolved
	next.Outcome = ev.Outcome
	next.Multiplier = ev.Multiplier
	next.Payout = settlement.Payout
	next.Audit = settlement.Capped
	next.ResolvedAt = &now

	if err := ge.transition(ctx, next, models.BetStatePlaced, nil); err != nil {
		if errors.Is(err, models.ErrResolutionConflict) {
			return ge.replay(ctx, bet.ID, err)
		}
		return nil, err
	}

	log.WithFields(betFields(next)).WithFields(log.Fields{
		"multiplier": next.Multiplier.String(),
		"payout":     next.Payout.String(),
	}).Debug("Bet resolved")
	return next, nil
}

// replay returns the stored result after losing a race to another writer.
func (ge *GameEngine) replay(ctx context.Context, betID string, cause error) (*models.Bet, error) {
	stored, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	if stored.State == models.BetStateVoided || stored.State == models.BetStatePlaced {
		return nil, cause
	}
	return stored, nil
}

func (ge *GameEngine) settleLocked(ctx context.Context, bet *models.Bet) (*models.Bet, error) {
	switch bet.State {
	case models.BetStateSettled:
		return bet, nil
	case models.BetStateVoided:
		return nil, fmt.Errorf("%w: bet %s", models.ErrBetVoided, bet.ID)
	case models.BetStatePlaced:
		return nil, fmt.Errorf("%w: bet %s is not resolved", models.ErrInvalidTransition, bet.ID)
	}

	now := ge.now()
	next := bet.Clone()
	next.State = models.BetStateSettled
	next.SettledAt = &now

	var credit *models.LedgerEntry
	if next.Payout.IsPositive() {
		credit = &models.LedgerEntry{
			ID:        models.GenerateEntryID(),
			UserID:    next.UserID,
			Currency:  next.Currency,
			Delta:     next.Payout,
			Reason:    models.LedgerReasonBetCredit,
			BetID:     next.ID,
			CreatedAt: now,
		}
	}

	if err := ge.transition(ctx, next, models.BetStateResolved, credit); err != nil {
		if errors.Is(err, models.ErrResolutionConflict) || errors.Is(err, models.ErrDuplicateEntry) {
			stored, rerr := ge.load(ctx, bet.ID)
			if rerr == nil && stored.State == models.BetStateSettled {
				return stored, nil
			}
		}
		return nil, err
	}

	if next.Audit {
		log.WithFields(betFields(next)).WithField("payout", next.Payout.String()).Warn("Settled capped payout, flagged for audit")
	}
	ge.finish(ctx, next)
	return next, nil
}

func (ge *GameEngine) voidLocked(ctx context.Context, bet *models.Bet, reason string) (*models.Bet, error) {
	switch bet.State {
	case models.BetStateVoided:
		return bet, nil
	case models.BetStateSettled:
		return nil, fmt.Errorf("%w: bet %s is already settled", models.ErrInvalidTransition, bet.ID)
	}

	now := ge.now()
	next := bet.Clone()
	next.State = models.BetStateVoided
	next.VoidReason = reason
	next.Payout = decimal.Zero
	next.SettledAt = &now

	refund := &models.LedgerEntry{
		ID:        models.GenerateEntryID(),
		UserID:    next.UserID,
		Currency:  next.Currency,
		Delta:     next.Stake,
		Reason:    models.LedgerReasonVoidRefund,
		BetID:     next.ID,
		CreatedAt: now,
	}

	if err := ge.transition(ctx, next, bet.State, refund); err != nil {
		if errors.Is(err, models.ErrResolutionConflict) || errors.Is(err, models.ErrDuplicateEntry) {
			stored, rerr := ge.load(ctx, bet.ID)
			if rerr == nil && stored.State == models.BetStateVoided {
				return stored, nil
			}
		}
		return nil, err
	}

	log.WithFields(betFields(next)).WithField("reason", reason).Warn("Bet voided, stake refunded")
	ge.finish(ctx, next)
	return next, nil
}

// finish runs once per bet after it reaches a terminal state.
func (ge *GameEngine) finish(ctx context.Context, bet *models.Bet) {
	ge.stopRound(bet.ID)

	if err := ge.vault.Release(context.WithoutCancel(ctx), bet.SeedID); err != nil {
		log.WithError(err).WithFields(betFields(bet)).Warn("Failed to release seed pending count")
	}
	ge.broadcaster.BroadcastSettlement(models.NewBetEvent(bet))
}

// Resolve computes the bet's outcome from its committed seed triple. It is
// idempotent; a bet whose outcome cannot be computed is voided and refunded.
func (ge *GameEngine) Resolve(ctx context.Context, betID string) (*models.Bet, error) {
	unlock := ge.bets.Lock(betID)
	defer unlock()

	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	return ge.resolveLocked(ctx, bet)
}

// Settle credits the payout of a resolved bet. Settling twice is a no-op.
func (ge *GameEngine) Settle(ctx context.Context, betID string) (*models.Bet, error) {
	unlock := ge.bets.Lock(betID)
	defer unlock()

	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	return ge.settleLocked(ctx, bet)
}

// Void cancels a placed or resolved bet and refunds the stake exactly once.
func (ge *GameEngine) Void(ctx context.Context, betID, reason string) (*models.Bet, error) {
	unlock := ge.bets.Lock(betID)
	defer unlock()

	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	return ge.voidLocked(ctx, bet, reason)
}

// CompleteBet resolves and settles in one step.
func (ge *GameEngine) CompleteBet(ctx context.Context, betID string) (*models.CompleteBetResponse, error) {
	unlock := ge.bets.Lock(betID)
	defer unlock()

	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	return ge.completeLocked(ctx, bet)
}

func (ge *GameEngine) completeLocked(ctx context.Context, bet *models.Bet) (*models.CompleteBetResponse, error) {
	resolved, err := ge.resolveLocked(ctx, bet)
	if err != nil {
		return nil, err
	}
	settled, err := ge.settleLocked(ctx, resolved)
	if err != nil {
		return nil, err
	}

	balance, err := ge.Balance(ctx, settled.UserID, settled.Currency)
	if err != nil {
		return nil, err
	}

	return &models.CompleteBetResponse{
		BetID:      settled.ID,
		GameType:   settled.GameType,
		Outcome:    settled.Outcome,
		Multiplier: settled.Multiplier,
		Payout:     settled.Payout,
		NewBalance: balance,
		State:      settled.State,
		Audit:      settled.Audit,
	}, nil
}

// CashOut ends a live crash round at the multiplier the server's own clock
// gives for the time since placement. At or past the crash time the round is
// lost.
func (ge *GameEngine) CashOut(ctx context.Context, userID int64, betID string) (*models.CompleteBetResponse, error) {
	unlock := ge.bets.Lock(betID)
	defer unlock()

	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.UserID != userID {
		return nil, models.ErrBetNotFound
	}
	if bet.GameType != models.GameTypeCrash || !games.IsLive(bet.Params) || ge.crash == nil {
		return nil, fmt.Errorf("%w: bet %s is not a live crash round", models.ErrInvalidParams, bet.ID)
	}
	if bet.State != models.BetStatePlaced {
		return nil, fmt.Errorf("%w: round %s already ended", models.ErrResolutionConflict, bet.ID)
	}

	elapsed := ge.now().Sub(bet.CreatedAt)
	ge.stopRound(bet.ID)

	commitment, err := ge.vault.Lookup(ctx, bet.SeedID)
	if err != nil {
		return nil, classify(err)
	}
	crashPoint := ge.crash.CrashPoint(fairness.NewStream(commitment.ServerSeed, bet.ClientSeed, bet.Nonce).Next())

	if elapsed < ge.crash.ElapsedAt(crashPoint) {
		m := ge.crash.MultiplierAt(elapsed)
		var p games.CrashParams
		if err := json.Unmarshal(bet.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidParams, err)
		}
		// A preset target already reached stands.
		if p.Cashout == nil || m.LessThan(*p.Cashout) {
			params, err := games.WithCashout(bet.Params, m)
			if err != nil {
				return nil, err
			}
			bet.Params = params
		}
	}

	log.WithFields(betFields(bet)).WithField("elapsed", elapsed).Info("Live crash cash-out")
	return ge.completeLocked(ctx, bet)
}

// Verify recomputes an outcome from a revealed seed triple. It touches no
// state.
func (ge *GameEngine) Verify(req *models.VerifyRequest) (*models.VerifyResponse, error) {
	return ge.registry.Verify(req)
}

// VerifyBet replays a finished bet once its seed pair has been rotated and
// reports whether the stored outcome matches.
func (ge *GameEngine) VerifyBet(ctx context.Context, userID int64, betID string) (*models.BetVerification, error) {
	bet, err := ge.Bet(ctx, userID, betID)
	if err != nil {
		return nil, err
	}
	if !bet.State.Terminal() || bet.State == models.BetStateVoided {
		return nil, fmt.Errorf("%w: bet %s is %s", models.ErrInvalidTransition, bet.ID, bet.State)
	}

	commitment, err := ge.vault.Lookup(ctx, bet.SeedID)
	if err != nil {
		return nil, classify(err)
	}
	if commitment.State != models.SeedStateRetired {
		return nil, fmt.Errorf("%w: rotate the seed pair to verify bet %s", models.ErrNotRotated, bet.ID)
	}

	resp, err := ge.Verify(&models.VerifyRequest{
		ServerSeed:     commitment.ServerSeed,
		ServerSeedHash: bet.ServerSeedHash,
		ClientSeed:     bet.ClientSeed,
		Nonce:          bet.Nonce,
		GameType:       bet.GameType,
		Params:         bet.Params,
	})
	if err != nil {
		return nil, err
	}

	return &models.BetVerification{
		BetID:      bet.ID,
		ServerSeed: commitment.ServerSeed,
		Result:     *resp,
		Matches: resp.HashMatches != nil && *resp.HashMatches &&
			jsonEqual(resp.Outcome, bet.Outcome) && resp.Multiplier.Equal(bet.Multiplier),
	}, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var x, y interface{}
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	ax, _ := json.Marshal(x)
	by, _ := json.Marshal(y)
	return string(ax) == string(by)
}

// SweepStale completes bets left open longer than maxAge, e.g. after a
// restart dropped their live round.
func (ge *GameEngine) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := ge.now().Add(-maxAge)

	var open []*models.Bet
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		open, err = ge.store.ListOpenBets(ctx, cutoff, 100)
		return err
	})
	if err != nil {
		return 0, classify(err)
	}

	completed := 0
	for _, bet := range open {
		if _, err := ge.CompleteBet(ctx, bet.ID); err != nil {
			log.WithError(err).WithFields(betFields(bet)).Warn("Failed to complete stale bet")
			continue
		}
		completed++
	}
	if completed > 0 {
		log.WithField("count", completed).Info("Completed stale bets")
	}
	return completed, nil
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (ge *GameEngine) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := ge.SweepStale(ctx, maxAge); err != nil {
				log.WithError(err).Warn("Stale bet sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// EnsureWallet funds a user's first visit with the starting balance and
// returns the balance in the default currency.
func (ge *GameEngine) EnsureWallet(ctx context.Context, userID int64) (decimal.Decimal, error) {
	unlock := ge.wallets.Lock(fmt.Sprint(userID))
	defer unlock()

	var entries []*models.LedgerEntry
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		entries, err = ge.store.Entries(ctx, userID, 1)
		return err
	})
	if err != nil {
		return decimal.Zero, classify(err)
	}

	if len(entries) == 0 && ge.cfg.StartingBalance.IsPositive() {
		err := ge.call(ctx, func(ctx context.Context) error {
			_, err := ge.store.Fund(ctx, userID, ge.cfg.DefaultCurrency, ge.cfg.StartingBalance)
			return err
		})
		if err != nil {
			return decimal.Zero, classify(err)
		}
		log.WithFields(log.Fields{
			"user_id": userID,
			"amount":  ge.cfg.StartingBalance.String(),
		}).Info("Funded new wallet")
	}
	return ge.Balance(ctx, userID, ge.cfg.DefaultCurrency)
}

func (ge *GameEngine) Fund(ctx context.Context, userID int64, currency string, amount decimal.Decimal) (*models.LedgerEntry, error) {
	if _, err := ge.payout.Precision(currency); err != nil {
		return nil, err
	}
	var entry *models.LedgerEntry
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		entry, err = ge.store.Fund(ctx, userID, currency, amount)
		return err
	})
	return entry, classify(err)
}

func (ge *GameEngine) Balance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	if currency == "" {
		currency = ge.cfg.DefaultCurrency
	}
	var balance decimal.Decimal
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		balance, err = ge.store.Balance(ctx, userID, currency)
		return err
	})
	return balance, classify(err)
}

// Bet loads a bet owned by userID. Other users' bets look missing.
func (ge *GameEngine) Bet(ctx context.Context, userID int64, betID string) (*models.Bet, error) {
	bet, err := ge.load(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.UserID != userID {
		return nil, models.ErrBetNotFound
	}
	return bet, nil
}

func (ge *GameEngine) History(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	var bets []*models.Bet
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		bets, err = ge.store.ListBets(ctx, userID, limit)
		return err
	})
	return bets, classify(err)
}

func (ge *GameEngine) Ledger(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		entries, err = ge.store.Entries(ctx, userID, limit)
		return err
	})
	return entries, classify(err)
}

func (ge *GameEngine) BetEntries(ctx context.Context, userID int64, betID string) ([]*models.LedgerEntry, error) {
	if _, err := ge.Bet(ctx, userID, betID); err != nil {
		return nil, err
	}
	var entries []*models.LedgerEntry
	err := ge.call(ctx, func(ctx context.Context) error {
		var err error
		entries, err = ge.store.EntriesForBet(ctx, betID)
		return err
	})
	return entries, classify(err)
}
