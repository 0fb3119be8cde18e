package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"casino-engine/internal/locks"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

type account struct {
	balances map[string]decimal.Decimal
	entries  []*models.LedgerEntry
	bets     []string
}

// Memory keeps everything in process. Each user's balances, entries and bet
// writes sit behind that user's lock, so different users never contend.
type Memory struct {
	users    *locks.Keyed
	accounts sync.Map // int64 -> *account
	bets     sync.Map // bet id -> *models.Bet, replaced on every write
	betEntry sync.Map // bet id + reason -> *models.LedgerEntry

	seedMu  sync.RWMutex
	seeds   map[string]*models.SeedCommitment
	active  map[string]string
	retired map[string][]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:   locks.NewKeyed(),
		seeds:   make(map[string]*models.SeedCommitment),
		active:  make(map[string]string),
		retired: make(map[string][]string),
	}
}

func pairKey(userID int64, clientSeed string) string {
	return strconv.FormatInt(userID, 10) + ":" + clientSeed
}

func entryKey(betID string, reason models.LedgerReason) string {
	return betID + ":" + string(reason)
}

// withAccount runs fn holding the user's lock.
func (m *Memory) withAccount(userID int64, fn func(a *account) error) error {
	unlock := m.users.Lock(strconv.FormatInt(userID, 10))
	defer unlock()

	v, _ := m.accounts.LoadOrStore(userID, &account{balances: make(map[string]decimal.Decimal)})
	return fn(v.(*account))
}

func (m *Memory) Fund(ctx context.Context, userID int64, currency string, amount decimal.Decimal) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", models.ErrInvalidParams)
	}

	var out models.LedgerEntry
	err := m.withAccount(userID, func(a *account) error {
		balance := a.balances[currency].Add(amount)
		a.balances[currency] = balance

		entry := &models.LedgerEntry{
			ID:               models.GenerateEntryID(),
			UserID:           userID,
			Currency:         currency,
			Delta:            amount,
			Reason:           models.LedgerReasonDeposit,
			ResultingBalance: balance,
			CreatedAt:        time.Now().UTC(),
		}
		a.entries = append(a.entries, entry)
		out = *entry
		return nil
	})
	return &out, err
}

func (m *Memory) Balance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := m.withAccount(userID, func(a *account) error {
		balance = a.balances[currency]
		return nil
	})
	return balance, err
}

func (m *Memory) Entries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	out := make([]*models.LedgerEntry, 0, limit)
	err := m.withAccount(userID, func(a *account) error {
		for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
			cp := *a.entries[i]
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

func (m *Memory) EntriesForBet(ctx context.Context, betID string) ([]*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*models.LedgerEntry
	for _, reason := range []models.LedgerReason{
		models.LedgerReasonBetDebit,
		models.LedgerReasonBetCredit,
		models.LedgerReasonVoidRefund,
	} {
		if v, ok := m.betEntry.Load(entryKey(betID, reason)); ok {
			cp := *v.(*models.LedgerEntry)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PlaceBet(ctx context.Context, bet *models.Bet) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out models.LedgerEntry
	err := m.withAccount(bet.UserID, func(a *account) error {
		if _, exists := m.bets.Load(bet.ID); exists {
			return fmt.Errorf("bet %s already exists", bet.ID)
		}

		balance := a.balances[bet.Currency]
		if balance.LessThan(bet.Stake) {
			return fmt.Errorf("%w: have %s, need %s", models.ErrInsufficientBalance, balance, bet.Stake)
		}
		balance = balance.Sub(bet.Stake)

		entry := &models.LedgerEntry{
			ID:               models.GenerateEntryID(),
			UserID:           bet.UserID,
			Currency:         bet.Currency,
			Delta:            bet.Stake.Neg(),
			Reason:           models.LedgerReasonBetDebit,
			BetID:            bet.ID,
			ResultingBalance: balance,
			CreatedAt:        bet.CreatedAt,
		}

		a.balances[bet.Currency] = balance
		a.entries = append(a.entries, entry)
		a.bets = append(a.bets, bet.ID)
		m.bets.Store(bet.ID, bet.Clone())
		m.betEntry.Store(entryKey(bet.ID, entry.Reason), entry)
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Memory) Transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return m.withAccount(bet.UserID, func(a *account) error {
		v, ok := m.bets.Load(bet.ID)
		if !ok {
			return models.ErrBetNotFound
		}
		current := v.(*models.Bet)
		if current.State != from {
			return fmt.Errorf("%w: bet %s is %s, expected %s", models.ErrResolutionConflict, bet.ID, current.State, from)
		}
		if !from.CanTransition(bet.State) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, bet.State)
		}

		if entry != nil {
			ek := entryKey(bet.ID, entry.Reason)
			if _, dup := m.betEntry.Load(ek); dup {
				return fmt.Errorf("%w: %s for bet %s", models.ErrDuplicateEntry, entry.Reason, bet.ID)
			}
			balance := a.balances[bet.Currency].Add(entry.Delta)
			if balance.IsNegative() {
				return fmt.Errorf("%w: entry would leave %s", models.ErrInsufficientBalance, balance)
			}
			entry.ResultingBalance = balance
			a.balances[bet.Currency] = balance

			stored := *entry
			a.entries = append(a.entries, &stored)
			m.betEntry.Store(ek, &stored)
		}

		m.bets.Store(bet.ID, bet.Clone())
		return nil
	})
}

func (m *Memory) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.bets.Load(betID)
	if !ok {
		return nil, models.ErrBetNotFound
	}
	return v.(*models.Bet).Clone(), nil
}

func (m *Memory) ListBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	var ids []string
	_ = m.withAccount(userID, func(a *account) error {
		for i := len(a.bets) - 1; i >= 0 && len(ids) < limit; i-- {
			ids = append(ids, a.bets[i])
		}
		return nil
	})

	out := make([]*models.Bet, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.bets.Load(id); ok {
			out = append(out, v.(*models.Bet).Clone())
		}
	}
	return out, nil
}

func (m *Memory) ListOpenBets(ctx context.Context, cutoff time.Time, limit int) ([]*models.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	var out []*models.Bet
	m.bets.Range(func(_, v interface{}) bool {
		bet := v.(*models.Bet)
		if !bet.State.Terminal() && bet.CreatedAt.Before(cutoff) {
			out = append(out, bet.Clone())
		}
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveSeed(ctx context.Context, c *models.SeedCommitment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.seedMu.Lock()
	defer m.seedMu.Unlock()

	pk := pairKey(c.UserID, c.ClientSeed)
	if id, ok := m.active[pk]; ok {
		return fmt.Errorf("%w: pair already has active commitment %s", models.ErrSeedState, id)
	}
	if _, exists := m.seeds[c.ID]; exists {
		return fmt.Errorf("%w: commitment %s already exists", models.ErrSeedState, c.ID)
	}

	m.seeds[c.ID] = c.Clone()
	m.active[pk] = c.ID
	return nil
}

func (m *Memory) UpdateSeed(ctx context.Context, c *models.SeedCommitment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.seedMu.Lock()
	defer m.seedMu.Unlock()

	current, ok := m.seeds[c.ID]
	if !ok {
		return models.ErrSeedNotFound
	}
	if current.Version != c.Version {
		return ErrConflict
	}

	c.Version++
	m.seeds[c.ID] = c.Clone()

	if current.State == models.SeedStateActive && c.State == models.SeedStateRetired {
		pk := pairKey(c.UserID, c.ClientSeed)
		if m.active[pk] == c.ID {
			delete(m.active, pk)
		}
		m.retired[pk] = append(m.retired[pk], c.ID)
	}
	return nil
}

func (m *Memory) ActiveSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.seedMu.RLock()
	defer m.seedMu.RUnlock()

	id, ok := m.active[pairKey(userID, clientSeed)]
	if !ok {
		return nil, models.ErrSeedNotFound
	}
	return m.seeds[id].Clone(), nil
}

func (m *Memory) LatestRetiredSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.seedMu.RLock()
	defer m.seedMu.RUnlock()

	ids := m.retired[pairKey(userID, clientSeed)]
	if len(ids) == 0 {
		return nil, models.ErrSeedNotFound
	}
	return m.seeds[ids[len(ids)-1]].Clone(), nil
}

func (m *Memory) GetSeed(ctx context.Context, seedID string) (*models.SeedCommitment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.seedMu.RLock()
	defer m.seedMu.RUnlock()

	c, ok := m.seeds[seedID]
	if !ok {
		return nil, models.ErrSeedNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) Close() error {
	return nil
}
