// Package store defines the persistence contracts the engine needs and an
// in-memory implementation. Redis and PostgreSQL backends live in
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

// ErrConflict is returned when a compare-and-set lost to a concurrent writer.
var ErrConflict = errors.New("store: concurrent update")

type BalanceStore interface {
	// Fund credits amount as a deposit. It writes no bet entry.
	Fund(ctx context.Context, userID int64, currency string, amount decimal.Decimal) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error)
	// Entries returns the newest entries first.
	Entries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error)
	EntriesForBet(ctx context.Context, betID string) ([]*models.LedgerEntry, error)
}

type BetStore interface {
	// PlaceBet checks the balance, debits bet.Stake, appends the bet_debit
	// entry and inserts the bet as one atomic step. It fails with
	// models.ErrInsufficientBalance and writes nothing when funds are short.
	PlaceBet(ctx context.Context, bet *models.Bet) (*models.LedgerEntry, error)

	// Transition moves a bet from state from to bet.State, persisting every
	// bet field. When entry is non-nil its Delta is applied to the balance and
	// the entry appended, filling ResultingBalance. A bet already moved on
	// yields models.ErrResolutionConflict; an existing entry with the same
	// (BetID, Reason) yields models.ErrDuplicateEntry. Either way nothing is
	// written.
	Transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error

	GetBet(ctx context.Context, betID string) (*models.Bet, error)
	// ListBets returns the newest bets of a user first.
	ListBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)
	// ListOpenBets returns placed or resolved bets created before cutoff.
	ListOpenBets(ctx context.Context, cutoff time.Time, limit int) ([]*models.Bet, error)
}

type SeedStore interface {
	// SaveSeed inserts a new active commitment. It fails with
	// models.ErrSeedState when the pair already has an active one.
	SaveSeed(ctx context.Context, c *models.SeedCommitment) error
	// UpdateSeed writes c if the stored version still equals c.Version, and
	// bumps c.Version. Otherwise it returns ErrConflict.
	UpdateSeed(ctx context.Context, c *models.SeedCommitment) error
	ActiveSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error)
	LatestRetiredSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error)
	GetSeed(ctx context.Context, seedID string) (*models.SeedCommitment, error)
}

type Store interface {
	BalanceStore
	BetStore
	SeedStore
	Close() error
}

func ClampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}

// WithinTimeout runs fn under a deadline. Backends surface an expired
// deadline as an error, so a timed-out call is always a failure.
func WithinTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
