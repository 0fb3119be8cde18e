// Package pgstore is the PostgreSQL backend. Balance rows are locked with
// SELECT ... FOR UPDATE so a balance check and the writes depending on it
// commit in one transaction; the unique (bet_id, reason) index backs the
// one-entry-per-reason rule.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casino-engine/internal/models"
	"casino-engine/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse numeric %q: %w", raw, err)
	}
	return d, nil
}

// lockBalance creates the balance row if needed and locks it for the rest of
// the transaction.
func lockBalance(ctx context.Context, tx pgx.Tx, userID int64, currency string) (decimal.Decimal, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, currency) VALUES ($1, $2)
		ON CONFLICT (user_id, currency) DO NOTHING`, userID, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	var raw string
	err = tx.QueryRow(ctx, `
		SELECT amount::text FROM balances
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE`, userID, currency).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock balance: %w", err)
	}
	return scanDecimal(raw)
}

func setBalance(ctx context.Context, tx pgx.Tx, userID int64, currency string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE balances SET amount = $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2`, userID, currency, amount.String())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, q Queryable, e *models.LedgerEntry) error {
	var betID *string
	if e.BetID != "" {
		betID = &e.BetID
	}

	_, err := q.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, currency, delta, reason, bet_id, resulting_balance, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8)`,
		e.ID, e.UserID, e.Currency, e.Delta.String(), string(e.Reason), betID, e.ResultingBalance.String(), e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s for bet %s", models.ErrDuplicateEntry, e.Reason, e.BetID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) Fund(ctx context.Context, userID int64, currency string, amount decimal.Decimal) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", models.ErrInvalidParams)
	}

	var entry *models.LedgerEntry
	err := WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, userID, currency)
		if err != nil {
			return err
		}
		balance = balance.Add(amount)

		entry = &models.LedgerEntry{
			ID:               models.GenerateEntryID(),
			UserID:           userID,
			Currency:         currency,
			Delta:            amount,
			Reason:           models.LedgerReasonDeposit,
			ResultingBalance: balance,
			CreatedAt:        time.Now().UTC(),
		}
		if err := setBalance(ctx, tx, userID, currency, balance); err != nil {
			return err
		}
		return insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Balance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
		SELECT amount::text FROM balances WHERE user_id = $1 AND currency = $2`,
		userID, currency).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}
	return scanDecimal(raw)
}

const entryColumns = `id, user_id, currency, delta::text, reason, COALESCE(bet_id, ''), resulting_balance::text, created_at`

func scanEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var (
			e                models.LedgerEntry
			reason           string
			delta, resultBal string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &delta, &reason, &e.BetID, &resultBal, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reason = models.LedgerReason(reason)

		var err error
		if e.Delta, err = scanDecimal(delta); err != nil {
			return nil, err
		}
		if e.ResultingBalance, err = scanDecimal(resultBal); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *Store) Entries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2`, userID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	return scanEntries(rows)
}

func (s *Store) EntriesForBet(ctx context.Context, betID string) ([]*models.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE bet_id = $1
		ORDER BY seq`, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bet entries: %w", err)
	}
	return scanEntries(rows)
}

const betColumns = `id, user_id, game_type, currency, stake::text, seed_id, server_seed_hash, client_seed,
	nonce, params::text, state, outcome::text, multiplier::text, payout::text, audit, void_reason,
	created_at, resolved_at, settled_at`

func scanBet(row pgx.Row) (*models.Bet, error) {
	var (
		b                         models.Bet
		gameType, state           string
		stake, multiplier, payout string
		nonce                     int64
		params                    string
		outcome                   *string
	)
	err := row.Scan(&b.ID, &b.UserID, &gameType, &b.Currency, &stake, &b.SeedID, &b.ServerSeedHash, &b.ClientSeed,
		&nonce, &params, &state, &outcome, &multiplier, &payout, &b.Audit, &b.VoidReason,
		&b.CreatedAt, &b.ResolvedAt, &b.SettledAt)
	if err != nil {
		return nil, err
	}

	b.GameType = models.GameType(gameType)
	b.State = models.BetState(state)
	b.Nonce = uint64(nonce)
	b.Params = json.RawMessage(params)
	if outcome != nil {
		b.Outcome = json.RawMessage(*outcome)
	}
	if b.Stake, err = scanDecimal(stake); err != nil {
		return nil, err
	}
	if b.Multiplier, err = scanDecimal(multiplier); err != nil {
		return nil, err
	}
	if b.Payout, err = scanDecimal(payout); err != nil {
		return nil, err
	}
	return &b, nil
}

func nullableJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func (s *Store) PlaceBet(ctx context.Context, bet *models.Bet) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, bet.UserID, bet.Currency)
		if err != nil {
			return err
		}
		if balance.LessThan(bet.Stake) {
			return fmt.Errorf("%w: have %s, need %s", models.ErrInsufficientBalance, balance, bet.Stake)
		}
		balance = balance.Sub(bet.Stake)

		params := bet.Params
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bets (id, user_id, game_type, currency, stake, seed_id, server_seed_hash, client_seed,
				nonce, params, state, multiplier, payout, audit, void_reason, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10::json, $11, $12::numeric, $13::numeric, $14, $15, $16)`,
			bet.ID, bet.UserID, string(bet.GameType), bet.Currency, bet.Stake.String(), bet.SeedID, bet.ServerSeedHash, bet.ClientSeed,
			int64(bet.Nonce), string(params), string(bet.State), bet.Multiplier.String(), bet.Payout.String(), bet.Audit, bet.VoidReason, bet.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert bet: %w", err)
		}

		entry = &models.LedgerEntry{
			ID:               models.GenerateEntryID(),
			UserID:           bet.UserID,
			Currency:         bet.Currency,
			Delta:            bet.Stake.Neg(),
			Reason:           models.LedgerReasonBetDebit,
			BetID:            bet.ID,
			ResultingBalance: balance,
			CreatedAt:        bet.CreatedAt,
		}
		if err := setBalance(ctx, tx, bet.UserID, bet.Currency, balance); err != nil {
			return err
		}
		return insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error {
	return WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT state FROM bets WHERE id = $1 FOR UPDATE`, bet.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrBetNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock bet %s: %w", bet.ID, err)
		}
		if models.BetState(current) != from {
			return fmt.Errorf("%w: bet %s is %s, expected %s", models.ErrResolutionConflict, bet.ID, current, from)
		}
		if !from.CanTransition(bet.State) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, bet.State)
		}

		if entry != nil {
			var exists bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE bet_id = $1 AND reason = $2)`,
				bet.ID, string(entry.Reason)).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check ledger: %w", err)
			}
			if exists {
				return fmt.Errorf("%w: %s for bet %s", models.ErrDuplicateEntry, entry.Reason, bet.ID)
			}

			balance, err := lockBalance(ctx, tx, bet.UserID, bet.Currency)
			if err != nil {
				return err
			}
			balance = balance.Add(entry.Delta)
			if balance.IsNegative() {
				return fmt.Errorf("%w: entry would leave %s", models.ErrInsufficientBalance, balance)
			}
			entry.ResultingBalance = balance

			if err := setBalance(ctx, tx, bet.UserID, bet.Currency, balance); err != nil {
				return err
			}
			if err := insertEntry(ctx, tx, entry); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE bets SET
				state = $2, outcome = $3::json, multiplier = $4::numeric, payout = $5::numeric,
				audit = $6, void_reason = $7, resolved_at = $8, settled_at = $9, params = $10::json
			WHERE id = $1`,
			bet.ID, string(bet.State), nullableJSON(bet.Outcome), bet.Multiplier.String(), bet.Payout.String(),
			bet.Audit, bet.VoidReason, bet.ResolvedAt, bet.SettledAt, string(bet.Params))
		if err != nil {
			return fmt.Errorf("failed to update bet %s: %w", bet.ID, err)
		}
		return nil
	})
}

func (s *Store) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	bet, err := scanBet(s.pool.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, betID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %s: %w", betID, err)
	}
	return bet, nil
}

func (s *Store) queryBets(ctx context.Context, query string, args ...interface{}) ([]*models.Bet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func (s *Store) ListBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	return s.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, store.ClampLimit(limit))
}

func (s *Store) ListOpenBets(ctx context.Context, cutoff time.Time, limit int) ([]*models.Bet, error) {
	return s.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE state IN ('placed', 'resolved') AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, store.ClampLimit(limit))
}

const seedColumns = `id, user_id, client_seed, server_seed, server_seed_hash, next_nonce, pending, state, version, created_at, retired_at`

func scanSeed(row pgx.Row) (*models.SeedCommitment, error) {
	var (
		c         models.SeedCommitment
		nextNonce int64
		state     string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ClientSeed, &c.ServerSeed, &c.ServerSeedHash,
		&nextNonce, &c.Pending, &state, &c.Version, &c.CreatedAt, &c.RetiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan seed: %w", err)
	}
	c.NextNonce = uint64(nextNonce)
	c.State = models.SeedState(state)
	return &c, nil
}

func (s *Store) SaveSeed(ctx context.Context, c *models.SeedCommitment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO seed_commitments (id, user_id, client_seed, server_seed, server_seed_hash,
			next_nonce, pending, state, version, created_at, retired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.UserID, c.ClientSeed, c.ServerSeed, c.ServerSeedHash,
		int64(c.NextNonce), c.Pending, string(c.State), c.Version, c.CreatedAt, c.RetiredAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: pair already has an active commitment", models.ErrSeedState)
	}
	if err != nil {
		return fmt.Errorf("failed to save seed: %w", err)
	}
	return nil
}

func (s *Store) UpdateSeed(ctx context.Context, c *models.SeedCommitment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE seed_commitments SET
			next_nonce = $3, pending = $4, state = $5, retired_at = $6, version = version + 1
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, int64(c.NextNonce), c.Pending, string(c.State), c.RetiredAt)
	if err != nil {
		return fmt.Errorf("failed to update seed %s: %w", c.ID, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetSeed(ctx, c.ID); err != nil {
			return err
		}
		return store.ErrConflict
	}
	c.Version++
	return nil
}

func (s *Store) ActiveSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	return scanSeed(s.pool.QueryRow(ctx, `
		SELECT `+seedColumns+` FROM seed_commitments
		WHERE user_id = $1 AND client_seed = $2 AND state = 'active'`, userID, clientSeed))
}

func (s *Store) LatestRetiredSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	return scanSeed(s.pool.QueryRow(ctx, `
		SELECT `+seedColumns+` FROM seed_commitments
		WHERE user_id = $1 AND client_seed = $2 AND state = 'retired'
		ORDER BY retired_at DESC, created_at DESC
		LIMIT 1`, userID, clientSeed))
}

func (s *Store) GetSeed(ctx context.Context, seedID string) (*models.SeedCommitment, error) {
	return scanSeed(s.pool.QueryRow(ctx, `SELECT `+seedColumns+` FROM seed_commitments WHERE id = $1`, seedID))
}
