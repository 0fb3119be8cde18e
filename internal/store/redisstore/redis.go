// Package redisstore keeps balances, bets, ledger entries and seed
// commitments in Redis. Every multi-key write runs under WATCH/MULTI so
// balance checks and the writes that depend on them commit together.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/models"
	"casino-engine/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type Store struct {
	client *redis.Client
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Client exposes the connection for components that share it, such as the
// rate limiter.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) Close() error {
	return s.client.Close()
}

// watch runs fn in an optimistic transaction over keys, retrying when another
// client touched a watched key first.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return store.ErrConflict
}

func readBalance(ctx context.Context, c redis.Cmdable, userID int64, currency string) (decimal.Decimal, error) {
	raw, err := c.HGet(ctx, fmt.Sprintf(KeyWallet, userID), currency).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

func getJSON(ctx context.Context, c redis.Cmdable, key string, v interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func queueEntry(ctx context.Context, pipe redis.Pipeliner, entry *models.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	ledgerKey := fmt.Sprintf(KeyUserLedger, entry.UserID)
	pipe.LPush(ctx, ledgerKey, data)
	pipe.LTrim(ctx, ledgerKey, 0, MaxHistory-1)
	if entry.BetID != "" {
		pipe.Set(ctx, fmt.Sprintf(KeyBetEntry, entry.BetID, entry.Reason), data, 0)
	}
	return nil
}

func (s *Store) Fund(ctx context.Context, userID int64, currency string, amount decimal.Decimal) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", models.ErrInvalidParams)
	}

	walletKey := fmt.Sprintf(KeyWallet, userID)
	var entry *models.LedgerEntry

	err := s.watch(ctx, func(tx *redis.Tx) error {
		balance, err := readBalance(ctx, tx, userID, currency)
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, walletKey, currency, balance.String())
			return queueEntry(ctx, pipe, entry)
		})
		return err
	}, walletKey)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Balance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	return readBalance(ctx, s.client, userID, currency)
}

func (s *Store) Entries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	limit = store.ClampLimit(limit)

	items, err := s.client.LRange(ctx, fmt.Sprintf(KeyUserLedger, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	entries := make([]*models.LedgerEntry, 0, len(items))
	for _, item := range items {
		var e models.LedgerEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *Store) EntriesForBet(ctx context.Context, betID string) ([]*models.LedgerEntry, error) {
	reasons := []models.LedgerReason{
		models.LedgerReasonBetDebit,
		models.LedgerReasonBetCredit,
		models.LedgerReasonVoidRefund,
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(reasons))
	for i, reason := range reasons {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyBetEntry, betID, reason))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	var entries []*models.LedgerEntry
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var e models.LedgerEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *Store) PlaceBet(ctx context.Context, bet *models.Bet) (*models.LedgerEntry, error) {
	walletKey := fmt.Sprintf(KeyWallet, bet.UserID)
	betKey := fmt.Sprintf(KeyBet, bet.ID)
	var entry *models.LedgerEntry

	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, betKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("bet %s already exists", bet.ID)
		}

		balance, err := readBalance(ctx, tx, bet.UserID, bet.Currency)
		if err != nil {
			return err
		}
		if balance.LessThan(bet.Stake) {
			return fmt.Errorf("%w: have %s, need %s", models.ErrInsufficientBalance, balance, bet.Stake)
		}
		balance = balance.Sub(bet.Stake)

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

		data, err := json.Marshal(bet)
		if err != nil {
			return fmt.Errorf("failed to marshal bet: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, walletKey, bet.Currency, balance.String())
			pipe.Set(ctx, betKey, data, 0)

			userBets := fmt.Sprintf(KeyUserBets, bet.UserID)
			pipe.LPush(ctx, userBets, bet.ID)
			pipe.LTrim(ctx, userBets, 0, MaxHistory-1)
			pipe.ZAdd(ctx, KeyOpenBets, redis.Z{
				Score:  float64(bet.CreatedAt.UnixMilli()),
				Member: bet.ID,
			})
			return queueEntry(ctx, pipe, entry)
		})
		return err
	}, walletKey, betKey)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Transition(ctx context.Context, bet *models.Bet, from models.BetState, entry *models.LedgerEntry) error {
	walletKey := fmt.Sprintf(KeyWallet, bet.UserID)
	betKey := fmt.Sprintf(KeyBet, bet.ID)
	keys := []string{walletKey, betKey}

	var entryKey string
	if entry != nil {
		entryKey = fmt.Sprintf(KeyBetEntry, bet.ID, entry.Reason)
		keys = append(keys, entryKey)
	}

	return s.watch(ctx, func(tx *redis.Tx) error {
		var current models.Bet
		if err := getJSON(ctx, tx, betKey, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return models.ErrBetNotFound
			}
			return fmt.Errorf("failed to read bet: %w", err)
		}
		if current.State != from {
			return fmt.Errorf("%w: bet %s is %s, expected %s", models.ErrResolutionConflict, bet.ID, current.State, from)
		}
		if !from.CanTransition(bet.State) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, bet.State)
		}

		if entry != nil {
			dup, err := tx.Exists(ctx, entryKey).Result()
			if err != nil {
				return err
			}
			if dup > 0 {
				return fmt.Errorf("%w: %s for bet %s", models.ErrDuplicateEntry, entry.Reason, bet.ID)
			}
			balance, err := readBalance(ctx, tx, bet.UserID, bet.Currency)
			if err != nil {
				return err
			}
			balance = balance.Add(entry.Delta)
			if balance.IsNegative() {
				return fmt.Errorf("%w: entry would leave %s", models.ErrInsufficientBalance, balance)
			}
			entry.ResultingBalance = balance
		}

		data, err := json.Marshal(bet)
		if err != nil {
			return fmt.Errorf("failed to marshal bet: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, betKey, data, 0)
			if bet.State.Terminal() {
				pipe.ZRem(ctx, KeyOpenBets, bet.ID)
			}
			if entry == nil {
				return nil
			}
			pipe.HSet(ctx, walletKey, bet.Currency, entry.ResultingBalance.String())
			return queueEntry(ctx, pipe, entry)
		})
		return err
	}, keys...)
}

func (s *Store) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	var bet models.Bet
	if err := getJSON(ctx, s.client, fmt.Sprintf(KeyBet, betID), &bet); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrBetNotFound
		}
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return &bet, nil
}

// bulkGetBets fetches bets in one round trip, skipping ids that expired.
func (s *Store) bulkGetBets(ctx context.Context, ids []string) ([]*models.Bet, error) {
	if len(ids) == 0 {
		return []*models.Bet{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyBet, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	bets := make([]*models.Bet, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var bet models.Bet
		if err := json.Unmarshal(data, &bet); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bet: %w", err)
		}
		bets = append(bets, &bet)
	}
	return bets, nil
}

func (s *Store) ListBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	limit = store.ClampLimit(limit)

	ids, err := s.client.LRange(ctx, fmt.Sprintf(KeyUserBets, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bet ids: %w", err)
	}
	return s.bulkGetBets(ctx, ids)
}

func (s *Store) ListOpenBets(ctx context.Context, cutoff time.Time, limit int) ([]*models.Bet, error) {
	limit = store.ClampLimit(limit)

	ids, err := s.client.ZRangeByScore(ctx, KeyOpenBets, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get open bets: %w", err)
	}

	bets, err := s.bulkGetBets(ctx, ids)
	if err != nil {
		return nil, err
	}
	open := bets[:0]
	for _, b := range bets {
		if !b.State.Terminal() {
			open = append(open, b)
		}
	}
	return open, nil
}

func (s *Store) SaveSeed(ctx context.Context, c *models.SeedCommitment) error {
	activeKey := fmt.Sprintf(KeySeedActive, c.UserID, c.ClientSeed)
	seedKey := fmt.Sprintf(KeySeed, c.ID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, activeKey).Result()
		if err == nil {
			return fmt.Errorf("%w: pair already has active commitment %s", models.ErrSeedState, id)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal seed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, seedKey, data, 0)
			pipe.Set(ctx, activeKey, c.ID, 0)
			return nil
		})
		return err
	}, activeKey, seedKey)
}

func (s *Store) UpdateSeed(ctx context.Context, c *models.SeedCommitment) error {
	seedKey := fmt.Sprintf(KeySeed, c.ID)
	activeKey := fmt.Sprintf(KeySeedActive, c.UserID, c.ClientSeed)

	return s.watch(ctx, func(tx *redis.Tx) error {
		var current models.SeedCommitment
		if err := getJSON(ctx, tx, seedKey, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return models.ErrSeedNotFound
			}
			return fmt.Errorf("failed to read seed: %w", err)
		}
		if current.Version != c.Version {
			return store.ErrConflict
		}

		next := c.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal seed: %w", err)
		}

		retiring := current.State == models.SeedStateActive && c.State == models.SeedStateRetired
		activeID, err := tx.Get(ctx, activeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, seedKey, data, 0)
			if retiring {
				if activeID == c.ID {
					pipe.Del(ctx, activeKey)
				}
				pipe.LPush(ctx, fmt.Sprintf(KeySeedRetired, c.UserID, c.ClientSeed), c.ID)
			}
			return nil
		})
		if err == nil {
			c.Version = next.Version
		}
		return err
	}, seedKey, activeKey)
}

func (s *Store) getSeed(ctx context.Context, id string) (*models.SeedCommitment, error) {
	var c models.SeedCommitment
	if err := getJSON(ctx, s.client, fmt.Sprintf(KeySeed, id), &c); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSeedNotFound
		}
		return nil, fmt.Errorf("failed to get seed: %w", err)
	}
	return &c, nil
}

func (s *Store) ActiveSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	id, err := s.client.Get(ctx, fmt.Sprintf(KeySeedActive, userID, clientSeed)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active seed: %w", err)
	}
	return s.getSeed(ctx, id)
}

func (s *Store) LatestRetiredSeed(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	id, err := s.client.LIndex(ctx, fmt.Sprintf(KeySeedRetired, userID, clientSeed), 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retired seed: %w", err)
	}
	return s.getSeed(ctx, id)
}

func (s *Store) GetSeed(ctx context.Context, seedID string) (*models.SeedCommitment, error) {
	return s.getSeed(ctx, seedID)
}
