// Package seeds manages server seed commitments: committing a hash before
// play, handing out nonces one at a time per (user, client seed) pair, and
// revealing the seed once the pair has been rotated.
package seeds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"casino-engine/internal/fairness"
	"casino-engine/internal/locks"
	"casino-engine/internal/models"
	"casino-engine/internal/store"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultClientSeed is used when a caller does not choose one.
	DefaultClientSeed = "default"
	maxClientSeedLen  = 64
	maxCASRetries     = 16
)

type Vault struct {
	store    store.SeedStore
	pairs    *locks.Keyed
	maxNonce uint64
	timeout  time.Duration
}

func NewVault(s store.SeedStore, maxNonce uint64, timeout time.Duration) *Vault {
	return &Vault{
		store:    s,
		pairs:    locks.NewKeyed(),
		maxNonce: maxNonce,
		timeout:  timeout,
	}
}

func pairKey(userID int64, clientSeed string) string {
	return strconv.FormatInt(userID, 10) + ":" + clientSeed
}

// NormalizeClientSeed applies the default and checks the length.
func NormalizeClientSeed(clientSeed string) (string, error) {
	if clientSeed == "" {
		return DefaultClientSeed, nil
	}
	if len(clientSeed) > maxClientSeedLen {
		return "", fmt.Errorf("%w: client seed longer than %d characters", models.ErrInvalidParams, maxClientSeedLen)
	}
	return clientSeed, nil
}

func (v *Vault) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return store.WithinTimeout(ctx, v.timeout, fn)
}

func (v *Vault) active(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	var c *models.SeedCommitment
	err := v.call(ctx, func(ctx context.Context) error {
		var err error
		c, err = v.store.ActiveSeed(ctx, userID, clientSeed)
		return err
	})
	return c, err
}

// update reloads the commitment, applies mutate and writes it back, retrying
// when another writer bumped the version in between.
func (v *Vault) update(ctx context.Context, seedID string, mutate func(c *models.SeedCommitment) error) (*models.SeedCommitment, error) {
	for i := 0; i < maxCASRetries; i++ {
		var c *models.SeedCommitment
		err := v.call(ctx, func(ctx context.Context) error {
			var err error
			c, err = v.store.GetSeed(ctx, seedID)
			return err
		})
		if err != nil {
			return nil, err
		}

		if err := mutate(c); err != nil {
			return nil, err
		}

		err = v.call(ctx, func(ctx context.Context) error {
			return v.store.UpdateSeed(ctx, c)
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("seed %s: %w", seedID, store.ErrConflict)
}

func retire(c *models.SeedCommitment) error {
	if c.State != models.SeedStateActive {
		return fmt.Errorf("%w: commitment %s is %s", models.ErrSeedState, c.ID, c.State)
	}
	if c.Pending > 0 {
		return fmt.Errorf("%w: commitment %s has %d unsettled bets", models.ErrSeedState, c.ID, c.Pending)
	}
	now := time.Now().UTC()
	c.State = models.SeedStateRetired
	c.RetiredAt = &now
	return nil
}

// commitLocked retires an idle active commitment for the pair, if any, and
// commits a fresh one. The caller holds the pair lock.
func (v *Vault) commitLocked(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	current, err := v.active(ctx, userID, clientSeed)
	switch {
	case err == nil:
		if _, err := v.update(ctx, current.ID, retire); err != nil {
			return nil, err
		}
	case !errors.Is(err, models.ErrSeedNotFound):
		return nil, err
	}

	serverSeed, err := fairness.GenerateServerSeed()
	if err != nil {
		return nil, err
	}

	c := &models.SeedCommitment{
		ID:             models.GenerateSeedID(),
		UserID:         userID,
		ClientSeed:     clientSeed,
		ServerSeed:     serverSeed,
		ServerSeedHash: fairness.HashSeed(serverSeed),
		State:          models.SeedStateActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := v.call(ctx, func(ctx context.Context) error { return v.store.SaveSeed(ctx, c) }); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":          userID,
		"seed_id":          c.ID,
		"server_seed_hash": c.ServerSeedHash,
	}).Info("Committed server seed")
	return c, nil
}

// Commit publishes a new server seed hash for the pair, starting at nonce 0.
// An existing commitment is retired first; one with unsettled bets is an
// ErrSeedState.
func (v *Vault) Commit(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	clientSeed, err := NormalizeClientSeed(clientSeed)
	if err != nil {
		return nil, err
	}

	unlock := v.pairs.Lock(pairKey(userID, clientSeed))
	defer unlock()

	return v.commitLocked(ctx, userID, clientSeed)
}

// rejected reports whether fn refused the nonce without writing anything, so
// handing the nonce out again is safe.
func rejected(err error) bool {
	return errors.Is(err, models.ErrInsufficientBalance) || errors.Is(err, models.ErrInvalidParams)
}

// Allocate reserves the next nonce of the pair and runs fn with it. When fn
// rejects the placement the reservation is undone and no nonce is consumed.
// Any other failure may have been written, so the nonce stays burned and the
// pending count stays raised until the caller releases it. Nonces of a pair
// are handed out strictly in order and never twice.
func (v *Vault) Allocate(ctx context.Context, userID int64, clientSeed string, fn func(c *models.SeedCommitment, nonce uint64) error) (*models.SeedCommitment, uint64, error) {
	clientSeed, err := NormalizeClientSeed(clientSeed)
	if err != nil {
		return nil, 0, err
	}

	unlock := v.pairs.Lock(pairKey(userID, clientSeed))
	defer unlock()

	current, err := v.active(ctx, userID, clientSeed)
	if errors.Is(err, models.ErrSeedNotFound) {
		current, err = v.commitLocked(ctx, userID, clientSeed)
	}
	if err != nil {
		return nil, 0, err
	}

	var nonce uint64
	reserved, err := v.update(ctx, current.ID, func(c *models.SeedCommitment) error {
		if c.State != models.SeedStateActive {
			return fmt.Errorf("%w: commitment %s was retired", models.ErrSeedState, c.ID)
		}
		if c.NextNonce >= v.maxNonce {
			return fmt.Errorf("%w: commitment %s used %d nonces", models.ErrExhaustedSeed, c.ID, c.NextNonce)
		}
		nonce = c.NextNonce
		c.NextNonce++
		c.Pending++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if err := fn(reserved.Clone(), nonce); err != nil {
		if rejected(err) {
			v.rollback(ctx, reserved.ID, nonce)
			return nil, 0, err
		}
		log.WithError(err).WithFields(log.Fields{
			"seed_id": reserved.ID,
			"nonce":   nonce,
		}).Warn("Nonce burned after failed placement")
		return reserved, nonce, err
	}
	return reserved, nonce, nil
}

// rollback returns an unused nonce. When another instance already moved
// past it only the pending count is restored and the nonce stays unused.
func (v *Vault) rollback(ctx context.Context, seedID string, nonce uint64) {
	_, err := v.update(context.WithoutCancel(ctx), seedID, func(c *models.SeedCommitment) error {
		if c.NextNonce == nonce+1 {
			c.NextNonce = nonce
		}
		if c.Pending > 0 {
			c.Pending--
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"seed_id": seedID,
			"nonce":   nonce,
		}).Error("Failed to roll back nonce reservation")
	}
}

// NextNonce consumes and returns the next nonce of the pair.
func (v *Vault) NextNonce(ctx context.Context, userID int64, clientSeed string) (uint64, error) {
	_, nonce, err := v.Allocate(ctx, userID, clientSeed, func(*models.SeedCommitment, uint64) error { return nil })
	return nonce, err
}

// Release records that one bet on the commitment reached a terminal state.
func (v *Vault) Release(ctx context.Context, seedID string) error {
	_, err := v.update(ctx, seedID, func(c *models.SeedCommitment) error {
		if c.Pending > 0 {
			c.Pending--
		}
		return nil
	})
	return err
}

// Rotate retires the pair's commitment, reveals its server seed and commits a
// new one for newClientSeed (the same client seed when empty).
func (v *Vault) Rotate(ctx context.Context, userID int64, clientSeed, newClientSeed string) (models.RevealedSeed, *models.SeedCommitment, error) {
	clientSeed, err := NormalizeClientSeed(clientSeed)
	if err != nil {
		return models.RevealedSeed{}, nil, err
	}
	if newClientSeed == "" {
		newClientSeed = clientSeed
	}
	if newClientSeed, err = NormalizeClientSeed(newClientSeed); err != nil {
		return models.RevealedSeed{}, nil, err
	}

	keys := []string{pairKey(userID, clientSeed)}
	if newClientSeed != clientSeed {
		keys = append(keys, pairKey(userID, newClientSeed))
	}
	unlock := v.pairs.LockAll(keys...)
	defer unlock()

	current, err := v.active(ctx, userID, clientSeed)
	if errors.Is(err, models.ErrSeedNotFound) {
		return models.RevealedSeed{}, nil, fmt.Errorf("%w: no active commitment to rotate", models.ErrSeedState)
	}
	if err != nil {
		return models.RevealedSeed{}, nil, err
	}

	retired, err := v.update(ctx, current.ID, retire)
	if err != nil {
		return models.RevealedSeed{}, nil, err
	}

	next, err := v.commitLocked(ctx, userID, newClientSeed)
	if err != nil {
		return models.RevealedSeed{}, nil, err
	}

	log.WithFields(log.Fields{
		"user_id":     userID,
		"retired_id":  retired.ID,
		"nonces_used": retired.NextNonce,
		"next_id":     next.ID,
	}).Info("Rotated seed pair")
	return revealed(retired), next, nil
}

func revealed(c *models.SeedCommitment) models.RevealedSeed {
	return models.RevealedSeed{
		SeedID:         c.ID,
		ClientSeed:     c.ClientSeed,
		ServerSeed:     c.ServerSeed,
		ServerSeedHash: c.ServerSeedHash,
		NoncesUsed:     c.NextNonce,
	}
}

// Reveal returns the server seed of the pair's most recently retired
// commitment. A pair that was never rotated yields ErrNotRotated.
func (v *Vault) Reveal(ctx context.Context, userID int64, clientSeed string) (models.RevealedSeed, error) {
	clientSeed, err := NormalizeClientSeed(clientSeed)
	if err != nil {
		return models.RevealedSeed{}, err
	}

	var c *models.SeedCommitment
	err = v.call(ctx, func(ctx context.Context) error {
		var err error
		c, err = v.store.LatestRetiredSeed(ctx, userID, clientSeed)
		return err
	})
	if err == nil {
		return revealed(c), nil
	}
	if !errors.Is(err, models.ErrSeedNotFound) {
		return models.RevealedSeed{}, err
	}

	if _, activeErr := v.active(ctx, userID, clientSeed); activeErr == nil {
		return models.RevealedSeed{}, fmt.Errorf("%w: rotate the pair before revealing", models.ErrNotRotated)
	}
	return models.RevealedSeed{}, err
}

// Current returns the pair's active commitment, committing one if the pair
// has none so its hash is known before the first bet.
func (v *Vault) Current(ctx context.Context, userID int64, clientSeed string) (*models.SeedCommitment, error) {
	clientSeed, err := NormalizeClientSeed(clientSeed)
	if err != nil {
		return nil, err
	}

	unlock := v.pairs.Lock(pairKey(userID, clientSeed))
	defer unlock()

	c, err := v.active(ctx, userID, clientSeed)
	if errors.Is(err, models.ErrSeedNotFound) {
		return v.commitLocked(ctx, userID, clientSeed)
	}
	return c, err
}

// Lookup loads a commitment by id, server seed included.
func (v *Vault) Lookup(ctx context.Context, seedID string) (*models.SeedCommitment, error) {
	var c *models.SeedCommitment
	err := v.call(ctx, func(ctx context.Context) error {
		var err error
		c, err = v.store.GetSeed(ctx, seedID)
		return err
	})
	return c, err
}
