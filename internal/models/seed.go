package models

import "time"

type SeedState string

const (
	SeedStateActive  SeedState = "active"
	SeedStateRetired SeedState = "retired"
)

// SeedCommitment binds a secret server seed to a (user, client seed) pair.
// The hash is handed out before the first bet; the seed only after the
// commitment is retired.
type SeedCommitment struct {
	ID             string    `json:"id" redis:"id"`
	UserID         int64     `json:"user_id" redis:"user_id"`
	ClientSeed     string    `json:"client_seed" redis:"client_seed"`
	ServerSeed     string    `json:"server_seed" redis:"server_seed"`
	ServerSeedHash string    `json:"server_seed_hash" redis:"server_seed_hash"`
	NextNonce      uint64    `json:"next_nonce" redis:"next_nonce"`
	Pending        int64     `json:"pending" redis:"pending"`
	State          SeedState `json:"state" redis:"state"`

	// Version is bumped on every update; stores compare-and-set on it.
	Version int64 `json:"version" redis:"version"`

	CreatedAt time.Time  `json:"created_at" redis:"created_at"`
	RetiredAt *time.Time `json:"retired_at,omitempty" redis:"retired_at"`
}

func (c *SeedCommitment) Info() SeedInfo {
	return SeedInfo{
		SeedID:         c.ID,
		ClientSeed:     c.ClientSeed,
		ServerSeedHash: c.ServerSeedHash,
		NextNonce:      c.NextNonce,
		Pending:        c.Pending,
	}
}

func (c *SeedCommitment) Clone() *SeedCommitment {
	cp := *c
	if c.RetiredAt != nil {
		t := *c.RetiredAt
		cp.RetiredAt = &t
	}
	return &cp
}
