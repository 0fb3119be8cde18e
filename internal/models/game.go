package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type GameType string

const (
	GameTypeCrash        GameType = "crash"
	GameTypeKeno         GameType = "keno"
	GameTypeCricketMines GameType = "cricket_mines"
	GameTypeTowerClimb   GameType = "tower_climb"
	GameTypeCupGame      GameType = "cup_game"
	GameTypeSlots        GameType = "slots"
	GameTypeDiceRange    GameType = "dice_range"
)

// AllGameTypes lists every game the engine settles. The resolver registry
// refuses to start unless each entry has a resolver.
var AllGameTypes = []GameType{
	GameTypeCrash,
	GameTypeKeno,
	GameTypeCricketMines,
	GameTypeTowerClimb,
	GameTypeCupGame,
	GameTypeSlots,
	GameTypeDiceRange,
}

func (g GameType) Valid() bool {
	for _, t := range AllGameTypes {
		if t == g {
			return true
		}
	}
	return false
}

type BetState string

const (
	BetStatePlaced   BetState = "placed"
	BetStateResolved BetState = "resolved"
	BetStateSettled  BetState = "settled"
	BetStateVoided   BetState = "voided"
)

// Terminal reports whether no further transition is possible.
func (s BetState) Terminal() bool {
	return s == BetStateSettled || s == BetStateVoided
}

// CanTransition encodes the forward-only lifecycle:
// placed -> resolved -> settled, and placed|resolved -> voided.
func (s BetState) CanTransition(to BetState) bool {
	switch s {
	case BetStatePlaced:
		return to == BetStateResolved || to == BetStateVoided
	case BetStateResolved:
		return to == BetStateSettled || to == BetStateVoided
	default:
		return false
	}
}

type Bet struct {
	ID       string          `json:"id" redis:"id"`
	UserID   int64           `json:"user_id" redis:"user_id"`
	GameType GameType        `json:"game_type" redis:"game_type"`
	Currency string          `json:"currency" redis:"currency"`
	Stake    decimal.Decimal `json:"stake" redis:"stake"`

	// Seed triple the outcome is derived from. The server seed itself stays in
	// the vault until the commitment is retired.
	SeedID         string `json:"seed_id" redis:"seed_id"`
	ServerSeedHash string `json:"server_seed_hash" redis:"server_seed_hash"`
	ClientSeed     string `json:"client_seed" redis:"client_seed"`
	Nonce          uint64 `json:"nonce" redis:"nonce"`

	Params     json.RawMessage `json:"params" redis:"params"`
	State      BetState        `json:"state" redis:"state"`
	Outcome    json.RawMessage `json:"outcome,omitempty" redis:"outcome"`
	Multiplier decimal.Decimal `json:"multiplier" redis:"multiplier"`
	Payout     decimal.Decimal `json:"payout" redis:"payout"`

	Audit      bool   `json:"audit,omitempty" redis:"audit"`
	VoidReason string `json:"void_reason,omitempty" redis:"void_reason"`

	CreatedAt  time.Time  `json:"created_at" redis:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" redis:"resolved_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty" redis:"settled_at"`
}

// Clone returns a copy that shares no mutable slices with b.
func (b *Bet) Clone() *Bet {
	c := *b
	if b.Params != nil {
		c.Params = append(json.RawMessage(nil), b.Params...)
	}
	if b.Outcome != nil {
		c.Outcome = append(json.RawMessage(nil), b.Outcome...)
	}
	if b.ResolvedAt != nil {
		t := *b.ResolvedAt
		c.ResolvedAt = &t
	}
	if b.SettledAt != nil {
		t := *b.SettledAt
		c.SettledAt = &t
	}
	return &c
}
