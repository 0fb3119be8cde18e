package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type PlaceBetRequest struct {
	GameType   GameType        `json:"game_type" binding:"required"`
	Stake      decimal.Decimal `json:"stake"`
	Currency   string          `json:"currency"`
	ClientSeed string          `json:"client_seed"`
	Params     json.RawMessage `json:"params"`
}

type PlaceBetResponse struct {
	BetID          string   `json:"bet_id"`
	ServerSeedHash string   `json:"server_seed_hash"`
	ClientSeed     string   `json:"client_seed"`
	Nonce          uint64   `json:"nonce"`
	State          BetState `json:"state"`
}

type CompleteBetResponse struct {
	BetID      string          `json:"bet_id"`
	GameType   GameType        `json:"game_type"`
	Outcome    json.RawMessage `json:"outcome"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	NewBalance decimal.Decimal `json:"new_balance"`
	State      BetState        `json:"state"`
	Audit      bool            `json:"audit,omitempty"`
}

type VerifyRequest struct {
	ServerSeed     string          `json:"server_seed" binding:"required"`
	ServerSeedHash string          `json:"server_seed_hash"`
	ClientSeed     string          `json:"client_seed" binding:"required"`
	Nonce          uint64          `json:"nonce"`
	GameType       GameType        `json:"game_type" binding:"required"`
	Params         json.RawMessage `json:"params"`
}

type VerifyResponse struct {
	GameType       GameType        `json:"game_type"`
	ServerSeedHash string          `json:"server_seed_hash"`
	HashMatches    *bool           `json:"hash_matches,omitempty"`
	Outcome        json.RawMessage `json:"outcome"`
	Multiplier     decimal.Decimal `json:"multiplier"`
}

type RotateSeedRequest struct {
	ClientSeed    string `json:"client_seed"`
	NewClientSeed string `json:"new_client_seed"`
}

type RotateSeedResponse struct {
	Revealed RevealedSeed `json:"revealed"`
	Next     SeedInfo     `json:"next"`
}

type VoidBetRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BetVerification is a stored bet replayed against its revealed seed.
type BetVerification struct {
	BetID      string         `json:"bet_id"`
	ServerSeed string         `json:"server_seed"`
	Result     VerifyResponse `json:"result"`
	Matches    bool           `json:"matches"`
}
