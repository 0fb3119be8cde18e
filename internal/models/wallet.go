package models

import "github.com/shopspring/decimal"

type BalanceResponse struct {
	UserID   int64           `json:"user_id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// SeedInfo is the public view of a commitment: never the server seed while
// the pair is active.
type SeedInfo struct {
	SeedID         string `json:"seed_id"`
	ClientSeed     string `json:"client_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	NextNonce      uint64 `json:"next_nonce"`
	Pending        int64  `json:"pending"`
}

type RevealedSeed struct {
	SeedID         string `json:"seed_id"`
	ClientSeed     string `json:"client_seed"`
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	NoncesUsed     uint64 `json:"nonces_used"`
}
