package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetEventType string

const (
	BetEventSettled BetEventType = "bet.settled"
	BetEventVoided  BetEventType = "bet.voided"
)

// BetEvent is published once a bet reaches a terminal state.
type BetEvent struct {
	Type       BetEventType    `json:"type"`
	BetID      string          `json:"bet_id"`
	UserID     int64           `json:"user_id"`
	GameType   GameType        `json:"game_type"`
	Currency   string          `json:"currency"`
	Stake      decimal.Decimal `json:"stake"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Audit      bool            `json:"audit,omitempty"`
	VoidReason string          `json:"void_reason,omitempty"`
	At         time.Time       `json:"at"`
}

func NewBetEvent(b *Bet) BetEvent {
	ev := BetEvent{
		Type:       BetEventSettled,
		BetID:      b.ID,
		UserID:     b.UserID,
		GameType:   b.GameType,
		Currency:   b.Currency,
		Stake:      b.Stake,
		Multiplier: b.Multiplier,
		Payout:     b.Payout,
		Audit:      b.Audit,
		At:         time.Now().UTC(),
	}
	if b.State == BetStateVoided {
		ev.Type = BetEventVoided
		ev.VoidReason = b.VoidReason
		ev.Payout = decimal.Zero
	}
	return ev
}
