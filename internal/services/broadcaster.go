package services

import (
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Broadcaster pushes live round progress and settlements to whoever listens.
// Implementations must not block the engine.
type Broadcaster interface {
	BroadcastGameUpdate(betID string, userID int64, multiplier decimal.Decimal)
	BroadcastGameCrash(betID string, userID int64, crashPoint decimal.Decimal)
	BroadcastSettlement(event models.BetEvent)
}

// MultiBroadcaster fans every call out to each member in order.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) BroadcastGameUpdate(betID string, userID int64, multiplier decimal.Decimal) {
	for _, b := range m {
		b.BroadcastGameUpdate(betID, userID, multiplier)
	}
}

func (m MultiBroadcaster) BroadcastGameCrash(betID string, userID int64, crashPoint decimal.Decimal) {
	for _, b := range m {
		b.BroadcastGameCrash(betID, userID, crashPoint)
	}
}

func (m MultiBroadcaster) BroadcastSettlement(event models.BetEvent) {
	for _, b := range m {
		b.BroadcastSettlement(event)
	}
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastGameUpdate(string, int64, decimal.Decimal) {}
func (noopBroadcaster) BroadcastGameCrash(string, int64, decimal.Decimal) {}
func (noopBroadcaster) BroadcastSettlement(models.BetEvent) {}
