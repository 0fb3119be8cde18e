// Package payout turns a stake and a multiplier into a settlement amount.
package payout

import (
	"fmt"

	"casino-engine/internal/config"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Settlement struct {
	Payout decimal.Decimal
	// Capped is set when the raw payout exceeded the currency cap and was
	// clamped.
	// The bet is flagged for audit.
	Capped bool
}

type Calculator struct {
	precision map[string]int32
	maxPayout map[string]decimal.Decimal
}

func NewCalculator(cfg config.PayoutConfig) *Calculator {
	precision := make(map[string]int32, len(cfg.Precision))
	for currency, places := range cfg.Precision {
		precision[currency] = places
	}
	maxPayout := make(map[string]decimal.Decimal, len(cfg.MaxPayout))
	for currency, limit := range cfg.MaxPayout {
		maxPayout[currency] = limit
	}
	return &Calculator{
		precision: precision,
		maxPayout: maxPayout,
	}
}

// Precision returns the decimal places of currency.
func (c *Calculator) Precision(currency string) (int32, error) {
	places, ok := c.precision[currency]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidParams, currency)
	}
	return places, nil
}

// ValidateStake rejects non-positive stakes and stakes finer than the
// currency allows.
func (c *Calculator) ValidateStake(stake decimal.Decimal, currency string) error {
	places, err := c.Precision(currency)
	if err != nil {
		return err
	}
	if !stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", models.ErrInvalidParams)
	}
	if !stake.Equal(stake.Truncate(places)) {
		return fmt.Errorf("%w: stake %s has more than %d decimals for %s", models.ErrInvalidParams, stake, places, currency)
	}
	return nil
}

// Settle computes round_down(stake * multiplier) at the currency precision.
// A zero multiplier is a loss, not an error.
func (c *Calculator) Settle(stake, multiplier decimal.Decimal, currency string) (Settlement, error) {
	places, err := c.Precision(currency)
	if err != nil {
		return Settlement{}, err
	}
	if multiplier.IsNegative() {
		return Settlement{}, fmt.Errorf("%w: negative multiplier %s", models.ErrInvalidParams, multiplier)
	}
	if stake.IsNegative() {
		return Settlement{}, fmt.Errorf("%w: negative stake %s", models.ErrInvalidParams, stake)
	}

	amount := stake.Mul(multiplier).Truncate(places)
	// A currency without a cap is unbounded.
	if limit, ok := c.maxPayout[currency]; ok && amount.GreaterThan(limit) {
		log.WithFields(log.Fields{
			"stake":      stake.String(),
			"multiplier": multiplier.String(),
			"payout":     amount.String(),
			"cap":        limit.String(),
			"currency":   currency,
		}).Warn("payout exceeds cap, clamping and flagging for audit")
		return Settlement{Payout: limit.Truncate(places), Capped: true}, nil
	}
	return Settlement{Payout: amount}, nil
}
