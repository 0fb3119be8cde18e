package games

import (
	"encoding/json"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

const (
	dicePlaces      = 2
	diceMultPlaces  = 4
	diceRollBuckets = 10000
)

// DiceParams is the winning window [Low, High) on a 0.00-99.99 roll.
type DiceParams struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

type DiceOutcome struct {
	Roll decimal.Decimal `json:"roll"`
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
	Won  bool            `json:"won"`
}

type Dice struct {
	cfg     config.DiceConfig
	hundred decimal.Decimal
}

func NewDice(cfg config.DiceConfig) *Dice {
	return &Dice{cfg: cfg, hundred: decimal.NewFromInt(100)}
}

func (d *Dice) Type() models.GameType { return models.GameTypeDiceRange }

func (d *Dice) Decode(raw json.RawMessage) (Params, error) {
	var p DiceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	for _, v := range []decimal.Decimal{p.Low, p.High} {
		if !v.Equal(v.Truncate(dicePlaces)) {
			return nil, invalid("dice bound %s has more than %d decimals", v, dicePlaces)
		}
		if v.IsNegative() || v.GreaterThan(d.hundred) {
			return nil, invalid("dice bound %s outside [0, 100]", v)
		}
	}
	if !p.Low.LessThan(p.High) {
		return nil, invalid("dice low %s must be below high %s", p.Low, p.High)
	}
	width := p.High.Sub(p.Low)
	if width.LessThan(d.cfg.MinWidth) || width.GreaterThan(d.cfg.MaxWidth) {
		return nil, invalid("dice window %s outside [%s, %s]", width, d.cfg.MinWidth, d.cfg.MaxWidth)
	}
	return p, nil
}

func (d *Dice) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(DiceParams)
	if !ok {
		return Result{}, invalid("dice params have type %T", params)
	}

	roll := d.Roll(src.Next())
	out := DiceOutcome{Roll: roll, Low: p.Low, High: p.High}

	multiplier := decimal.Zero
	if roll.GreaterThanOrEqual(p.Low) && roll.LessThan(p.High) {
		out.Won = true
		multiplier = d.Multiplier(p.Low, p.High)
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}

// Roll maps u onto floor(u * 10000) / 100.
func (d *Dice) Roll(u float64) decimal.Decimal {
	return decimal.NewFromInt(int64(uniformIndex(u, diceRollBuckets))).Shift(-dicePlaces)
}

// Multiplier is (1 - edge) * 100 / width, truncated to four decimals.
func (d *Dice) Multiplier(low, high decimal.Decimal) decimal.Decimal {
	rtp := decimal.NewFromInt(1).Sub(d.cfg.HouseEdge).Mul(d.hundred)
	return truncDiv(rtp, high.Sub(low), diceMultPlaces)
}
