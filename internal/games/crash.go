package games

import (
	"encoding/json"
	"math"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

const crashPlaces = 2

type CrashParams struct {
	// Cashout is the target multiplier. Live rounds may leave it empty and
	// have the server fill it in when the player cashes out.
	Cashout *decimal.Decimal `json:"cashout,omitempty"`
	Live    bool             `json:"live,omitempty"`
}

type CrashOutcome struct {
	CrashPoint decimal.Decimal  `json:"crash_point"`
	Cashout    *decimal.Decimal `json:"cashout,omitempty"`
	Won        bool             `json:"won"`
}

type Crash struct {
	cfg config.CrashConfig
	one decimal.Decimal
}

func NewCrash(cfg config.CrashConfig) *Crash {
	return &Crash{
		cfg: cfg,
		one: decimal.NewFromInt(1),
	}
}

func (c *Crash) Type() models.GameType { return models.GameTypeCrash }

func (c *Crash) Decode(raw json.RawMessage) (Params, error) {
	var p CrashParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Cashout == nil {
		if !p.Live {
			return nil, invalid("crash cashout is required unless the round is live")
		}
		return p, nil
	}
	if !p.Cashout.Equal(p.Cashout.Truncate(crashPlaces)) {
		return nil, invalid("crash cashout %s has more than %d decimals", p.Cashout, crashPlaces)
	}
	// A live cash-out can land anywhere on the curve, including 1.00.
	lowest := c.cfg.MinCrashPoint
	if p.Live {
		lowest = c.one
	}
	if p.Cashout.LessThan(lowest) || p.Cashout.GreaterThan(c.cfg.MaxCrashPoint) {
		return nil, invalid("crash cashout %s outside [%s, %s]", p.Cashout, lowest, c.cfg.MaxCrashPoint)
	}
	return p, nil
}

func (c *Crash) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(CrashParams)
	if !ok {
		return Result{}, invalid("crash params have type %T", params)
	}

	point := c.CrashPoint(src.Next())
	out := CrashOutcome{CrashPoint: point, Cashout: p.Cashout}

	multiplier := decimal.Zero
	if p.Cashout != nil && p.Cashout.LessThan(point) {
		out.Won = true
		multiplier = *p.Cashout
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}

// CrashPoint maps one uniform value onto max(min, trunc2((1-edge)/(1-u))),
// capped at the configured maximum.
func (c *Crash) CrashPoint(u float64) decimal.Decimal {
	numerator := c.one.Sub(c.cfg.HouseEdge)
	denominator := c.one.Sub(decimal.NewFromFloat(u))
	point := truncDiv(numerator, denominator, crashPlaces)

	if point.LessThan(c.cfg.MinCrashPoint) {
		point = c.cfg.MinCrashPoint
	}
	if point.GreaterThan(c.cfg.MaxCrashPoint) {
		point = c.cfg.MaxCrashPoint
	}
	return point
}

// MultiplierAt is the live curve m(t) = e^(k*t) with t in milliseconds,
// truncated to two decimals.
func (c *Crash) MultiplierAt(elapsed time.Duration) decimal.Decimal {
	ms := float64(elapsed) / float64(time.Millisecond)
	m := math.Exp(c.cfg.GrowthRate * ms)
	if math.IsInf(m, 0) || m > c.cfg.MaxCrashPoint.InexactFloat64() {
		return c.cfg.MaxCrashPoint
	}
	return decimal.NewFromFloat(m).Truncate(crashPlaces)
}

// ElapsedAt is the inverse of the curve: how long after the start of a round
// the multiplier reaches point.
func (c *Crash) ElapsedAt(point decimal.Decimal) time.Duration {
	ms := math.Log(point.InexactFloat64()) / c.cfg.GrowthRate
	return time.Duration(ms * float64(time.Millisecond))
}

// IsLive reports whether raw params describe a live round.
func IsLive(raw json.RawMessage) bool {
	var p CrashParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	return p.Live
}

// WithCashout returns live crash params with the cash-out multiplier set.
func WithCashout(raw json.RawMessage, cashout decimal.Decimal) (json.RawMessage, error) {
	var p CrashParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	p.Live = true
	p.Cashout = &cashout
	return json.Marshal(p)
}
