package games

import (
	"encoding/json"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

type CupParams struct {
	Cup        int    `json:"cup"`
	Difficulty string `json:"difficulty"`
}

// CupOutcome carries only the true ball position. Shuffle animations are
// derived by the client and never feed back into settlement.
type CupOutcome struct {
	Ball int  `json:"ball"`
	Cup  int  `json:"cup"`
	Won  bool `json:"won"`
}

type Cups struct {
	cfg config.CupsConfig
}

func NewCups(cfg config.CupsConfig) *Cups {
	return &Cups{cfg: cfg}
}

func (c *Cups) Type() models.GameType { return models.GameTypeCupGame }

func (c *Cups) Decode(raw json.RawMessage) (Params, error) {
	var p CupParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Cup < 0 || p.Cup >= c.cfg.Cups {
		return nil, invalid("cup must be in 0..%d, got %d", c.cfg.Cups-1, p.Cup)
	}
	if _, ok := c.cfg.Multipliers[p.Difficulty]; !ok {
		return nil, invalid("unknown cup difficulty %q", p.Difficulty)
	}
	return p, nil
}

func (c *Cups) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(CupParams)
	if !ok {
		return Result{}, invalid("cup params have type %T", params)
	}

	ball := uniformIndex(src.Next(), c.cfg.Cups)
	out := CupOutcome{Ball: ball, Cup: p.Cup, Won: ball == p.Cup}

	multiplier := decimal.Zero
	if out.Won {
		multiplier = c.cfg.Multipliers[p.Difficulty]
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}
