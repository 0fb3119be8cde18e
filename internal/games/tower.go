package games

import (
	"encoding/json"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

type TowerParams struct {
	Columns int   `json:"columns"`
	Picks   []int `json:"picks"`
	Double  bool  `json:"double,omitempty"`
}

type TowerOutcome struct {
	// Traps[level][column] is true where the column is a trap.
	Traps   [][]bool `json:"traps"`
	Cleared int      `json:"cleared"`
	Caught  bool     `json:"caught"`
	Double  bool     `json:"double,omitempty"`
}

// LayoutFunc builds the trap grid for a round.
type LayoutFunc func(src fairness.Source, levels, columns int) [][]bool

type Tower struct {
	cfg    config.TowerConfig
	layout LayoutFunc
}

func NewTower(cfg config.TowerConfig) *Tower {
	t := &Tower{cfg: cfg}
	t.layout = t.Layout
	return t
}

// NewTowerWithLayout replaces trap placement. Replay tooling and fault tests
// use it; production uses NewTower.
func NewTowerWithLayout(cfg config.TowerConfig, layout LayoutFunc) *Tower {
	return &Tower{cfg: cfg, layout: layout}
}

func (t *Tower) Type() models.GameType { return models.GameTypeTowerClimb }

func (t *Tower) Decode(raw json.RawMessage) (Params, error) {
	var p TowerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Columns < t.cfg.MinColumns || p.Columns > t.cfg.MaxColumns {
		return nil, invalid("tower columns must be in %d..%d, got %d", t.cfg.MinColumns, t.cfg.MaxColumns, p.Columns)
	}
	if len(p.Picks) < 1 || len(p.Picks) > t.cfg.Levels {
		return nil, invalid("tower needs 1 to %d picks, got %d", t.cfg.Levels, len(p.Picks))
	}
	for level, col := range p.Picks {
		if col < 0 || col >= p.Columns {
			return nil, invalid("tower pick %d at level %d outside 0..%d", col, level, p.Columns-1)
		}
	}
	return p, nil
}

func (t *Tower) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(TowerParams)
	if !ok {
		return Result{}, invalid("tower params have type %T", params)
	}

	traps := t.layout(src, t.cfg.Levels, p.Columns)
	if err := checkLayout(traps, t.cfg.Levels, p.Columns); err != nil {
		return Result{}, err
	}

	out := TowerOutcome{Traps: traps, Double: p.Double}
	for level, col := range p.Picks {
		if traps[level][col] {
			out.Caught = true
			break
		}
		out.Cleared++
	}

	multiplier := decimal.Zero
	if !out.Caught {
		multiplier = t.Multiplier(out.Cleared, p.Double)
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}

// TrapProbability rises linearly with the level and is clamped at MaxTrap.
func (t *Tower) TrapProbability(level int) float64 {
	p := t.cfg.BaseTrap + float64(level)*t.cfg.Increment
	if p > t.cfg.MaxTrap {
		p = t.cfg.MaxTrap
	}
	return p
}

// Layout draws one uniform per column per level, then one more uniform per
// level that picks a column forced safe.
func (t *Tower) Layout(src fairness.Source, levels, columns int) [][]bool {
	traps := make([][]bool, levels)
	for level := range traps {
		p := t.TrapProbability(level)
		row := make([]bool, columns)
		for c := range row {
			row[c] = src.Next() < p
		}
		row[uniformIndex(src.Next(), columns)] = false
		traps[level] = row
	}
	return traps
}

// Multiplier grows by Step per cleared level and doubles once when the
// double power-up is active.
func (t *Tower) Multiplier(cleared int, double bool) decimal.Decimal {
	m := decimal.NewFromInt(1).Add(t.cfg.Step.Mul(decimal.NewFromInt(int64(cleared))))
	if double {
		m = m.Mul(decimal.NewFromInt(2))
	}
	return m
}

func checkLayout(traps [][]bool, levels, columns int) error {
	if len(traps) != levels {
		return malformed("tower layout has %d levels, want %d", len(traps), levels)
	}
	for level, row := range traps {
		if len(row) != columns {
			return malformed("tower level %d has %d columns, want %d", level, len(row), columns)
		}
		safe := false
		for _, trap := range row {
			if !trap {
				safe = true
				break
			}
		}
		if !safe {
			return malformed("tower level %d has no safe column", level)
		}
	}
	return nil
}
