package games

import (
	"encoding/json"
	"sort"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

type MinesParams struct {
	Outs  int   `json:"outs"`
	Picks []int `json:"picks"`
}

type MinesOutcome struct {
	Outs     []int `json:"outs"`
	Revealed []int `json:"revealed"`
	Safe     int   `json:"safe"`
	Caught   bool  `json:"caught"`
}

// Mines is the cricket mines board: outs hidden among TotalCells cells.
type Mines struct {
	cfg config.MinesConfig
}

func NewMines(cfg config.MinesConfig) *Mines {
	return &Mines{cfg: cfg}
}

func (m *Mines) Type() models.GameType { return models.GameTypeCricketMines }

func (m *Mines) Decode(raw json.RawMessage) (Params, error) {
	var p MinesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Outs < 1 || p.Outs >= m.cfg.TotalCells {
		return nil, invalid("outs must be in 1..%d, got %d", m.cfg.TotalCells-1, p.Outs)
	}
	maxPicks := m.cfg.TotalCells - p.Outs
	if len(p.Picks) < 1 || len(p.Picks) > maxPicks {
		return nil, invalid("mines needs 1 to %d picks, got %d", maxPicks, len(p.Picks))
	}
	if !distinctInRange(p.Picks, 0, m.cfg.TotalCells-1) {
		return nil, invalid("mines picks must be distinct cells in 0..%d", m.cfg.TotalCells-1)
	}
	return p, nil
}

func (m *Mines) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(MinesParams)
	if !ok {
		return Result{}, invalid("mines params have type %T", params)
	}

	outs, err := m.PlaceOuts(src, p.Outs)
	if err != nil {
		return Result{}, err
	}
	isOut := make(map[int]bool, len(outs))
	for _, c := range outs {
		isOut[c] = true
	}

	out := MinesOutcome{Outs: outs, Revealed: make([]int, 0, len(p.Picks))}
	for _, cell := range p.Picks {
		out.Revealed = append(out.Revealed, cell)
		if isOut[cell] {
			out.Caught = true
			break
		}
		out.Safe++
	}

	multiplier := decimal.Zero
	if !out.Caught {
		multiplier = m.CalculateMultiplier(out.Safe, p.Outs)
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}

// PlaceOuts draws distinct cells by rejection sampling floor(u * cells). The
// returned slice is sorted; draw order does not matter to the board.
func (m *Mines) PlaceOuts(src fairness.Source, count int) ([]int, error) {
	placed := make(map[int]struct{}, count)
	outs := make([]int, 0, count)
	for draws := 0; len(outs) < count; draws++ {
		if draws >= m.cfg.MaxDraws {
			return nil, malformed("placed %d of %d outs in %d draws", len(outs), count, draws)
		}
		cell := uniformIndex(src.Next(), m.cfg.TotalCells)
		if _, dup := placed[cell]; dup {
			continue
		}
		placed[cell] = struct{}{}
		outs = append(outs, cell)
	}
	sort.Ints(outs)
	return outs, nil
}

// CalculateMultiplier compounds the survival odds of safe reveals:
// prod_{i<safe} (cells - i) / (cells - outs - i), truncated to the configured
// precision.
func (m *Mines) CalculateMultiplier(safe, outs int) decimal.Decimal {
	if safe <= 0 {
		return decimal.NewFromInt(1)
	}
	if outs <= 0 || safe > m.cfg.TotalCells-outs {
		return decimal.Zero
	}
	num := decimal.NewFromInt(1)
	den := decimal.NewFromInt(1)
	for i := 0; i < safe; i++ {
		num = num.Mul(decimal.NewFromInt(int64(m.cfg.TotalCells - i)))
		den = den.Mul(decimal.NewFromInt(int64(m.cfg.TotalCells - outs - i)))
	}
	return truncDiv(num, den, m.cfg.Precision)
}
