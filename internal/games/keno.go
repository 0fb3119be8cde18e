package games

import (
	"encoding/json"
	"sort"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

type KenoParams struct {
	Picks []int  `json:"picks"`
	Risk  string `json:"risk"`
}

type KenoOutcome struct {
	Drawn   []int  `json:"drawn"`
	Hits    []int  `json:"hits"`
	Risk    string `json:"risk"`
	Matches int    `json:"matches"`
}

type Keno struct {
	cfg config.KenoConfig
}

func NewKeno(cfg config.KenoConfig) *Keno {
	return &Keno{cfg: cfg}
}

func (k *Keno) Type() models.GameType { return models.GameTypeKeno }

func (k *Keno) Decode(raw json.RawMessage) (Params, error) {
	var p KenoParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Picks) < 1 || len(p.Picks) > k.cfg.MaxPicks {
		return nil, invalid("keno needs 1 to %d picks, got %d", k.cfg.MaxPicks, len(p.Picks))
	}
	if !distinctInRange(p.Picks, 1, k.cfg.TotalNumbers) {
		return nil, invalid("keno picks must be distinct numbers in 1..%d", k.cfg.TotalNumbers)
	}
	if _, ok := k.cfg.Tables[p.Risk]; !ok {
		return nil, invalid("unknown keno risk %q", p.Risk)
	}
	return p, nil
}

func (k *Keno) Resolve(src fairness.Source, params Params) (Result, error) {
	p, ok := params.(KenoParams)
	if !ok {
		return Result{}, invalid("keno params have type %T", params)
	}

	drawn := k.Draw(src)

	picked := make(map[int]struct{}, len(p.Picks))
	for _, n := range p.Picks {
		picked[n] = struct{}{}
	}
	hits := make([]int, 0, len(p.Picks))
	for _, n := range drawn {
		if _, ok := picked[n]; ok {
			hits = append(hits, n)
		}
	}
	sort.Ints(hits)

	return Result{
		Outcome: KenoOutcome{
			Drawn:   drawn,
			Hits:    hits,
			Risk:    p.Risk,
			Matches: len(hits),
		},
		Multiplier: k.Multiplier(p.Risk, len(p.Picks), len(hits)),
	}, nil
}

// Draw performs a partial Fisher-Yates shuffle over 1..TotalNumbers, one
// uniform per drawn position: j = i + floor(u * (total - i)).
func (k *Keno) Draw(src fairness.Source) []int {
	pool := make([]int, k.cfg.TotalNumbers)
	for i := range pool {
		pool[i] = i + 1
	}
	for i := 0; i < k.cfg.Drawn; i++ {
		j := i + uniformIndex(src.Next(), k.cfg.TotalNumbers-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	drawn := make([]int, k.cfg.Drawn)
	copy(drawn, pool[:k.cfg.Drawn])
	return drawn
}

// Multiplier looks up table[risk][picks][matches]; combinations outside the
// table pay nothing.
func (k *Keno) Multiplier(risk string, picks, matches int) decimal.Decimal {
	row, ok := k.cfg.Tables[risk][picks]
	if !ok || matches < 0 || matches >= len(row) {
		return decimal.Zero
	}
	return row[matches]
}
