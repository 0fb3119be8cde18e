package games

import (
	"encoding/json"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

const (
	RuleTripleSeven = "triple_seven"
	RuleTriple      = "triple"
	RuleRun         = "run"
	RulePair        = "pair"
)

type SlotsParams struct{}

type SlotsOutcome struct {
	Reels []int  `json:"reels"`
	Rule  string `json:"rule,omitempty"`
}

type Slots struct {
	cfg config.SlotsConfig
}

func NewSlots(cfg config.SlotsConfig) *Slots {
	return &Slots{cfg: cfg}
}

func (s *Slots) Type() models.GameType { return models.GameTypeSlots }

func (s *Slots) Decode(raw json.RawMessage) (Params, error) {
	var p SlotsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Slots) Resolve(src fairness.Source, params Params) (Result, error) {
	if _, ok := params.(SlotsParams); !ok {
		return Result{}, invalid("slots params have type %T", params)
	}

	reels := make([]int, s.cfg.Reels)
	for i := range reels {
		reels[i] = uniformIndex(src.Next(), 10)
	}

	out := SlotsOutcome{Reels: reels}
	multiplier := decimal.Zero
	for _, rule := range s.cfg.Rules {
		if matchRule(rule.Name, reels) {
			out.Rule = rule.Name
			multiplier = rule.Multiplier
			break
		}
	}
	return Result{Outcome: out, Multiplier: multiplier}, nil
}

func matchRule(name string, reels []int) bool {
	switch name {
	case RuleTripleSeven:
		return allEqual(reels) && reels[0] == 7
	case RuleTriple:
		return allEqual(reels)
	case RuleRun:
		for i := 1; i < len(reels); i++ {
			if reels[i] != reels[i-1]+1 {
				return false
			}
		}
		return true
	case RulePair:
		seen := make(map[int]bool, len(reels))
		for _, d := range reels {
			if seen[d] {
				return true
			}
			seen[d] = true
		}
		return false
	}
	return false
}

func allEqual(reels []int) bool {
	for _, d := range reels[1:] {
		if d != reels[0] {
			return false
		}
	}
	return true
}
