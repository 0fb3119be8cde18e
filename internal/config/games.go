package config

import (
	_ "embed"
	"fmt"
	"os"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed games.yaml
var defaultGamesYAML []byte

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Lets numeric tags such as gte/lt apply to decimal fields.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// GameTables carries every house edge, paytable and limit the resolvers and
// the payout calculator read.
type GameTables struct {
	Payout PayoutConfig `yaml:"payout"`
	Crash  CrashConfig  `yaml:"crash"`
	Keno   KenoConfig   `yaml:"keno"`
	Mines  MinesConfig  `yaml:"mines"`
	Tower  TowerConfig  `yaml:"tower"`
	Cups   CupsConfig   `yaml:"cups"`
	Slots  SlotsConfig  `yaml:"slots"`
	Dice   DiceConfig   `yaml:"dice"`
}

type PayoutConfig struct {
	// Decimal places per currency; payouts are rounded down to this.
	Precision map[string]int32           `yaml:"precision" validate:"required,min=1,dive,gte=0,lte=18"`
	// Largest payout per currency; every currency in Precision needs one.
	MaxPayout map[string]decimal.Decimal `yaml:"max_payout" validate:"required,dive,gt=0"`
}

type CrashConfig struct {
	HouseEdge     decimal.Decimal `yaml:"house_edge" validate:"gte=0,lt=1"`
	MinCrashPoint decimal.Decimal `yaml:"min_crash_point" validate:"gte=1"`
	MaxCrashPoint decimal.Decimal `yaml:"max_crash_point" validate:"gt=1"`
	// Growth rate k of m(t) = e^(k*t), t in milliseconds.
	GrowthRate float64 `yaml:"growth_rate" validate:"gt=0"`
}

type KenoConfig struct {
	TotalNumbers int `yaml:"total_numbers" validate:"gte=10"`
	Drawn        int `yaml:"drawn" validate:"gte=1,ltfield=TotalNumbers"`
	MaxPicks     int `yaml:"max_picks" validate:"gte=1"`
	// Tables[risk][picks][matches]
	Tables map[string]map[int][]decimal.Decimal `yaml:"tables" validate:"required,min=1"`
}

type MinesConfig struct {
	TotalCells int `yaml:"total_cells" validate:"gte=2"`
	// Decimal places the compounded multiplier is truncated to.
	Precision int32 `yaml:"precision" validate:"gte=0,lte=8"`
	MaxDraws  int   `yaml:"max_draws" validate:"gte=1"`
}

type TowerConfig struct {
	Levels     int             `yaml:"levels" validate:"gte=1"`
	MinColumns int             `yaml:"min_columns" validate:"gte=2"`
	MaxColumns int             `yaml:"max_columns" validate:"gtefield=MinColumns"`
	BaseTrap   float64         `yaml:"base_trap" validate:"gte=0,lt=1"`
	Increment  float64         `yaml:"increment" validate:"gte=0"`
	MaxTrap    float64         `yaml:"max_trap" validate:"gtefield=BaseTrap,lt=1"`
	Step       decimal.Decimal `yaml:"step" validate:"gt=0"`
}

type CupsConfig struct {
	Cups        int                        `yaml:"cups" validate:"gte=2"`
	Multipliers map[string]decimal.Decimal `yaml:"multipliers" validate:"required,min=1,dive,gt=0"`
}

type SlotsConfig struct {
	Reels int `yaml:"reels" validate:"gte=2"`
	// Checked in this order; the first matching rule pays.
	Rules []SlotRule `yaml:"rules" validate:"required,min=1,dive"`
}

type SlotRule struct {
	Name       string          `yaml:"name" validate:"required,oneof=triple_seven triple run pair"`
	Multiplier decimal.Decimal `yaml:"multiplier" validate:"gt=0"`
}

type DiceConfig struct {
	HouseEdge decimal.Decimal `yaml:"house_edge" validate:"gte=0,lt=1"`
	MinWidth  decimal.Decimal `yaml:"min_width" validate:"gt=0"`
	MaxWidth  decimal.Decimal `yaml:"max_width" validate:"lte=100"`
}

// LoadGameTables reads path, or the embedded defaults when path is empty.
func LoadGameTables(path string) (*GameTables, error) {
	data := defaultGamesYAML
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read games config: %w", err)
		}
	}
	return ParseGameTables(data)
}

// DefaultGameTables returns the embedded tables. It panics if they are broken,
// which only a bad build can cause.
func DefaultGameTables() *GameTables {
	t, err := ParseGameTables(defaultGamesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded games.yaml: %v", err))
	}
	return t
}

func ParseGameTables(data []byte) (*GameTables, error) {
	var t GameTables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse games config: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *GameTables) applyDefaults() {
	if t.Keno.TotalNumbers == 0 {
		t.Keno.TotalNumbers = 40
	}
	if t.Keno.Drawn == 0 {
		t.Keno.Drawn = 10
	}
	if t.Keno.MaxPicks == 0 {
		t.Keno.MaxPicks = 10
	}
	if t.Mines.TotalCells == 0 {
		t.Mines.TotalCells = 25
	}
	if t.Mines.Precision == 0 {
		t.Mines.Precision = 4
	}
	if t.Mines.MaxDraws == 0 {
		t.Mines.MaxDraws = 1000
	}
	if t.Tower.Levels == 0 {
		t.Tower.Levels = 8
	}
	if t.Tower.MinColumns == 0 {
		t.Tower.MinColumns = 2
	}
	if t.Tower.MaxColumns == 0 {
		t.Tower.MaxColumns = 4
	}
	if t.Cups.Cups == 0 {
		t.Cups.Cups = 3
	}
	if t.Slots.Reels == 0 {
		t.Slots.Reels = 3
	}
	if t.Crash.MinCrashPoint.IsZero() {
		t.Crash.MinCrashPoint = decimal.RequireFromString("1.01")
	}
}

// Validate checks struct constraints and the shape of every paytable.
func (t *GameTables) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("games config validation failed: %w", err)
	}

	for currency := range t.Payout.Precision {
		if _, ok := t.Payout.MaxPayout[currency]; !ok {
			return fmt.Errorf("payout max_payout: missing cap for %s", currency)
		}
	}

	if t.Keno.MaxPicks > t.Keno.Drawn {
		return fmt.Errorf("keno max_picks %d exceeds drawn %d", t.Keno.MaxPicks, t.Keno.Drawn)
	}
	for risk, byPicks := range t.Keno.Tables {
		for picks := 1; picks <= t.Keno.MaxPicks; picks++ {
			row, ok := byPicks[picks]
			if !ok {
				return fmt.Errorf("keno table %s: missing row for %d picks", risk, picks)
			}
			if len(row) != picks+1 {
				return fmt.Errorf("keno table %s: row %d has %d entries, want %d", risk, picks, len(row), picks+1)
			}
			for _, m := range row {
				if m.IsNegative() {
					return fmt.Errorf("keno table %s: negative multiplier in row %d", risk, picks)
				}
			}
		}
	}

	if !t.Crash.MaxCrashPoint.GreaterThan(t.Crash.MinCrashPoint) {
		return fmt.Errorf("crash max_crash_point must exceed min_crash_point")
	}
	if t.Dice.MinWidth.GreaterThan(t.Dice.MaxWidth) {
		return fmt.Errorf("dice min_width exceeds max_width")
	}
	return nil
}
