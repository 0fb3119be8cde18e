package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"casino-engine/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGameTables(t *testing.T) {
	tables, err := config.LoadGameTables("")
	require.NoError(t, err)

	assert.Equal(t, int32(2), tables.Payout.Precision["USD"])
	assert.Equal(t, 40, tables.Keno.TotalNumbers)
	assert.Equal(t, 10, tables.Keno.Drawn)
	assert.True(t, decimal.RequireFromString("8.5").Equal(tables.Keno.Tables["medium"][3][2]))
	assert.Equal(t, 25, tables.Mines.TotalCells)
	assert.Len(t, tables.Slots.Rules, 4)
	assert.Equal(t, "triple_seven", tables.Slots.Rules[0].Name)
	assert.True(t, tables.Crash.MinCrashPoint.Equal(decimal.RequireFromString("1.01")))
}

func TestGameTablesDefaultsApplied(t *testing.T) {
	yml := `
payout:
  precision: {USD: 2}
  max_payout: {USD: 1000}
crash:
  house_edge: 0.05
  max_crash_point: 100
  growth_rate: 0.0001
keno:
  max_picks: 1
  tables:
    low:
      1: [0, 3]
tower:
  base_trap: 0.1
  increment: 0.1
  max_trap: 0.5
  step: 0.5
cups:
  multipliers: {easy: 2}
slots:
  rules:
    - {name: pair, multiplier: 2}
dice:
  house_edge: 0.01
  min_width: 1
  max_width: 90
`
	tables, err := config.ParseGameTables([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, 40, tables.Keno.TotalNumbers)
	assert.Equal(t, 1000, tables.Mines.MaxDraws)
	assert.Equal(t, int32(4), tables.Mines.Precision)
	assert.Equal(t, 8, tables.Tower.Levels)
	assert.Equal(t, 3, tables.Cups.Cups)
}

func TestGameTablesValidation(t *testing.T) {
	base := config.DefaultGameTables()

	t.Run("short keno row", func(t *testing.T) {
		tables := *base
		tables.Keno.Tables = map[string]map[int][]decimal.Decimal{
			"low": {1: {decimal.Zero}},
		}
		tables.Keno.MaxPicks = 1
		assert.Error(t, tables.Validate())
	})

	t.Run("edge out of range", func(t *testing.T) {
		tables := *base
		tables.Crash.HouseEdge = decimal.NewFromInt(1)
		assert.Error(t, tables.Validate())
	})

	t.Run("unknown slot rule", func(t *testing.T) {
		tables := *base
		tables.Slots.Rules = []config.SlotRule{{Name: "jackpot", Multiplier: decimal.NewFromInt(5)}}
		assert.Error(t, tables.Validate())
	})

	t.Run("currency without cap", func(t *testing.T) {
		tables := *base
		tables.Payout.MaxPayout = map[string]decimal.Decimal{"USD": decimal.NewFromInt(1000)}
		assert.ErrorContains(t, tables.Validate(), "missing cap")
	})

	t.Run("non-positive cap", func(t *testing.T) {
		tables := *base
		caps := make(map[string]decimal.Decimal, len(base.Payout.MaxPayout))
		for currency, limit := range base.Payout.MaxPayout {
			caps[currency] = limit
		}
		caps["BTC"] = decimal.Zero
		tables.Payout.MaxPayout = caps
		assert.Error(t, tables.Validate())
	})

	t.Run("dice widths inverted", func(t *testing.T) {
		tables := *base
		tables.Dice.MinWidth = decimal.NewFromInt(50)
		tables.Dice.MaxWidth = decimal.NewFromInt(10)
		assert.Error(t, tables.Validate())
	})
}

func TestLoadGameTablesFromFile(t *testing.T) {
	_, err := config.LoadGameTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payout: ["), 0o600))
	_, err = config.LoadGameTables(path)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("ENV", "test")
	t.Setenv("STARTING_BALANCE", "250.50")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("MAX_NONCE", "1000")
	t.Setenv("DEFAULT_CURRENCY", "usd")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.True(t, cfg.StartingBalance.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, uint64(1000), cfg.MaxNonce)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.NotNil(t, cfg.Games)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ENV", "test")

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("STORE", "cassandra")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("STORE", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("STORE", "memory")
		t.Setenv("STORE_TIMEOUT", "soon")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("nonce beyond bigint", func(t *testing.T) {
		t.Setenv("STORE", "memory")
		t.Setenv("MAX_NONCE", "9223372036854775808")
		_, err := config.Load()
		assert.ErrorContains(t, err, "MAX_NONCE")
	})

	t.Run("nonce at bigint max", func(t *testing.T) {
		t.Setenv("STORE", "memory")
		t.Setenv("MAX_NONCE", "9223372036854775807")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, uint64(9223372036854775807), cfg.MaxNonce)
	})

	t.Run("production without secret", func(t *testing.T) {
		t.Setenv("STORE", "memory")
		t.Setenv("ENV", "production")
		t.Setenv("JWT_SECRET", "")
		_, err := config.Load()
		assert.Error(t, err)
	})
}
