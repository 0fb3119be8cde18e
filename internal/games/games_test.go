package games_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/games"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverSeed = "3b2f0c8f4f0e7a1d9c6b5a4e3d2c1b0a99887766554433221100ffeeddccbbaa"
	clientSeed = "player-seed"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func registry(t *testing.T) *games.Registry {
	t.Helper()
	r, err := games.NewRegistry(config.DefaultGameTables())
	require.NoError(t, err)
	return r
}

func TestCrashPointScenario(t *testing.T) {
	cfg := config.DefaultGameTables().Crash
	cfg.HouseEdge = dec("0.05")
	crash := games.NewCrash(cfg)

	assert.True(t, dec("1.9").Equal(crash.CrashPoint(0.5)), crash.CrashPoint(0.5).String())
	assert.True(t, dec("1.01").Equal(crash.CrashPoint(0)), "floored at 1.01")
	assert.True(t, cfg.MaxCrashPoint.Equal(crash.CrashPoint(0.9999999999)), "capped")
}

func TestCrashResolve(t *testing.T) {
	cfg := config.DefaultGameTables().Crash
	cfg.HouseEdge = dec("0.05")
	r, err := games.NewRegistryFrom(append(otherResolvers(models.GameTypeCrash), games.NewCrash(cfg))...)
	require.NoError(t, err)

	ev, err := r.Evaluate(models.GameTypeCrash, fairness.NewFixed(0.5), json.RawMessage(`{"cashout":"1.50"}`))
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(ev.Multiplier))

	var out games.CrashOutcome
	require.NoError(t, json.Unmarshal(ev.Outcome, &out))
	assert.True(t, out.Won)
	assert.True(t, dec("1.9").Equal(out.CrashPoint))

	ev, err = r.Evaluate(models.GameTypeCrash, fairness.NewFixed(0.5), json.RawMessage(`{"cashout":"1.90"}`))
	require.NoError(t, err)
	assert.True(t, ev.Multiplier.IsZero(), "cash-out must be strictly below the crash point")

	ev, err = r.Evaluate(models.GameTypeCrash, fairness.NewFixed(0.5), json.RawMessage(`{"live":true}`))
	require.NoError(t, err)
	assert.True(t, ev.Multiplier.IsZero(), "live round without cash-out loses")
}

func TestCrashParams(t *testing.T) {
	r := registry(t)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"target", `{"cashout":2}`, true},
		{"live only", `{"live":true}`, true},
		{"live low cashout", `{"live":true,"cashout":"1.00"}`, true},
		{"missing cashout", `{}`, false},
		{"below minimum", `{"cashout":"1.00"}`, false},
		{"too precise", `{"cashout":"1.555"}`, false},
		{"unknown field", `{"cashout":2,"auto":true}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(models.GameTypeCrash, json.RawMessage(tt.input))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidParams)
			}
		})
	}
}

func TestCrashCurve(t *testing.T) {
	crash := games.NewCrash(config.DefaultGameTables().Crash)

	assert.True(t, dec("1").Equal(crash.MultiplierAt(0)))
	assert.True(t, crash.MultiplierAt(10*time.Second).GreaterThan(crash.MultiplierAt(5*time.Second)))

	elapsed := crash.ElapsedAt(dec("2"))
	m := crash.MultiplierAt(elapsed + time.Millisecond)
	assert.True(t, m.GreaterThanOrEqual(dec("2")), m.String())
}

func TestWithCashout(t *testing.T) {
	updated, err := games.WithCashout(json.RawMessage(`{"live":true}`), dec("1.37"))
	require.NoError(t, err)
	assert.True(t, games.IsLive(updated))

	var p games.CrashParams
	require.NoError(t, json.Unmarshal(updated, &p))
	require.NotNil(t, p.Cashout)
	assert.True(t, dec("1.37").Equal(*p.Cashout))

	assert.False(t, games.IsLive(json.RawMessage(`{"cashout":2}`)))
}

func TestKenoScenario(t *testing.T) {
	r := registry(t)

	// 3 then 7 are drawn first; the remaining draws take the front of the pool
	// and never reach 12.
	src := fairness.NewFixed(0.06, 0.141, 0, 0, 0, 0, 0, 0, 0, 0)
	params := raw(t, games.KenoParams{Picks: []int{3, 7, 12}, Risk: "medium"})

	ev, err := r.Evaluate(models.GameTypeKeno, src, params)
	require.NoError(t, err)

	var out games.KenoOutcome
	require.NoError(t, json.Unmarshal(ev.Outcome, &out))
	assert.Equal(t, []int{3, 7, 1, 4, 5, 6, 2, 8, 9, 10}, out.Drawn)
	assert.Equal(t, []int{3, 7}, out.Hits)
	assert.Equal(t, 2, out.Matches)
	assert.True(t, dec("8.5").Equal(ev.Multiplier), ev.Multiplier.String())
}

func TestKenoDrawDistinct(t *testing.T) {
	keno := games.NewKeno(config.DefaultGameTables().Keno)
	for nonce := uint64(0); nonce < 200; nonce++ {
		drawn := keno.Draw(fairness.NewStream(serverSeed, clientSeed, nonce))
		require.Len(t, drawn, 10)

		seen := map[int]bool{}
		for _, n := range drawn {
			assert.GreaterOrEqual(t, n, 1)
			assert.LessOrEqual(t, n, 40)
			assert.False(t, seen[n], "duplicate %d at nonce %d", n, nonce)
			seen[n] = true
		}
	}
}

func TestKenoParams(t *testing.T) {
	r := registry(t)
	bad := []string{
		`{"picks":[],"risk":"low"}`,
		`{"picks":[1,2,3,4,5,6,7,8,9,10,11],"risk":"low"}`,
		`{"picks":[1,1],"risk":"low"}`,
		`{"picks":[0],"risk":"low"}`,
		`{"picks":[41],"risk":"low"}`,
		`{"picks":[1],"risk":"extreme"}`,
	}
	for _, input := range bad {
		assert.ErrorIs(t, r.Validate(models.GameTypeKeno, json.RawMessage(input)), models.ErrInvalidParams, input)
	}

	keno := games.NewKeno(config.DefaultGameTables().Keno)
	assert.True(t, keno.Multiplier("medium", 3, 7).IsZero(), "out of table")
	assert.True(t, keno.Multiplier("nope", 3, 1).IsZero())
}

func TestMinesScenario(t *testing.T) {
	mines := games.NewMines(config.DefaultGameTables().Mines)

	assert.True(t, dec("5.0000").Equal(mines.CalculateMultiplier(1, 20)))
	assert.True(t, dec("1.2987").Equal(mines.CalculateMultiplier(2, 3)))
	assert.True(t, dec("1").Equal(mines.CalculateMultiplier(0, 3)))
}

func TestMinesResolve(t *testing.T) {
	r := registry(t)

	// Cell 0, a rejected repeat of cell 0, then cell 1.
	values := []float64{0.0, 0.0, 0.05}

	ev, err := r.Evaluate(models.GameTypeCricketMines, fairness.NewFixed(values...), raw(t, games.MinesParams{Outs: 2, Picks: []int{5, 6}}))
	require.NoError(t, err)

	var out games.MinesOutcome
	require.NoError(t, json.Unmarshal(ev.Outcome, &out))
	assert.Equal(t, []int{0, 1}, out.Outs)
	assert.Equal(t, 2, out.Safe)
	assert.False(t, out.Caught)
	assert.True(t, dec("1.1857").Equal(ev.Multiplier), ev.Multiplier.String())

	ev, err = r.Evaluate(models.GameTypeCricketMines, fairness.NewFixed(values...), raw(t, games.MinesParams{Outs: 2, Picks: []int{5, 1, 6}}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(ev.Outcome, &out))
	assert.True(t, out.Caught)
	assert.Equal(t, []int{5, 1}, out.Revealed)
	assert.True(t, ev.Multiplier.IsZero())
}

func TestMinesRejectionBounded(t *testing.T) {
	cfg := config.DefaultGameTables().Mines
	cfg.MaxDraws = 3
	mines := games.NewMines(cfg)

	_, err := mines.PlaceOuts(fairness.NewFixed(0, 0, 0), 2)
	assert.ErrorIs(t, err, models.ErrMalformedOutcome)
}

func TestMinesParams(t *testing.T) {
	r := registry(t)
	bad := []string{
		`{"outs":0,"picks":[1]}`,
		`{"outs":25,"picks":[1]}`,
		`{"outs":24,"picks":[1,2]}`,
		`{"outs":3,"picks":[]}`,
		`{"outs":3,"picks":[25]}`,
		`{"outs":3,"picks":[4,4]}`,
	}
	for _, input := range bad {
		assert.ErrorIs(t, r.Validate(models.GameTypeCricketMines, json.RawMessage(input)), models.ErrInvalidParams, input)
	}
}

func towerConfig() config.TowerConfig {
	cfg := config.DefaultGameTables().Tower
	cfg.Levels = 3
	cfg.BaseTrap = 0.2
	cfg.Increment = 0.1
	cfg.MaxTrap = 0.5
	cfg.Step = dec("0.35")
	return cfg
}

func TestTowerResolve(t *testing.T) {
	tower := games.NewTower(towerConfig())

	// Per level: one value per column, then the forced-safe column.
	values := []float64{
		0.1, 0.9, 0.9, // level 0, p=0.2: trap, safe, force col 1
		0.5, 0.1, 0.0, // level 1, p=0.3: safe, trap, force col 0
		0.1, 0.2, 0.6, // level 2, p=0.4: trap, trap, force col 1
	}

	p, err := tower.Decode(raw(t, games.TowerParams{Columns: 2, Picks: []int{1, 0, 1}}))
	require.NoError(t, err)
	res, err := tower.Resolve(fairness.NewFixed(values...), p)
	require.NoError(t, err)

	out := res.Outcome.(games.TowerOutcome)
	assert.Equal(t, [][]bool{{true, false}, {false, true}, {true, false}}, out.Traps)
	assert.Equal(t, 3, out.Cleared)
	assert.True(t, dec("2.05").Equal(res.Multiplier), res.Multiplier.String())

	p, err = tower.Decode(raw(t, games.TowerParams{Columns: 2, Picks: []int{1, 0, 1}, Double: true}))
	require.NoError(t, err)
	res, err = tower.Resolve(fairness.NewFixed(values...), p)
	require.NoError(t, err)
	assert.True(t, dec("4.1").Equal(res.Multiplier), res.Multiplier.String())

	p, err = tower.Decode(raw(t, games.TowerParams{Columns: 2, Picks: []int{0}}))
	require.NoError(t, err)
	res, err = tower.Resolve(fairness.NewFixed(values...), p)
	require.NoError(t, err)
	assert.True(t, res.Outcome.(games.TowerOutcome).Caught)
	assert.True(t, res.Multiplier.IsZero())
}

func TestTowerAlwaysHasSafeColumn(t *testing.T) {
	cfg := config.DefaultGameTables().Tower
	cfg.BaseTrap = 0.9
	cfg.MaxTrap = 0.99
	tower := games.NewTower(cfg)

	for nonce := uint64(0); nonce < 100; nonce++ {
		traps := tower.Layout(fairness.NewStream(serverSeed, clientSeed, nonce), cfg.Levels, 4)
		for level, row := range traps {
			assert.Contains(t, row, false, "level %d at nonce %d", level, nonce)
		}
	}
}

func TestTowerMalformedLayout(t *testing.T) {
	allTraps := func(_ fairness.Source, levels, columns int) [][]bool {
		traps := make([][]bool, levels)
		for i := range traps {
			traps[i] = make([]bool, columns)
			for c := range traps[i] {
				traps[i][c] = true
			}
		}
		return traps
	}

	r, err := games.NewRegistryFrom(append(
		otherResolvers(models.GameTypeTowerClimb),
		games.NewTowerWithLayout(towerConfig(), allTraps),
	)...)
	require.NoError(t, err)

	_, err = r.Evaluate(models.GameTypeTowerClimb, fairness.NewFixed(), raw(t, games.TowerParams{Columns: 3, Picks: []int{0}}))
	assert.ErrorIs(t, err, models.ErrMalformedOutcome)
}

func TestTrapProbabilityClamped(t *testing.T) {
	tower := games.NewTower(towerConfig())
	assert.InDelta(t, 0.2, tower.TrapProbability(0), 1e-9)
	assert.InDelta(t, 0.4, tower.TrapProbability(2), 1e-9)
	assert.InDelta(t, 0.5, tower.TrapProbability(7), 1e-9)
}

func TestCups(t *testing.T) {
	r := registry(t)

	ev, err := r.Evaluate(models.GameTypeCupGame, fairness.NewFixed(0.5), raw(t, games.CupParams{Cup: 1, Difficulty: "medium"}))
	require.NoError(t, err)
	assert.True(t, dec("2.85").Equal(ev.Multiplier))

	ev, err = r.Evaluate(models.GameTypeCupGame, fairness.NewFixed(0.5), raw(t, games.CupParams{Cup: 2, Difficulty: "hard"}))
	require.NoError(t, err)
	assert.True(t, ev.Multiplier.IsZero())

	assert.ErrorIs(t, r.Validate(models.GameTypeCupGame, json.RawMessage(`{"cup":3,"difficulty":"easy"}`)), models.ErrInvalidParams)
	assert.ErrorIs(t, r.Validate(models.GameTypeCupGame, json.RawMessage(`{"cup":0,"difficulty":"insane"}`)), models.ErrInvalidParams)
}

func TestSlotsRules(t *testing.T) {
	r := registry(t)

	tests := []struct {
		values []float64
		reels  []int
		rule   string
		mult   string
	}{
		{[]float64{0.75, 0.75, 0.75}, []int{7, 7, 7}, games.RuleTripleSeven, "100"},
		{[]float64{0.35, 0.31, 0.32}, []int{3, 3, 3}, games.RuleTriple, "25"},
		{[]float64{0.15, 0.25, 0.35}, []int{1, 2, 3}, games.RuleRun, "10"},
		{[]float64{0.5, 0.55, 0.95}, []int{5, 5, 9}, games.RulePair, "2"},
		{[]float64{0.95, 0.15, 0.55}, []int{9, 1, 5}, "", "0"},
		{[]float64{0.35, 0.25, 0.15}, []int{3, 2, 1}, "", "0"},
	}

	for _, tt := range tests {
		ev, err := r.Evaluate(models.GameTypeSlots, fairness.NewFixed(tt.values...), nil)
		require.NoError(t, err)

		var out games.SlotsOutcome
		require.NoError(t, json.Unmarshal(ev.Outcome, &out))
		assert.Equal(t, tt.reels, out.Reels)
		assert.Equal(t, tt.rule, out.Rule)
		assert.True(t, dec(tt.mult).Equal(ev.Multiplier), "%v: %s", tt.reels, ev.Multiplier)
	}
}

func TestDice(t *testing.T) {
	r := registry(t)

	ev, err := r.Evaluate(models.GameTypeDiceRange, fairness.NewFixed(0.5), json.RawMessage(`{"low":"25.00","high":"75.00"}`))
	require.NoError(t, err)
	assert.True(t, dec("1.98").Equal(ev.Multiplier), ev.Multiplier.String())

	var out games.DiceOutcome
	require.NoError(t, json.Unmarshal(ev.Outcome, &out))
	assert.True(t, dec("50").Equal(out.Roll))
	assert.True(t, out.Won)

	// high bound is exclusive
	ev, err = r.Evaluate(models.GameTypeDiceRange, fairness.NewFixed(0.5), json.RawMessage(`{"low":10,"high":50}`))
	require.NoError(t, err)
	assert.True(t, ev.Multiplier.IsZero())

	dice := games.NewDice(config.DefaultGameTables().Dice)
	assert.True(t, dec("99.99").Equal(dice.Roll(0.99999999)))
	assert.True(t, dec("0").Equal(dice.Roll(0)))
	assert.True(t, dec("3.3").Equal(dice.Multiplier(dec("0"), dec("30"))))
}

func TestDiceParams(t *testing.T) {
	r := registry(t)
	bad := []string{
		`{"low":60,"high":40}`,
		`{"low":40,"high":40}`,
		`{"low":"10.005","high":40}`,
		`{"low":-1,"high":40}`,
		`{"low":0,"high":100.5}`,
		`{"low":0,"high":99}`,
		`{"low":10,"high":10.5}`,
	}
	for _, input := range bad {
		assert.ErrorIs(t, r.Validate(models.GameTypeDiceRange, json.RawMessage(input)), models.ErrInvalidParams, input)
	}
}

// Every game, every nonce: the same triple always gives the same bytes.
func TestDeterminism(t *testing.T) {
	r := registry(t)
	params := map[models.GameType]json.RawMessage{
		models.GameTypeCrash:        json.RawMessage(`{"cashout":"2.00"}`),
		models.GameTypeKeno:         json.RawMessage(`{"picks":[1,5,9,13,40],"risk":"high"}`),
		models.GameTypeCricketMines: json.RawMessage(`{"outs":5,"picks":[0,1,2,3]}`),
		models.GameTypeTowerClimb:   json.RawMessage(`{"columns":3,"picks":[0,1,2,0,1]}`),
		models.GameTypeCupGame:      json.RawMessage(`{"cup":2,"difficulty":"easy"}`),
		models.GameTypeSlots:        json.RawMessage(`{}`),
		models.GameTypeDiceRange:    json.RawMessage(`{"low":"12.34","high":"56.78"}`),
	}
	require.Len(t, params, len(models.AllGameTypes))

	for g, p := range params {
		for nonce := uint64(0); nonce < 50; nonce++ {
			a, err := r.Replay(g, serverSeed, clientSeed, nonce, p)
			require.NoError(t, err, g)
			b, err := r.Replay(g, serverSeed, clientSeed, nonce, p)
			require.NoError(t, err, g)

			assert.Equal(t, string(a.Outcome), string(b.Outcome), "%s nonce %d", g, nonce)
			assert.True(t, a.Multiplier.Equal(b.Multiplier))
			assert.False(t, a.Multiplier.IsNegative())
		}
	}
}

type countingSource struct {
	n int
}

func (c *countingSource) Next() float64 {
	c.n++
	return 0.5
}

func TestInvalidParamsDrawNothing(t *testing.T) {
	r := registry(t)
	src := &countingSource{}

	_, err := r.Evaluate(models.GameTypeKeno, src, json.RawMessage(`{"picks":[],"risk":"low"}`))
	assert.ErrorIs(t, err, models.ErrInvalidParams)
	_, err = r.Evaluate(models.GameTypeDiceRange, src, json.RawMessage(`{"low":80,"high":20}`))
	assert.ErrorIs(t, err, models.ErrInvalidParams)
	_, err = r.Evaluate(models.GameType("roulette"), src, nil)
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	assert.Zero(t, src.n)
}

type panickingSlots struct {
	*games.Slots
}

func (panickingSlots) Resolve(fairness.Source, games.Params) (games.Result, error) {
	panic("reel index out of range")
}

type failingSlots struct {
	*games.Slots
}

func (failingSlots) Resolve(fairness.Source, games.Params) (games.Result, error) {
	return games.Result{}, errors.New("symbol table missing")
}

func TestEvaluateFaultsAreMalformed(t *testing.T) {
	slots := games.NewSlots(config.DefaultGameTables().Slots)

	for _, bad := range []games.Resolver{panickingSlots{slots}, failingSlots{slots}} {
		r, err := games.NewRegistryFrom(append(otherResolvers(models.GameTypeSlots), bad)...)
		require.NoError(t, err)

		_, err = r.Evaluate(models.GameTypeSlots, fairness.NewFixed(0.1), nil)
		assert.ErrorIs(t, err, models.ErrMalformedOutcome)
	}
}

func TestRegistryIsClosed(t *testing.T) {
	_, err := games.NewRegistryFrom(otherResolvers(models.GameTypeDiceRange)...)
	assert.Error(t, err, "missing dice resolver")

	all := games.DefaultResolvers(config.DefaultGameTables())
	_, err = games.NewRegistryFrom(append(all, all[0])...)
	assert.Error(t, err, "duplicate resolver")

	_, err = games.NewRegistryFrom(all...)
	assert.NoError(t, err)
}

// otherResolvers returns the default resolvers minus the one for skip.
func otherResolvers(skip models.GameType) []games.Resolver {
	var out []games.Resolver
	for _, res := range games.DefaultResolvers(config.DefaultGameTables()) {
		if res.Type() != skip {
			out = append(out, res)
		}
	}
	return out
}

func TestRegistryVerify(t *testing.T) {
	r := registry(t)
	params := json.RawMessage(`{"picks":[1,2,3],"risk":"high"}`)

	ev, err := r.Replay(models.GameTypeKeno, serverSeed, clientSeed, 9, params)
	require.NoError(t, err)

	req := &models.VerifyRequest{
		ServerSeed:     serverSeed,
		ServerSeedHash: fairness.HashSeed(serverSeed),
		ClientSeed:     clientSeed,
		Nonce:          9,
		GameType:       models.GameTypeKeno,
		Params:         params,
	}
	resp, err := r.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, models.GameTypeKeno, resp.GameType)
	assert.JSONEq(t, string(ev.Outcome), string(resp.Outcome))
	assert.True(t, ev.Multiplier.Equal(resp.Multiplier))
	require.NotNil(t, resp.HashMatches)
	assert.True(t, *resp.HashMatches)

	req.ServerSeedHash = ""
	resp, err = r.Verify(req)
	require.NoError(t, err)
	assert.Nil(t, resp.HashMatches)
	assert.Equal(t, fairness.HashSeed(serverSeed), resp.ServerSeedHash)

	req.Params = json.RawMessage(`{"picks":[],"risk":"high"}`)
	_, err = r.Verify(req)
	assert.ErrorIs(t, err, models.ErrInvalidParams)
}
