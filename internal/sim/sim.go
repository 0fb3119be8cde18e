// Package sim estimates return-to-player for each game by replaying many
// rounds through the same resolvers the engine settles with.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/games"
	"casino-engine/internal/models"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"golang.org/x/sync/errgroup"
)

// Scenario is one game with fixed params, e.g. keno high risk with 5 picks.
type Scenario struct {
	Label  string
	Game   models.GameType
	Params json.RawMessage
}

type Config struct {
	Rounds  int
	Workers int
	// ServerSeed makes a run reproducible; a random seed is used when empty.
	ServerSeed string
	Progress   io.Writer
}

type Report struct {
	Scenario      Scenario
	Rounds        int
	RTP           float64
	StdDev        float64
	CILow         float64
	CIHigh        float64
	HitRate       float64
	MaxMultiplier float64
	// Rounds the resolver could not settle; they count as refunds.
	Faults   int
	Duration time.Duration
}

// Contains reports whether rtp lies inside the 95% confidence interval.
func (r *Report) Contains(rtp float64) bool {
	return rtp >= r.CILow && rtp <= r.CIHigh
}

func (r *Report) String() string {
	return fmt.Sprintf("%-24s rounds=%d rtp=%.4f [%.4f, %.4f] sd=%.3f hit=%.3f max=%.2f faults=%d (%s)",
		r.Scenario.Label, r.Rounds, r.RTP, r.CILow, r.CIHigh, r.StdDev, r.HitRate, r.MaxMultiplier, r.Faults,
		r.Duration.Round(time.Millisecond))
}

type Simulator struct {
	registry *games.Registry
}

func New(registry *games.Registry) *Simulator {
	return &Simulator{registry: registry}
}

// Run plays cfg.Rounds rounds of the scenario split across cfg.Workers. Each
// worker uses its own client seed, so rounds never share a seed triple.
func (s *Simulator) Run(ctx context.Context, sc Scenario, cfg Config) (*Report, error) {
	if cfg.Rounds < 1 {
		return nil, fmt.Errorf("%w: rounds must be positive", models.ErrInvalidParams)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > cfg.Rounds {
		cfg.Workers = cfg.Rounds
	}
	if err := s.registry.Validate(sc.Game, sc.Params); err != nil {
		return nil, err
	}

	serverSeed := cfg.ServerSeed
	if serverSeed == "" {
		var err error
		if serverSeed, err = fairness.GenerateServerSeed(); err != nil {
			return nil, err
		}
	}

	var out io.Writer = io.Discard
	if cfg.Progress != nil {
		out = cfg.Progress
	}
	bar := pb.New(cfg.Rounds).SetWriter(out).Start()
	defer bar.Finish()

	results := make([][]float64, cfg.Workers)
	faults := make([]int, cfg.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		share := cfg.Rounds / cfg.Workers
		if w < cfg.Rounds%cfg.Workers {
			share++
		}

		g.Go(func() error {
			clientSeed := fmt.Sprintf("sim-%d", w)
			out := make([]float64, 0, share)
			for nonce := 0; nonce < share; nonce++ {
				if nonce%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				ev, err := s.registry.Replay(sc.Game, serverSeed, clientSeed, uint64(nonce), sc.Params)
				switch {
				case errors.Is(err, models.ErrMalformedOutcome):
					faults[w]++
					out = append(out, 1)
				case err != nil:
					return err
				default:
					out = append(out, ev.Multiplier.InexactFloat64())
				}
				bar.Increment()
			}
			results[w] = out
			return nil
		})
	}

	start := time.Now()
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]float64, 0, cfg.Rounds)
	report := &Report{Scenario: sc, Rounds: cfg.Rounds, Duration: time.Since(start)}
	hits := 0
	for w, out := range results {
		all = append(all, out...)
		report.Faults += faults[w]
	}
	for _, m := range all {
		if m > 0 {
			hits++
		}
		if m > report.MaxMultiplier {
			report.MaxMultiplier = m
		}
	}

	report.RTP, report.StdDev = stat.MeanStdDev(all, nil)
	if math.IsNaN(report.StdDev) {
		report.StdDev = 0
	}
	z := distuv.UnitNormal.Quantile(0.975)
	half := z * report.StdDev / math.Sqrt(float64(len(all)))
	report.CILow, report.CIHigh = report.RTP-half, report.RTP+half
	report.HitRate = float64(hits) / float64(len(all))
	return report, nil
}

// RunAll runs every scenario in order and stops at the first error.
func (s *Simulator) RunAll(ctx context.Context, scenarios []Scenario, cfg Config) ([]*Report, error) {
	reports := make([]*Report, 0, len(scenarios))
	for _, sc := range scenarios {
		r, err := s.Run(ctx, sc, cfg)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", sc.Label, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultScenarios covers every game with representative params drawn from
// the configured tables.
func DefaultScenarios(tables *config.GameTables) []Scenario {
	var out []Scenario

	for _, cashout := range []string{"1.50", "2.00", "10.00"} {
		out = append(out, Scenario{
			Label:  "crash/" + cashout,
			Game:   models.GameTypeCrash,
			Params: json.RawMessage(`{"cashout":"` + cashout + `"}`),
		})
	}

	picks := make([]int, 0, 5)
	for n := 1; n <= 5 && n <= tables.Keno.MaxPicks; n++ {
		picks = append(picks, n)
	}
	for _, risk := range sortedKeys(tables.Keno.Tables) {
		out = append(out, Scenario{
			Label:  fmt.Sprintf("keno/%s/%d", risk, len(picks)),
			Game:   models.GameTypeKeno,
			Params: mustJSON(games.KenoParams{Picks: picks, Risk: risk}),
		})
	}

	out = append(out,
		Scenario{Label: "mines/3/2", Game: models.GameTypeCricketMines, Params: mustJSON(games.MinesParams{Outs: 3, Picks: []int{0, 1}})},
		Scenario{Label: "tower/3/3", Game: models.GameTypeTowerClimb, Params: mustJSON(games.TowerParams{Columns: 3, Picks: []int{0, 1, 2}})},
	)

	for _, difficulty := range sortedKeys(tables.Cups.Multipliers) {
		out = append(out, Scenario{
			Label:  "cups/" + difficulty,
			Game:   models.GameTypeCupGame,
			Params: mustJSON(games.CupParams{Cup: 0, Difficulty: difficulty}),
		})
	}

	out = append(out,
		Scenario{Label: "slots", Game: models.GameTypeSlots, Params: json.RawMessage(`{}`)},
		Scenario{Label: "dice/50", Game: models.GameTypeDiceRange, Params: json.RawMessage(`{"low":"0","high":"50"}`)},
	)
	return out
}
