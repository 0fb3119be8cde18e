// Package games holds one pure resolver per game type. A resolver turns a
// stream of uniform values plus the player's parameters into an outcome and
// a payout multiplier. Resolvers never see seeds and keep no state.
package games

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"casino-engine/internal/config"
	"casino-engine/internal/fairness"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Params is the decoded, validated parameter value of one game.
type Params interface{}

type Result struct {
	Outcome    interface{}
	Multiplier decimal.Decimal
}

type Resolver interface {
	Type() models.GameType
	// Decode validates raw parameters. It must fail with ErrInvalidParams
	// before any uniform value is drawn.
	Decode(raw json.RawMessage) (Params, error)
	Resolve(src fairness.Source, p Params) (Result, error)
}

// Evaluation is a resolver result with the outcome already marshalled. It is
// what gets persisted on the bet and what verification compares.
type Evaluation struct {
	GameType   models.GameType `json:"game_type"`
	Outcome    json.RawMessage `json:"outcome"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type Registry struct {
	resolvers map[models.GameType]Resolver
}

// NewRegistry builds the resolver for every game from the configured tables.
func NewRegistry(tables *config.GameTables) (*Registry, error) {
	return NewRegistryFrom(DefaultResolvers(tables)...)
}

func DefaultResolvers(tables *config.GameTables) []Resolver {
	return []Resolver{
		NewCrash(tables.Crash),
		NewKeno(tables.Keno),
		NewMines(tables.Mines),
		NewTower(tables.Tower),
		NewCups(tables.Cups),
		NewSlots(tables.Slots),
		NewDice(tables.Dice),
	}
}

// NewRegistryFrom fails unless every game type has exactly one resolver.
func NewRegistryFrom(resolvers ...Resolver) (*Registry, error) {
	r := &Registry{resolvers: make(map[models.GameType]Resolver, len(resolvers))}
	for _, res := range resolvers {
		if !res.Type().Valid() {
			return nil, fmt.Errorf("resolver for unknown game type %q", res.Type())
		}
		if _, dup := r.resolvers[res.Type()]; dup {
			return nil, fmt.Errorf("duplicate resolver for %s", res.Type())
		}
		r.resolvers[res.Type()] = res
	}
	for _, g := range models.AllGameTypes {
		if _, ok := r.resolvers[g]; !ok {
			return nil, fmt.Errorf("no resolver registered for %s", g)
		}
	}
	return r, nil
}

func (r *Registry) Get(g models.GameType) (Resolver, error) {
	res, ok := r.resolvers[g]
	if !ok {
		return nil, fmt.Errorf("%w: unknown game type %q", models.ErrInvalidParams, g)
	}
	return res, nil
}

// Validate decodes params without drawing anything.
func (r *Registry) Validate(g models.GameType, raw json.RawMessage) error {
	res, err := r.Get(g)
	if err != nil {
		return err
	}
	_, err = res.Decode(raw)
	return err
}

// Evaluate decodes params and runs the resolver. Resolver faults, including
// panics, surface as ErrMalformedOutcome.
func (r *Registry) Evaluate(g models.GameType, src fairness.Source, raw json.RawMessage) (ev Evaluation, err error) {
	res, err := r.Get(g)
	if err != nil {
		return Evaluation{}, err
	}
	p, err := res.Decode(raw)
	if err != nil {
		return Evaluation{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			ev = Evaluation{}
			err = fmt.Errorf("%w: %s resolver panicked: %v", models.ErrMalformedOutcome, g, rec)
		}
	}()

	result, err := res.Resolve(src, p)
	if err != nil {
		if errors.Is(err, models.ErrInvalidParams) || errors.Is(err, models.ErrMalformedOutcome) {
			return Evaluation{}, err
		}
		return Evaluation{}, fmt.Errorf("%w: %s: %v", models.ErrMalformedOutcome, g, err)
	}
	if result.Multiplier.IsNegative() {
		return Evaluation{}, fmt.Errorf("%w: %s produced negative multiplier %s", models.ErrMalformedOutcome, g, result.Multiplier)
	}

	outcome, err := json.Marshal(result.Outcome)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %s outcome not serialisable: %v", models.ErrMalformedOutcome, g, err)
	}

	return Evaluation{
		GameType:   g,
		Outcome:    outcome,
		Multiplier: result.Multiplier,
	}, nil
}

// Replay recomputes an outcome from a revealed seed triple. This is the
// public verification path.
func (r *Registry) Replay(g models.GameType, serverSeed, clientSeed string, nonce uint64, raw json.RawMessage) (Evaluation, error) {
	return r.Evaluate(g, fairness.NewStream(serverSeed, clientSeed, nonce), raw)
}

// Verify replays req and, when a commitment is supplied, checks the revealed
// seed against it.
func (r *Registry) Verify(req *models.VerifyRequest) (*models.VerifyResponse, error) {
	ev, err := r.Replay(req.GameType, req.ServerSeed, req.ClientSeed, req.Nonce, req.Params)
	if err != nil {
		return nil, err
	}

	resp := &models.VerifyResponse{
		GameType:       ev.GameType,
		ServerSeedHash: fairness.HashSeed(req.ServerSeed),
		Outcome:        ev.Outcome,
		Multiplier:     ev.Multiplier,
	}
	if req.ServerSeedHash != "" {
		matches := fairness.VerifyCommitment(req.ServerSeed, req.ServerSeedHash)
		resp.HashMatches = &matches
	}
	return resp, nil
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidParams, err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{models.ErrInvalidParams}, args...)...)
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{models.ErrMalformedOutcome}, args...)...)
}

// uniformIndex maps u in [0,1) onto 0..n-1.
func uniformIndex(u float64, n int) int {
	i := int(math.Floor(u * float64(n)))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// truncDiv returns a/b truncated toward zero to places decimal places.
func truncDiv(a, b decimal.Decimal, places int32) decimal.Decimal {
	q, _ := a.QuoRem(b, places)
	return q
}

func distinctInRange(values []int, lo, hi int) bool {
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		if v < lo || v > hi {
			return false
		}
		if _, dup := seen[v]; dup {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}
