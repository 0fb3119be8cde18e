package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"casino-engine/internal/config"
	"casino-engine/internal/games"
	"casino-engine/internal/models"
	"casino-engine/internal/seeds"
	"casino-engine/internal/services"
	"casino-engine/internal/sim"
	"casino-engine/internal/store/pgstore"

	"github.com/spf13/cobra"
)

func gamesConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVar(path, "games", os.Getenv("GAMES_CONFIG"), "game tables YAML; embedded defaults when empty")
}

func newVerifyCmd() *cobra.Command {
	var (
		gamesPath string
		req       models.VerifyRequest
		params    string
		game      string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a bet outcome from a revealed seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := config.LoadGameTables(gamesPath)
			if err != nil {
				return err
			}
			registry, err := games.NewRegistry(tables)
			if err != nil {
				return err
			}

			req.GameType = models.GameType(game)
			req.Params = json.RawMessage(params)
			resp, err := registry.Verify(&req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	gamesConfigFlag(cmd, &gamesPath)
	cmd.Flags().StringVar(&req.ServerSeed, "server-seed", "", "revealed server seed")
	cmd.Flags().StringVar(&req.ServerSeedHash, "hash", "", "commitment published before play")
	cmd.Flags().StringVar(&req.ClientSeed, "client-seed", seeds.DefaultClientSeed, "client seed")
	cmd.Flags().Uint64Var(&req.Nonce, "nonce", 0, "bet nonce")
	cmd.Flags().StringVar(&game, "game", "", "game type, e.g. keno")
	cmd.Flags().StringVar(&params, "params", "{}", "bet params as JSON")
	_ = cmd.MarkFlagRequired("server-seed")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		gamesPath string
		only      []string
		cfg       sim.Config
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate return to player for every game",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := config.LoadGameTables(gamesPath)
			if err != nil {
				return err
			}
			registry, err := games.NewRegistry(tables)
			if err != nil {
				return err
			}
			if progress {
				cfg.Progress = cmd.ErrOrStderr()
			}

			var scenarios []sim.Scenario
			for _, sc := range sim.DefaultScenarios(tables) {
				if len(only) == 0 || contains(only, string(sc.Game)) {
					scenarios = append(scenarios, sc)
				}
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios match %s", strings.Join(only, ","))
			}

			simulator := sim.New(registry)
			for _, sc := range scenarios {
				r, err := simulator.Run(cmd.Context(), sc, cfg)
				if err != nil {
					return fmt.Errorf("%s: %w", sc.Label, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}

	gamesConfigFlag(cmd, &gamesPath)
	cmd.Flags().IntVar(&cfg.Rounds, "rounds", 1_000_000, "rounds per scenario")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "parallel workers")
	cmd.Flags().StringVar(&cfg.ServerSeed, "seed", "", "server seed; random when empty")
	cmd.Flags().StringSliceVar(&only, "game", nil, "limit to these game types")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newTokenCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET must be set to issue tokens")
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be positive")
			}

			token, err := services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL).GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	databaseURL := func() (string, error) {
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return "", fmt.Errorf("DATABASE_URL is required")
		}
		return url, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(*cobra.Command, []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return pgstore.MigrateUp(url)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(*cobra.Command, []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return pgstore.MigrateDown(url, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			version, dirty, err := pgstore.MigrateStatus(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
