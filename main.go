package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/ii/api-test-harness/internal/config"
	"github.com/ii/api-test-harness/internal/db"
	"github.com/ii/api-test-harness/internal/engine"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfig = "harness.yaml"

var (
	configPath string
	debug      bool
	overrides  *config.Overrides

	rootCmd = &cobra.Command{
		Use:   "harness",
		Short: "Keep Gherkin API test cases indexed, run them and file bugs for failures",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default ./"+defaultConfig+" when present)")
	flags.BoolVarP(&debug, "debug", "D", false, "sets log level to debug")
	overrides = config.BindFlags(flags)

	rootCmd.AddCommand(syncCmd(), runCmd(), suiteCmd(), bugsCmd(), statsCmd())
}

// app is what every command works against.
type app struct {
	cfg  *config.Config
	repo *db.SQLiteRepository
	svc  *engine.Service
}

func setup() (*app, error) {
	path := configPath
	if path == "" && config.Exists(defaultConfig) {
		path = defaultConfig
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	overrides.Apply(cfg)
	if len(cfg.Projects) == 0 {
		return nil, errors.New("no projects configured")
	}
	repo, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", cfg.Database, err)
	}
	log.Debug().Msgf("Using index %s with %d projects", cfg.Database, len(cfg.Projects))
	svc := engine.New(repo, project.NewStatic(cfg.Projects), engine.Options{
		Runner: cfg.Runner,
		Layout: cfg.Layout,
	})
	return &app{cfg: cfg, repo: repo, svc: svc}, nil
}

// close waits for background work before releasing the index.
func (a *app) close() {
	a.svc.Wait()
	if err := a.repo.Close(); err != nil {
		log.Err(err).Msg("Couldn't close index")
	}
}

// withApp wraps a command body with setup and teardown.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

// defaultProject returns the only configured project when none is named.
func (a *app) defaultProject(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if len(a.cfg.Projects) == 1 {
		return a.cfg.Projects[0].ID, nil
	}
	return "", errors.New("--project is required when more than one project is configured")
}

func exitCode(err error) int {
	var verr *types.ValidationError
	var missing *types.AssetMissingError
	if errors.As(err, &verr) || errors.As(err, &missing) {
		return 2
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Msgf("%v", err)
		os.Exit(exitCode(err))
	}
}
