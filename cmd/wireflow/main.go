package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/logging"
	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/internal/wireflow"
	"github.com/rendis/wireflow/pkg/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", bad.Sprint("wireflow:"), err)
		os.Exit(1)
	}
}

// app carries the resolved configuration into every subcommand.
type app struct {
	cfg      Config
	logger   *slog.Logger
	selector schema.Selector

	dbPath   string
	logLevel string
	sel      string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "wireflow",
		Short: "Edit and inspect item unlock conditions as diagrams",
		Long: brand.Sprint("wireflow") + " keeps item unlock conditions and their diagrams in sync\n" +
			subtle.Sprint("Render, validate and preview conditions, or serve them to MCP clients"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (default: ~/.wireflow/wireflow.db)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.sel, "selector", "", "condition field: dependsOn or disappearOn")

	root.AddCommand(
		renderCmd(a),
		validateCmd(a),
		evalCmd(a),
		queryCmd(a),
		importCmd(a),
		gamesCmd(a),
		historyCmd(a),
		serveCmd(a),
		configCmd(a),
		versionCmd(),
	)
	return root
}

// setup layers the command-line flags over the loaded configuration.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.sel != "" {
		cfg.Selector = a.sel
	}
	sel, err := parseSelector(cfg.Selector)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.selector = sel
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogJSON)
	return nil
}

func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if !hasScheme(a.cfg.DBPath) {
		if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	s, err := store.NewLibSQLStore(a.cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// items reads an item batch from path ("-" for stdin), or from the store
// when gameID is set. Stored games honour the replay layout.
func (a *app) items(cmd *cobra.Command, path, gameID string) ([]*schema.Item, error) {
	if gameID == "" {
		if path == "" {
			return nil, fmt.Errorf("an items file or --game is required")
		}
		raw, err := readInput(cmd, path)
		if err != nil {
			return nil, err
		}
		return decodeItems(raw)
	}

	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	items, err := s.ListItems(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if a.cfg.Layout == "replay" {
		positions, err := store.NewEventLog(s, nil, a.logger).ReplayPositions(ctx, gameID)
		if err != nil {
			return nil, err
		}
		n := store.ApplyPositions(items, positions)
		a.logger.Debug("replayed positions", "game_id", gameID, "moved", n)
	}
	return items, nil
}

// manager draws items on a fresh diagram.
func (a *app) manager(ctx context.Context, gameID string, items []*schema.Item) *wireflow.Manager {
	logger := a.logger.With("game_id", gameID)
	d := diagram.New(diagram.Config{GameID: gameID, Logger: logger})
	m := wireflow.New(d, wireflow.Options{
		GameID:   gameID,
		Selector: a.selector,
		Deferred: a.cfg.DeferredBuild,
		Logger:   logger,
	})
	if !a.cfg.DeferredBuild {
		m.Load(ctx, items)
		return m
	}
	for _, it := range items {
		if it != nil {
			m.AddItem(ctx, it)
		}
	}
	m.FinalizeBatch(ctx)
	return m
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func decodeItems(raw []byte) ([]*schema.Item, error) {
	var items []*schema.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "items must be a JSON array of items").WithCause(err)
	}
	return items, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
