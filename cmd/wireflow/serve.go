package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/internal/streaming"
	"github.com/rendis/wireflow/internal/validation"
	"github.com/rendis/wireflow/pkg/mcp"
)

func serveCmd(a *app) *cobra.Command {
	var mode, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored games to MCP clients",
		Long: "Serve the stored games as MCP tools over stdio (default) or SSE.\n" +
			"Editor events are recorded in the database and pushed to watching sessions.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != "" {
				a.cfg.ListenMode = mode
			}
			if addr != "" {
				a.cfg.ListenAddr = addr
				a.cfg.BaseURL = "http://localhost" + addr
			}
			if err := a.cfg.validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			v, err := validation.NewItemValidator()
			if err != nil {
				return err
			}
			srv := mcp.NewWireflowServer(mcp.WireflowServerDeps{
				Store:     s,
				Hub:       store.NewEventLog(s, streaming.NewMemoryHub(), a.logger),
				Validator: v,
				Logger:    a.logger,
			})

			a.logger.Info("wireflow serving", "mode", a.cfg.ListenMode, "db_path", a.cfg.DBPath, "version", version)
			if a.cfg.ListenMode == "sse" {
				return srv.ServeSSE(ctx, a.cfg.ListenAddr, a.cfg.BaseURL)
			}
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "transport: stdio or sse (default from listen_mode)")
	cmd.Flags().StringVar(&addr, "addr", "", "SSE listen address (default from listen_addr)")
	return cmd
}
