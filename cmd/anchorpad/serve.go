package main

import (
	"fmt"

	"github.com/caffeineduck/anchorpad/loader"
	"github.com/caffeineduck/anchorpad/server"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web playground",
		Long: `Serve the web playground and its API.

Endpoints:
  GET    /                     Editor with the example snippet
  GET    /playground?code=...  Editor with a shared snippet
  GET    /ws                   WebSocket: load, edit, generate
  POST   /api/load             Start loading the interpreter
  GET    /api/status           Interpreter status
  POST   /api/evaluate         Evaluate {"code": "..."}
  POST   /api/share            Share link for {"code": "..."}
  GET    /health               Health check

The interpreter is loaded once per process and shared by every connection.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringP("addr", "a", "", "Listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().String("origin", "", "Origin for share links (default: request host)")
	cmd.Flags().Bool("preload", false, "Load the interpreter before accepting connections")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := settings(cmd)
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	if origin, _ := cmd.Flags().GetString("origin"); origin != "" {
		cfg.Server.Origin = origin
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	shared := loader.NewShared(eng.loader)

	if preload, _ := cmd.Flags().GetBool("preload"); preload {
		p, err := startPlayground(cmd, engine{name: eng.name, loader: shared}, cfg)
		if err != nil {
			return err
		}
		p.Close()
	}

	srv := server.New(server.Config{
		Engine:     eng.name,
		Loader:     shared,
		Example:    eng.example,
		Origin:     cfg.Server.Origin,
		RateLimit:  rate.Limit(cfg.Server.RateLimit),
		RateBurst:  cfg.Server.RateBurst,
		Playground: playgroundOptions(cfg),
	})
	defer srv.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "anchorpad (%s) listening on http://%s\n", eng.name, cfg.Server.Address)
	return srv.ListenAndServe(cmd.Context(), cfg.Server.Address)
}
