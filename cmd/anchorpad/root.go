package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caffeineduck/anchorpad/executor"
	"github.com/caffeineduck/anchorpad/internal/config"
	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/language/javascript"
	"github.com/caffeineduck/anchorpad/language/ruby"
	"github.com/caffeineduck/anchorpad/loader"
	"github.com/caffeineduck/anchorpad/playground"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// errSilent marks failures the command already reported.
var errSilent = errors.New("silent failure")

type settingsKey struct{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "anchorpad",
		Short: "Playground for Anchor::Types to TypeScript",
		Long: `anchorpad - evaluate Anchor type definitions and see the TypeScript
they generate.

Snippets run in a sandboxed interpreter: Ruby compiled to WebAssembly
(ruby.wasm, fetched on first use) or an embedded JavaScript engine. Every
evaluation starts from a fresh interpreter, so definitions never leak from
one run into the next.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
	}

	root.PersistentFlags().String("config", "", "Config file (default: ./anchorpad.toml or the user config dir)")
	root.PersistentFlags().StringP("engine", "e", "", "Interpreter: ruby, javascript (default from config)")
	root.PersistentFlags().Bool("json-logs", false, "Log as JSON")
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newEvalCmd(),
		newReplCmd(),
		newServeCmd(),
		newShareCmd(),
		newFetchCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err == nil {
		return
	}
	if !errors.Is(err, errSilent) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
	}
	os.Exit(1)
}

func loadSettings(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	jsonLogs, _ := flags.GetBool("json-logs")
	level, _ := flags.GetString("log-level")
	if err := logging.Initialize(jsonLogs, level); err != nil {
		return err
	}

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if engine, _ := flags.GetString("engine"); engine != "" {
		cfg.Engine = engine
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if cfg.File != "" {
		logging.Logger.Debugw("config loaded", logging.FieldPath, cfg.File)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, settingsKey{}, cfg))
	return nil
}

func settings(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(settingsKey{}).(*config.Config); ok {
		return cfg
	}
	panic("settings not loaded")
}

// engine is everything a command needs to run one interpreter.
type engine struct {
	name    string
	loader  interp.Loader
	example string
}

func newEngine(cfg *config.Config) (engine, error) {
	ser := interp.SerializerConfig{
		ArrayBracketNotation: cfg.Serializer.ArrayBracketNotation,
		MaybeAsUnion:         cfg.Serializer.MaybeAsUnion,
	}

	switch cfg.Engine {
	case config.EngineJavaScript:
		return engine{
			name:    javascript.Name,
			loader:  javascript.NewLoader(ser),
			example: javascript.Example,
		}, nil
	case config.EngineRuby:
		src, err := runtimeSource(cfg)
		if err != nil {
			return engine{}, err
		}
		execOpts := []executor.ExecutorOption{executor.WithDiskCache()}
		if mb := cfg.Runtime.MemoryLimitMB; mb > 0 {
			execOpts = append(execOpts, executor.WithMemoryLimit(executor.MemoryLimitPages(int(mb))))
		}
		return engine{
			name: config.EngineRuby,
			loader: &loader.Ruby{
				Fetcher:         loader.NewFetcher(runtimeCacheDir(cfg)),
				Source:          src,
				Config:          ser,
				ExecutorOptions: execOpts,
			},
			example: ruby.Example,
		}, nil
	}
	return engine{}, errors.Newf("unknown engine %q", cfg.Engine)
}

func runtimeSource(cfg *config.Config) (loader.Source, error) {
	if cfg.Runtime.Dir != "" {
		return loader.Source{Dir: cfg.Runtime.Dir}, nil
	}
	src, err := loader.DefaultSource(cfg.Runtime.RubyVersion, cfg.Runtime.Version)
	if err != nil {
		return loader.Source{}, err
	}
	if cfg.Runtime.URL != "" {
		src.URL = cfg.Runtime.URL
	}
	src.Checksum = cfg.Runtime.Checksum
	return src, nil
}

func runtimeCacheDir(cfg *config.Config) string {
	if cfg.Runtime.CacheDir != "" {
		return cfg.Runtime.CacheDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "anchorpad", "runtime")
	}
	return filepath.Join(os.TempDir(), "anchorpad-runtime")
}

func playgroundOptions(cfg *config.Config) []playground.Option {
	p := cfg.Playground
	return []playground.Option{
		playground.WithDebounce(p.Debounce),
		playground.WithMaxWait(p.MaxWait),
		playground.WithEvalTimeout(p.EvalTimeout),
		playground.WithLoadTimeout(p.LoadTimeout),
		playground.WithRetry(p.Retry),
	}
}
