package main

import (
	"fmt"

	"github.com/caffeineduck/anchorpad/internal/config"
	"github.com/caffeineduck/anchorpad/loader"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download and verify the Ruby runtime",
		Long: `Download the ruby.wasm release into the runtime cache and verify it,
so the first evaluation does not wait on the network.

The release is chosen by runtime.ruby_version and runtime.version, or
runtime.url and runtime.checksum, in the config file. The path of the
extracted runtime is printed on success.`,
		Args: cobra.NoArgs,
		RunE: runFetch,
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := settings(cmd)
	if cfg.Engine != config.EngineRuby {
		fmt.Fprintf(cmd.ErrOrStderr(), "The %s engine is built in; nothing to fetch.\n", cfg.Engine)
		return nil
	}

	src, err := runtimeSource(cfg)
	if err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if isTerminal(cmd.ErrOrStderr()) {
		spinner, _ = pterm.DefaultSpinner.
			WithWriter(cmd.ErrOrStderr()).
			Start("Fetching Ruby runtime...")
	}

	root, err := loader.NewFetcher(runtimeCacheDir(cfg)).Fetch(cmd.Context(), src)
	if spinner != nil {
		if err != nil {
			spinner.Fail("Fetch failed")
		} else {
			spinner.Success("Runtime ready")
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), root)
	return nil
}
