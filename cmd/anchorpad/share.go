package main

import (
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/caffeineduck/anchorpad/internal/config"
	"github.com/caffeineduck/anchorpad/sharelink"
	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Encode and decode playground share links",
	}
	cmd.PersistentFlags().Bool("copy", false, "Also copy the result to the clipboard (OSC 52)")

	encode := &cobra.Command{
		Use:   "encode [file]",
		Short: "Print a share link for a snippet",
		Long: `Print a share link for a snippet read from --code, a file, or stdin.

Links open in the web playground and in the original Anchor site, which
use the same lz-string encoding.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runShareEncode,
	}
	encode.Flags().StringP("code", "c", "", "Snippet to share")
	encode.Flags().String("origin", "", "Link origin (default from config, else http://<server.address>)")

	decode := &cobra.Command{
		Use:   "decode <link-or-payload>",
		Short: "Print the snippet inside a share link",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareDecode,
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func runShareEncode(cmd *cobra.Command, args []string) error {
	cfg := settings(cmd)
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	origin, _ := cmd.Flags().GetString("origin")
	if origin == "" {
		origin = shareOrigin(cfg)
	}
	return emit(cmd, sharelink.Build(origin, source))
}

func runShareDecode(cmd *cobra.Command, args []string) error {
	arg := strings.TrimSpace(args[0])

	var code string
	var err error
	if strings.Contains(arg, "://") {
		code, err = sharelink.Parse(arg)
	} else {
		code, err = sharelink.Decode(arg)
	}
	if err != nil {
		return err
	}
	return emit(cmd, code)
}

func shareOrigin(cfg *config.Config) string {
	if cfg.Server.Origin != "" {
		return cfg.Server.Origin
	}
	return "http://" + cfg.Server.Address
}

// emit prints text and, with --copy, places it on the clipboard.
func emit(cmd *cobra.Command, text string) error {
	fmt.Fprintln(cmd.OutOrStdout(), text)

	if copyFlag, _ := cmd.Flags().GetBool("copy"); !copyFlag {
		return nil
	}
	if _, err := osc52.New(text).WriteTo(cmd.ErrOrStderr()); err != nil {
		return errors.Wrap(err, "copy to clipboard")
	}
	if isTerminal(cmd.ErrOrStderr()) {
		pterm.Success.WithWriter(cmd.ErrOrStderr()).Println("Copied to clipboard")
	}
	return nil
}
