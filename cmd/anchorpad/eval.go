package main

import (
	"fmt"
	"io"
	"os"

	"github.com/caffeineduck/anchorpad/internal/config"
	"github.com/caffeineduck/anchorpad/playground"
	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [file]",
		Short: "Evaluate a snippet once and print the result",
		Long: `Evaluate a snippet and print the string it returns.

The snippet is read from --code, from a file argument, or from stdin. The
command exits non-zero when evaluation fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEval,
	}
	cmd.Flags().StringP("code", "c", "", "Snippet to evaluate")
	cmd.Flags().Bool("example", false, "Evaluate the built-in example")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg := settings(cmd)
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if example, _ := cmd.Flags().GetBool("example"); example {
		source = eng.example
	}
	if source == "" {
		return errors.WithHint(errors.New("nothing to evaluate"),
			"pass --code, a file, or pipe a snippet on stdin")
	}

	p, err := startPlayground(cmd, eng, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	outcome, err := p.Evaluate(cmd.Context(), source)
	if err != nil {
		return err
	}
	if !outcome.OK() {
		fmt.Fprintln(cmd.ErrOrStderr(), failureText(outcome))
		return errSilent
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Data)
	return nil
}

// readSource returns the snippet from --code, a file, or stdin, in that
// order.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", errors.Wrap(err, "read snippet")
		}
		return string(data), nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, "read stdin")
	}
	return string(data), nil
}

// startPlayground loads the interpreter, showing a spinner on terminals.
func startPlayground(cmd *cobra.Command, eng engine, cfg *config.Config) (*playground.Playground, error) {
	p := playground.New(eng.loader, playgroundOptions(cfg)...)

	var spinner *pterm.SpinnerPrinter
	if isTerminal(cmd.ErrOrStderr()) {
		spinner, _ = pterm.DefaultSpinner.
			WithWriter(cmd.ErrOrStderr()).
			WithRemoveWhenDone(true).
			Start(fmt.Sprintf("Loading %s interpreter...", eng.name))
	}

	if err := p.Initiate(); err != nil {
		p.Close()
		return nil, err
	}
	err := p.Await(cmd.Context())
	if spinner != nil {
		if err != nil {
			spinner.Fail(fmt.Sprintf("Could not load %s interpreter", eng.name))
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && readline.IsTerminal(int(f.Fd()))
}

func failureText(o playground.Outcome) string {
	if msg := o.Message(); msg != "" {
		return pterm.Red("Error: ") + msg
	}
	return pterm.Red("Error: ") + "evaluation failed"
}
