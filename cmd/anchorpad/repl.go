package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	replPrompt = "anchor> "
	contPrompt = "   ...> "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive prompt, one fresh interpreter per entry",
		Long: `Start an interactive prompt.

Every entry is evaluated in a fresh interpreter, exactly like an edit in the
web playground: nothing defined in one entry is visible in the next.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.anchorpad_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg := settings(cmd)
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".anchorpad_history")
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	p, err := startPlayground(cmd, eng, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "anchorpad %s (type 'exit' to quit, Ctrl+D to exit)\n", eng.name)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(replPrompt)
				}
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(contPrompt)
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(replPrompt)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		outcome, err := p.Evaluate(cmd.Context(), line)
		if err != nil {
			return err
		}
		if !outcome.OK() {
			fmt.Fprintln(cmd.ErrOrStderr(), failureText(outcome))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Data)
	}
}
