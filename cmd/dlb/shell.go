package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datalogbridge/internal/command"
	"datalogbridge/internal/session"
)

// runShell starts the interactive shell on stdin.
func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	interactive := isTerminal(os.Stdin)
	if interactive {
		fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("dlb shell. Type help for the grammar, exit to quit."))
	}
	return repl(ctx, a.exec, cmd.InOrStdin(), cmd.OutOrStdout(), interactive)
}

// repl reads one command per line until exit or end of input. Errors are
// printed and the loop continues.
func repl(ctx context.Context, exec *session.Executor, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, promptStyle.Render("dlb> "))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		res, err := exec.Process(ctx, line)
		if err != nil {
			if logger != nil {
				logger.Debug("Command failed", zap.String("line", line), zap.Error(err))
			}
			printError(out, err)
			continue
		}
		if res.Kind == command.KindExit {
			return nil
		}
		printResult(out, res)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
