package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datalogbridge/internal/command"
	"datalogbridge/internal/watch"
)

// execCmd runs command lines given as arguments
var execCmd = &cobra.Command{
	Use:   "exec LINE...",
	Short: "Execute command lines non-interactively",
	Long: `Executes each argument as one command line, in order.

Example:
  dlb exec "likes(mary,tom)." "likes(mary,X)?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

// importCmd asserts structured documents
var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import markup (.xml) or object-notation (.json) documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

// checkCmd validates documents without asserting
var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Parse documents and report errors without touching the engine",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

// watchCmd imports documents as they change
var watchCmd = &cobra.Command{
	Use:   "watch [DIR]",
	Short: "Watch a directory and import documents as they are written",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

// statsCmd shows engine statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show facts and rules held after replaying the journal",
	RunE:  runStats,
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, line := range args {
		res, err := a.exec.Process(ctx, line)
		if err != nil {
			printError(out, err)
			failed++
			continue
		}
		if res.Kind == command.KindExit {
			break
		}
		printResult(out, res)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d line(s) failed", failed, len(args))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Importing documents", zap.Int("count", len(args)))
	reports, err := a.importer.Import(ctx, args...)
	printReports(cmd.OutOrStdout(), reports, false)
	if err != nil {
		return fmt.Errorf("import had failures")
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, workspace, false)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.importer.Check(ctx, args...)
	printReports(cmd.OutOrStdout(), reports, true)
	if err != nil {
		return fmt.Errorf("check found errors")
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}

	w, err := watch.New(dir, a.importer, cfg.GetWatchDebounce())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("watching "+dir+" (Ctrl-C to stop)"))

	<-sigCh
	logger.Info("Received shutdown signal")
	w.Stop()

	stats := w.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d file(s), %d failed\n", stats.Imports, stats.Failures)
	printStats(cmd.OutOrStdout(), a.engine.Stats(), -1)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	journaled := -1
	if a.journal != nil {
		if journaled, err = a.journal.Count(ctx); err != nil {
			return err
		}
	}
	printStats(cmd.OutOrStdout(), a.engine.Stats(), journaled)
	return nil
}
