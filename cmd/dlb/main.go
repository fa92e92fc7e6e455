package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datalogbridge/internal/config"
	"datalogbridge/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	noJournal  bool

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dlb",
	Short: "dlb - a Datalog shell over Google Mangle",
	Long: `dlb normalizes Datalog clauses from three surfaces into one
intermediate form and drives a Mangle engine through a stack protocol.

  - interactive command lines:   likes(mary,tom).   likes(mary,X)?
  - markup documents (.xml):     <datalog><mappings>...</mappings></datalog>
  - object-notation files (.json): {"rules": [...], "facts": [...]}

Run without arguments to start the interactive shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = config.FindWorkspaceRoot()
			if err != nil {
				return fmt.Errorf("failed to find workspace: %w", err)
			}
		}
		if configPath == "" {
			configPath = filepath.Join(workspace, ".dlb", "config.yaml")
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if err := logging.Initialize(workspace, cfg.Logging.Settings()); err != nil {
			logger.Warn("Failed to initialize file logging", zap.Error(err))
		}
		logger.Debug("Configuration loaded",
			zap.String("workspace", workspace),
			zap.String("config", configPath),
			zap.Bool("journal", cfg.Journal.Enabled && !noJournal))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runShell,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .dlb parent, else current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.dlb/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "Do not replay or record the clause journal")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
