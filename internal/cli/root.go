// Package cli implements the clinval command line: offline validation and timeline
// construction from JSON fact files, temporal marker parsing, database migrations and
// report store maintenance.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/config"
	"github.com/clinical-fact-validator/internal/domain"
)

var version = "dev"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "clinval",
	Short: "Validate extracted clinical facts",
	Long: `clinval checks facts extracted from clinical notes before they are used downstream.

It resolves temporal markers into a timeline, runs the validation stages and reports
per-dimension scores, issues and a safe-for-use determination.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("clinval version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Manager, error) {
	manager, err := config.NewManagerWithFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateValidationConfig(manager.GetValidationConfig()); err != nil {
		return nil, fmt.Errorf("invalid validation config: %w", err)
	}
	return manager, nil
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	logger := config.NewLogger(domain.LoggingConfig{Level: logLevel, Format: "text", Output: "stderr"})
	logger.SetOutput(cmd.ErrOrStderr())
	return logger
}

// openInput opens path for reading; "-" is the command's standard input.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
