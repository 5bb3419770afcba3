package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonLogs   bool

	// Set by PersistentPreRunE
	cfg    Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mdn",
	Short: "Mixture density networks in pure Go",
	Long: `mdn trains mixture density networks: neural networks that predict the
parameters of a Gaussian mixture over the output instead of a point estimate.

Two variants are available:
  shared       one set of K mixture weights shared by every output dimension
  independent  K mixture weights per output dimension

Training reports the cost, and optionally renders the predicted mixture and
the epistemic/aleatoric variance split as PNG plots.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = DefaultConfig()
		if configPath != "" {
			loaded, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		if jsonLogs {
			cfg.Logging.JSON = true
		}

		var err error
		logger, _, err = NewLogger(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		logger.Debug("run started", zap.String("command", cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON log lines")

	rootCmd.AddCommand(trainCmd, compareCmd, summaryCmd, genDataCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
