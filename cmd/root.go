package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/config"
	"github.com/telhawk-systems/pktwatch/internal/logging"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile   string
	output    string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "pktwatch",
		Short: "Packet capture log analyzer",
		Long: `pktwatch reads tcpdump-style capture text (or pcap files), classifies each
packet line against a fixed rule set (SYN scans, RST rejects, remote-admin
exposure, DNS abuse) and reports frequency statistics.

Results can be published to NATS, accumulated in Redis, indexed into
OpenSearch, and recorded in PostgreSQL.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./pktwatch.yaml or $HOME/.pktwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newRulesCmd(a),
		newExplainCmd(a),
		newGenerateCmd(a),
		newHistoryCmd(a),
		newTotalsCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	output.Out = cmd.OutOrStdout()
	output.Err = cmd.ErrOrStderr()

	switch a.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg
	a.logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())
	return nil
}

// Execute runs the CLI until completion or an interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
