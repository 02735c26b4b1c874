// Command crmctl is the operator tool for the admissions dashboard: it runs
// a fake backend for local work, issues development tokens, and talks to
// the admissions API with the dashboard's own client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	token      string
	customerID string
	verbose    bool
	timeout    time.Duration

	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Admissions CRM operator tool",
	Long: `crmctl works against the admissions backend the dashboard uses.

It can run an in-memory development backend, sign development tokens,
and search, export, or import parents from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		l, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./config.toml, then DASHBOARD_* env)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CRM_TOKEN"), "Bearer token (or set CRM_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&customerID, "customer", "", "Customer id (default: api.customer_id)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout")

	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(parentsCmd)
	rootCmd.AddCommand(pingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// apiContext opens a client signed in with the command's credentials and
// a context bounded by --timeout. cancel must be called by the caller.
func apiContext(cmd *cobra.Command) (*apiclient.Client, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cust := customerID
	if cust == "" {
		cust = cfg.API.CustomerID
	}
	if cust == "" {
		return nil, nil, nil, fmt.Errorf("no customer: pass --customer or set api.customer_id")
	}

	client, err := apiclient.New(cfg.API,
		apiclient.WithLogger(log),
		apiclient.WithDefaultCredentials(apiclient.Credentials{
			Token:      token,
			CustomerID: cust,
			UserID:     cfg.API.UserID,
		}),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return client, ctx, func() { cancel(); stop() }, nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the admissions backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := apiContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		start := time.Now()
		if err := client.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}
