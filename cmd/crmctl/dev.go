package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/devbackend"
	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	devAddr      string
	devCustomers []string
	devParents   int
	devSeed      uint64
	devSecret    string
	devDisable   []string
)

// devCmd runs the in-memory admissions backend
var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run an in-memory admissions backend seeded with fake families",
	Long: `Run a development backend that speaks the admissions API.

Every customer listed with --customer-ids is seeded with --parents fake
families. With --secret the backend checks bearer tokens signed by
'crmctl token' using the same secret; without it any token is accepted.
--disable switches off optional endpoint groups (export, import, merge,
report, tasks, emails, journey) so the dashboard's fallbacks can be tried.`,
	RunE: runDev,
}

func init() {
	devCmd.Flags().StringVar(&devAddr, "addr", ":8000", "Listen address")
	devCmd.Flags().StringSliceVar(&devCustomers, "customer-ids", []string{"1"}, "Customers to seed")
	devCmd.Flags().IntVar(&devParents, "parents", 120, "Families seeded per customer")
	devCmd.Flags().Uint64Var(&devSeed, "seed", 1, "Seed for the fake data")
	devCmd.Flags().StringVar(&devSecret, "secret", "", "HMAC secret for token checks")
	devCmd.Flags().StringSliceVar(&devDisable, "disable", nil, "Endpoint groups to switch off")
}

func runDev(cmd *cobra.Command, args []string) error {
	gin.SetMode(gin.ReleaseMode)

	store := devbackend.NewStore()
	for _, cust := range devCustomers {
		cust = strings.TrimSpace(cust)
		if cust == "" {
			continue
		}
		store.Seed(cust, devParents, devSeed)
		log.Info("Seeded customer", zap.String("customer_id", cust), zap.Int("parents", devParents))
	}

	opts := []devbackend.Option{devbackend.WithLogger(log), devbackend.WithoutFeatures(devDisable...)}
	if devSecret != "" {
		opts = append(opts, devbackend.WithSigner(auth.NewSigner(devSecret, tokenIssuer, tokenTTL)))
	}

	srv := &http.Server{
		Addr:              devAddr,
		Handler:           devbackend.NewServer(store, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Development backend listening", zap.String("addr", devAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down development backend...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
