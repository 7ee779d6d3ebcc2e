package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"safemigrator/logger"
	"safemigrator/routes"
	taskqueue "safemigrator/taskQueue"
	"safemigrator/utils"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the background driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			noDriver, _ := cmd.Flags().GetBool("no-driver")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, func(_ context.Context, a *app) error {
				return serve(ctx, a, !noDriver)
			})
		},
	}
	cmd.Flags().Bool("no-driver", false, "Only process queued requests, never start batches on its own")
	return cmd
}

func serve(parent context.Context, a *app, autoBatch bool) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	queue, err := taskqueue.OpenQueue(a.cfg.GetQueueDBPath())
	if err != nil {
		return err
	}
	defer queue.Close()

	secret := []byte(a.cfg.AuthSecret)
	if len(secret) == 0 {
		hex, err := utils.GenerateRandomHex(32)
		if err != nil {
			return err
		}
		secret = []byte(hex)
		tok, err := utils.SignAdminToken(secret, "bootstrap", 24*time.Hour, utils.ScopeWrite)
		if err != nil {
			return err
		}
		logger.Warnf("MIGRATOR_AUTH_SECRET not set; generated a secret for this process. Admin token (24h): %s", tok)
	}

	driver := taskqueue.NewDriver(a.engine, queue, a.cfg.TickInterval, a.cfg.TickBudget)
	driver.AutoBatch = autoBatch
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		driver.Start(ctx)
	}()
	// The stores close when serve returns; the driver must be out first.
	defer func() { <-driverDone }()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           routes.NewServer(a.engine, queue, utils.VerifyConfig{SecretKey: secret, ExpectedIssuer: utils.DefaultIssuer, ClockSkew: time.Minute}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("safemigrator listening on %s", a.cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
