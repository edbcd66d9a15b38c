package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerAddress string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the projection worker",
	Long:  `Project stored events into the read store and search index, and report the projection backlog`,
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerAddress, "metrics-address", ":9102", "address serving /metrics")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runProjection(ctx, c)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.metrics.Handler())
	metricsServer := &http.Server{Addr: workerAddress, Handler: mux}
	g.Go(func() error {
		log.Info().Str("address", workerAddress).Msg("Worker metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker exited properly")
	return nil
}
