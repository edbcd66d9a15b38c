package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/clinops/api"
	"example.com/backstage/services/clinops/messaging"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  `Start the HTTP API and, when enabled, the Service Bus command consumer and an embedded projection processor`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(cfg, cfg.Projection.Embedded)
	if err != nil {
		return err
	}
	defer c.close()

	g, ctx := errgroup.WithContext(ctx)

	server := api.NewServer(cfg.Server, c.service, c.metrics, c.tracer)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Azure.Enabled {
		azureClient, err := messaging.NewAzureClient(cfg.Azure)
		if err != nil {
			return err
		}
		defer azureClient.Close(context.Background())

		processor := messaging.NewProcessor(c.service)
		g.Go(func() error {
			return azureClient.StartConsumers(ctx, cfg.Azure.CommandsQueueName, processor)
		})
	}

	if cfg.Projection.Embedded {
		g.Go(func() error {
			return runProjection(ctx, c)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Server exited properly")
	return nil
}

// runProjection drives the processor and the backlog reconciler until ctx ends
func runProjection(ctx context.Context, c *components) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := c.reconciler.Schedule(ctx, scheduler, cfg.Projection.ReconcileInterval); err != nil {
		return err
	}

	c.processor.Start(ctx)
	scheduler.Start()
	log.Info().Dur("reconcileInterval", cfg.Projection.ReconcileInterval).Msg("Projection processor started")

	<-ctx.Done()

	c.processor.Stop()
	return scheduler.Shutdown()
}
