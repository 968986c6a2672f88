// Package main is the entry point for the Temporal tuning worker. It hosts
// the sweep workflow and the per-family tuning activities so long grid
// searches can run out-of-process. Sweeps are started by workflow name from
// any Temporal client.
package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/ilnaes/github-analysis/internal/config"
	"github.com/ilnaes/github-analysis/internal/temporal"
	"github.com/ilnaes/github-analysis/pkg/modelstore"
	"github.com/ilnaes/github-analysis/pkg/runstore"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx := context.Background()

	local, err := modelstore.NewLocalStore(cfg.ArtifactsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open artifact store")
	}
	stores := []modelstore.Store{local}
	if cfg.MinioEndpoint != "" {
		mirror, err := modelstore.NewMinioStore(ctx, modelstore.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("artifact mirror disabled")
		} else {
			stores = append(stores, mirror)
		}
	}
	defer func() {
		for _, s := range stores {
			_ = s.Close()
		}
	}()

	var runs *runstore.Store
	if cfg.DatabaseURL != "" {
		runs, err = runstore.New(cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("run registry disabled")
			runs = nil
		} else {
			defer runs.Close()
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Temporal client")
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})

	acts := temporal.NewTrainingActivities(stores, runs)
	w.RegisterActivity(acts.TuneFamily)
	w.RegisterActivity(acts.RecordSweep)
	w.RegisterWorkflowWithOptions(temporal.TuneSweepWorkflowFunc, workflow.RegisterOptions{
		Name: temporal.TuneSweepWorkflow,
	})

	log.Info().Str("address", cfg.TemporalAddress).Str("namespace", cfg.TemporalNamespace).
		Str("queue", cfg.TemporalTaskQueue).Msg("tuning worker started")

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}
