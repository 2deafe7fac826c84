package main

import (
	"context"
	"runtime"
	"time"

	"github.com/Borislavv/segment-registry/internal/node"
	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/gc"
	"github.com/Borislavv/segment-registry/pkg/k8s/probe/liveness"
	"github.com/Borislavv/segment-registry/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	configPath      = "segreg.cfg.yaml"
	configPathLocal = "segreg.cfg.local.yaml"

	probeTimeout = 5 * time.Second
)

// setMaxProcs automatically sets the optimal GOMAXPROCS value (CPU parallelism)
// based on the available CPUs and cgroup/docker CPU quotas (uses automaxprocs).
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

// loadCfg loads the configuration file, preferring the local one when present.
func loadCfg() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[config] .env file not found, using process environment")
	}

	cfg, err := config.LoadConfig(configPathLocal)
	if err != nil {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			log.Err(err).Msg("[config] failed to load")
			return nil, err
		} else {
			log.Info().Msgf("[config] config loaded from '%v'", configPath)
		}
	} else {
		log.Info().Msgf("[config] config loaded from '%v'", configPathLocal)
	}
	return cfg, nil
}

func setLogLevel(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Node.Logs.Level)
	if err != nil {
		log.Warn().Msgf("[main] unknown log level %q, falling back to info", cfg.Node.Logs.Level)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// Main entrypoint: configures and starts the segment registry node.
func main() {
	// Create a root context for graceful shutdown and cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optimize GOMAXPROCS for the current environment.
	setMaxProcs()

	cfg, cfgError := loadCfg()
	if cfgError != nil {
		log.Err(cfgError).Msg("[main] failed to load node config")
		return
	}
	setLogLevel(cfg)

	// Setup graceful shutdown handler (SIGTERM, SIGINT).
	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(time.Minute * 5)

	// Initialize liveness probe for Kubernetes/Cloud health checks.
	probe := liveness.NewProbe(probeTimeout)
	defer probe.Stop()

	app, err := node.NewApp(ctx, cfg, probe)
	if err != nil {
		log.Err(err).Msg("[main] failed to init node app")
		return
	}

	// Register app for graceful shutdown.
	gracefulShutdown.Add(1)
	go app.Start(gracefulShutdown)

	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()

	// Run forced GC.
	gc.Run(gcCtx, cfg)

	// Listen for OS signals or context cancellation and wait for graceful shutdown.
	if err := gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("failed to gracefully shut down service")
	}
}
