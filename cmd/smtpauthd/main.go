package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/oxmail/smtpauth/auth"
	"github.com/oxmail/smtpauth/codec"
	"github.com/oxmail/smtpauth/config"
	"github.com/oxmail/smtpauth/engine"
	"github.com/oxmail/smtpauth/interfaces"
	"github.com/oxmail/smtpauth/metrics"
	"github.com/oxmail/smtpauth/smtpd"
)

const version = "0.1.0"

func main() {
	var (
		configFile     = flag.String("config", "", "Configuration file path (YAML)")
		showVersion    = flag.Bool("version", false, "Show version and exit")
		generateConfig = flag.String("generate-config", "", "Generate default config file and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("smtpauthd version %s\n", version)
		return
	}

	if *generateConfig != "" {
		cfg := config.DefaultConfig()
		if err := cfg.Save(*generateConfig); err != nil {
			log.Fatalf("Failed to generate config file: %v", err)
		}
		fmt.Printf("Generated default configuration: %s\n", *generateConfig)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	policy := cfg.Policy()
	store := auth.NewFileStore(cfg.Auth.UserFile, logger)

	var backends []interfaces.Backend
	switch cfg.Auth.Backend {
	case config.BackendDirectory:
		challenges := codec.NewChallengeSource(cfg.Server.Hostname, logger)
		backends = append(backends, auth.NewDirectoryBackend(
			store, challenges, auth.DirectoryOptionsFromPolicy(policy), logger))
	case config.BackendSASL:
		generic, err := auth.NewGenericBackend(auth.DefaultFactories(store), logger)
		if err != nil {
			// The server could never authenticate, abort start-up
			logger.Fatal("SASL backend initialization failed", zap.Error(err))
		}
		backends = append(backends, generic)
	}

	var collector engine.MetricsCollector
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("smtpauth", nil)
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}

	eng, err := engine.Initialize(policy, backends, logger, collector)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}

	server := smtpd.NewServer(cfg, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(server.Start)
	if metricsServer != nil {
		group.Go(func() error {
			logger.Info("metrics server listening", zap.Int("port", metricsServer.Port()))
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		server.Stop()
		if metricsServer != nil {
			metricsServer.Stop(context.Background())
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopmentConfig().Build()
	}
	zapConfig := zap.NewProductionConfig()
	switch level {
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zapConfig.Build()
}
