package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/api"
	"github.com/speedwagon-io/soilwatch/internal/archive"
	"github.com/speedwagon-io/soilwatch/internal/buffer"
	"github.com/speedwagon-io/soilwatch/internal/cache"
	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/dashboard"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/publish"
	"github.com/speedwagon-io/soilwatch/internal/sender"
	"github.com/speedwagon-io/soilwatch/internal/source"
	"github.com/speedwagon-io/soilwatch/internal/source/adapters"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log reports instead of forwarding them")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting soilwatch dashboard",
		slog.String("env", cfg.Env),
		slog.String("device_id", cfg.Device.ID),
		slog.Bool("dry_run", *dryRun),
	)

	sourceCfg := config.MustLoadSource(cfg.Device.SourcePath)

	log.Info("loaded source config",
		slog.String("adapter", sourceCfg.Connection.Adapter),
		slog.String("history_path", sourceCfg.Connection.HistoryPath),
		slog.String("current_path", sourceCfg.Connection.CurrentPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var src source.Source
	switch sourceCfg.Connection.Adapter {
	case "firebase":
		client, err := adapters.NewFirebaseClient(ctx, sourceCfg.Connection.DatabaseURL, sourceCfg.Connection.CredentialsFile)
		if err != nil {
			log.Error("failed to create firebase client", sl.Err(err))
			os.Exit(1)
		}
		src = adapters.NewFirebaseAdapter(log, client, sourceCfg.Connection.HistoryPath, sourceCfg.Connection.CurrentPath)
	case "rest":
		src = adapters.NewRESTAdapter(log, adapters.RESTOptions{
			BaseURL:     sourceCfg.Connection.DatabaseURL,
			AuthToken:   sourceCfg.Connection.AuthToken,
			HistoryPath: sourceCfg.Connection.HistoryPath,
			CurrentPath: sourceCfg.Connection.CurrentPath,
			Timeout:     sourceCfg.Connection.Timeout,
		})
	default:
		log.Error("unknown adapter", slog.String("adapter", sourceCfg.Connection.Adapter))
		os.Exit(1)
	}

	guarded := source.NewGuarded(log, src, source.BreakerSettings{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
	})

	// Use LogSender for dry-run mode, HTTPSender when forwarding is enabled
	var reportSender sender.Sender
	switch {
	case *dryRun:
		reportSender = sender.NewLogSender(log)
		log.Info("dry-run mode: reports will be logged instead of sent")
	case cfg.Sender.Enabled:
		reportSender = sender.NewHTTPSender(log, &cfg.Sender)
	}

	var buf *buffer.SQLiteBuffer
	if cfg.Buffer.Enabled && cfg.Sender.Enabled && !*dryRun {
		var err error
		buf, err = buffer.NewSQLiteBuffer(log, cfg.Buffer.Path)
		if err != nil {
			log.Error("failed to create buffer", sl.Err(err))
			os.Exit(1)
		}
		log.Info("buffer enabled", slog.String("path", cfg.Buffer.Path))
	}

	state := dashboard.NewState()
	hub := api.NewHub(log, state, cfg.HTTP.AllowedOrigins)
	server := api.NewServer(log, cfg.HTTP.Address, state, hub)

	presenters := []dashboard.Presenter{hub}
	if *dryRun {
		presenters = append(presenters, dashboard.NewLogPresenter(log))
	}

	if cfg.Cache.Enabled {
		client, err := cache.Connect(ctx, cfg.Cache)
		if err != nil {
			log.Error("failed to connect to cache", sl.Err(err))
			os.Exit(1)
		}
		reportCache := cache.NewRedis(log, client, cfg.Cache.KeyPrefix, cfg.Cache.TTL)
		warmState(ctx, log, reportCache, state, cfg.Device.ID)
		presenters = append(presenters, reportCache)

		server.LimitExports(api.NewRateLimiter(log, api.NewRedisCounter(client),
			cfg.HTTP.ExportLimit, cfg.HTTP.ExportWindow, cfg.Cache.KeyPrefix))
	}

	brokers, err := setupPublishers(ctx, log, cfg.Publish)
	if err != nil {
		log.Error("failed to set up publishers", sl.Err(err))
		os.Exit(1)
	}
	presenters = append(presenters, brokers...)

	if reportSender != nil {
		server.AddChecker(api.NewSenderHealthChecker(reportSender.Health))
	}
	if buf != nil {
		server.AddChecker(api.NewBufferHealthChecker(buf.Count))
	}
	server.AddChecker(api.NewBreakerHealthChecker(guarded.State))
	server.AddChecker(api.NewFreshnessChecker(state, cfg.HTTP.StaleAfter))

	if err := server.Start(); err != nil {
		log.Error("failed to start http server", sl.Err(err))
		os.Exit(1)
	}

	var background sync.WaitGroup
	if cfg.Archive.Enabled {
		archiver, err := setupArchiver(ctx, log, cfg.Archive, state)
		if err != nil {
			log.Error("failed to set up archive", sl.Err(err))
			os.Exit(1)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			archiver.Start(ctx)
		}()
	}

	var manager *dashboard.Manager
	if buf != nil {
		manager = dashboard.NewManager(log, cfg, sourceCfg, guarded, reportSender, buf, state, presenters...)
	} else {
		manager = dashboard.NewManager(log, cfg, sourceCfg, guarded, reportSender, nil, state, presenters...)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	manager.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop http server", sl.Err(err))
	}

	manager.Stop()
	background.Wait()

	if buf != nil {
		if err := buf.Close(); err != nil {
			log.Error("failed to close buffer", sl.Err(err))
		}
	}

	log.Info("dashboard stopped")
}

func warmState(ctx context.Context, log *slog.Logger, c *cache.Redis, state *dashboard.State, deviceID string) {
	report, err := c.Latest(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn("failed to read cached report", sl.Err(err))
		}
		return
	}
	state.Set(report)
	log.Info("restored cached report", slog.String("report_id", report.ID), slog.Time("generated_at", report.GeneratedAt))
}

func setupPublishers(ctx context.Context, log *slog.Logger, cfg config.PublishConfig) ([]dashboard.Presenter, error) {
	var presenters []dashboard.Presenter

	if cfg.Kafka.Enabled {
		k, err := publish.NewKafka(log, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		presenters = append(presenters, k)
	}

	if cfg.MQTT.Enabled {
		m, err := publish.NewMQTT(log, cfg.MQTT)
		if err != nil {
			return nil, err
		}
		presenters = append(presenters, m)
	}

	if cfg.AMQP.Enabled {
		a, err := publish.NewAMQP(log, cfg.AMQP)
		if err != nil {
			return nil, err
		}
		presenters = append(presenters, a)
	}

	if cfg.PubSub.Enabled {
		p, err := publish.NewPubSub(ctx, log, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		presenters = append(presenters, p)
	}

	for _, p := range presenters {
		log.Info("publisher enabled", slog.String("publisher", p.Name()))
	}

	return presenters, nil
}

func setupArchiver(ctx context.Context, log *slog.Logger, cfg config.ArchiveConfig, state *dashboard.State) (*archive.Archiver, error) {
	var uploader archive.Uploader
	switch cfg.Backend {
	case "minio":
		m, err := archive.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		uploader = m
	case "gcs":
		g, err := archive.NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		uploader = g
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}

	return archive.NewArchiver(log, state, uploader, cfg.Prefix, cfg.Interval), nil
}
