package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"match-engine-go/internal/api/handler"
	"match-engine-go/internal/api/router"
	"match-engine-go/internal/config"
	"match-engine-go/internal/evaluation"
	"match-engine-go/internal/extractor"
	appLogger "match-engine-go/internal/logger"
	"match-engine-go/internal/parser"
	"match-engine-go/internal/processor"
	"match-engine-go/internal/scoring"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/tracing"
)

var serviceName = "match-engine"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	initLogger(cfg)
	glog.Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, &cfg.Tracing)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()
	appLogger.Info().Msg("Storage initialized")

	textExtractor := newTextExtractor(cfg)
	keywordCatalog := parser.DefaultCatalog()
	profileParser := parser.NewCandidateProfileParser(keywordCatalog)
	jdParser := parser.NewRequirementsParser(keywordCatalog)

	cvProcessor := processor.NewCVProcessor(storageManager.MySQL, profileParser, cfg.ActiveParserVersion)
	scoringClient := scoring.NewClient(&cfg.Scoring)

	lockWait := 10 * time.Second
	if cfg.Evaluation.LockWaitTimeout != "" {
		if d, err := time.ParseDuration(cfg.Evaluation.LockWaitTimeout); err == nil {
			lockWait = d
		} else {
			appLogger.Warn().Str("value", cfg.Evaluation.LockWaitTimeout).Msg("Invalid lock_wait_timeout, using default")
		}
	}

	var locker evaluation.Locker
	var reqCache evaluation.RequirementsCache
	if storageManager.Redis != nil {
		locker = storageManager.Redis
		reqCache = storageManager.Redis
	}
	orchestrator := evaluation.NewOrchestrator(
		storageManager.MySQL,
		locker,
		reqCache,
		scoringClient,
		jdParser,
		evaluation.Options{
			Workers:         cfg.Evaluation.Workers,
			LockWaitTimeout: lockWait,
		},
	)

	cvHandler := handler.NewCVHandler(cfg, storageManager, textExtractor, cvProcessor)
	jobHandler := handler.NewJobHandler(cfg, storageManager, jdParser)
	evalHandler := handler.NewEvaluationHandler(storageManager, orchestrator, scoringClient)

	var stopConsumer chan<- struct{}
	if storageManager.RabbitMQ != nil {
		stopConsumer, err = cvHandler.StartCVUploadConsumer(ctx)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("Failed to start CV upload consumer")
		}
		appLogger.Info().Msg("CV upload consumer started")
	} else {
		appLogger.Warn().Msg("RabbitMQ not configured, CV uploads will be parsed inline")
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, &router.Handlers{
		CV:         cvHandler,
		Job:        jobHandler,
		Evaluation: evalHandler,
	}, cfg.Server.APIKeys)
	appLogger.Info().Str("address", cfg.Server.Address).Msg("HTTP server starting")

	go func() {
		if err := h.Run(); err != nil {
			appLogger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info().Msg("Termination signal received, shutting down")

	if stopConsumer != nil {
		close(stopConsumer)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warn().Err(err).Msg("Tracing shutdown failed")
	}
	appLogger.Info().Msg("Shutdown complete")
}

// newTextExtractor prefers Tika when configured and falls back to the local
// PDF reader otherwise.
func newTextExtractor(cfg *config.Config) extractor.TextExtractor {
	if cfg.Tika.ServerURL != "" {
		opts := []extractor.TikaOption{extractor.WithMetadata(true)}
		if cfg.Tika.Timeout > 0 {
			opts = append(opts, extractor.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
		}
		appLogger.Info().Str("server", cfg.Tika.ServerURL).Msg("Using Tika text extractor")
		return extractor.NewTikaExtractor(cfg.Tika.ServerURL, opts...)
	}
	appLogger.Info().Msg("Tika not configured, using local PDF extractor")
	return extractor.NewLocalPDFExtractor()
}

// initLogger sets up zerolog writing to console and file, then routes the
// hertz framework logs through the same sink.
func initLogger(cfg *config.Config) {
	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	if cfg.Logger.FilePath != "" {
		fileWriter, err := os.OpenFile(cfg.Logger.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("cannot open log file %s: %v, logging to console only", cfg.Logger.FilePath, err)
		} else {
			consoleWriter := zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: cfg.Logger.TimeFormat,
			}
			multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)
			appLogger.Logger = zerolog.New(multiWriter).With().Timestamp().Logger()
			zlog.Logger = appLogger.Logger
		}
	}

	appLogger.Logger = appLogger.Logger.With().Str("app", serviceName).Logger()
	zlog.Logger = appLogger.Logger

	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	glog.SetLevel(glog.LevelInfo)
}
