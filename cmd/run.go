package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/google/uuid"
	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/collector"
	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/enrich"
	"github.com/metal-toolbox/devicesync/internal/handlers"
	"github.com/metal-toolbox/devicesync/internal/log"
	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/profiling"
	"github.com/metal-toolbox/devicesync/internal/store"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/metal-toolbox/devicesync/internal/tasks"
	"github.com/metal-toolbox/devicesync/internal/version"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// app holds what every command needs for one invocation.
type app struct {
	config     *configuration.Configuration
	logger     *logrus.Entry
	repository store.Repository
	tokens     vendorapi.TokenProvider
	shutdown   func()
}

// bootstrap loads configuration and builds the vendor API collaborators.
// The returned context is cancelled on SIGINT/SIGTERM.
func bootstrap(ctx context.Context, args *model.Args) (context.Context, *app, error) {
	config, err := configuration.Load(args)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return ctx, nil, err
	}

	slog.Info("Configuration loaded", config.AsLogFields()...)

	log.SetLevel(config.LogLevel)

	if redacted, err := config.Redacted(); err == nil {
		slog.Debug("Effective configuration", "config", redacted)
	}

	if config.EnableMetrics {
		metrics.ListenAndServe()
		version.ExportBuildInfoMetric()
	}

	if config.EnableProfiling {
		profiling.Enable()
	}

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)

	logrusLogger := log.NewLogrusLogger(config.LogLevel)
	otel.SetLogger(log.NewLogr(logrusLogger))

	runID := uuid.NewString()
	logger := logrusLogger.WithFields(logrus.Fields{"app": model.AppName, "runID": runID})

	logger.WithFields(version.Current().AsMap()).Infof("Initializing %s", model.AppName)

	repository, err := store.NewRepository(config, logger)
	if err != nil {
		slog.Error("Failed to create repository", "error", err)
		otelShutdown(ctx)

		return ctx, nil, err
	}

	tokens, err := store.NewTokenProvider(ctx, config)
	if err != nil {
		slog.Error("Failed to create token provider", "error", err)
		otelShutdown(ctx)

		return ctx, nil, err
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ctx, cancel := context.WithCancel(ctx)

	// Cancel the context when we receive a termination signal.
	go func() {
		select {
		case s := <-termChan:
			slog.Info("Received signal for termination, exiting...", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	a := &app{
		config:     config,
		logger:     logger,
		repository: repository,
		tokens:     tokens,
		shutdown: func() {
			signal.Stop(termChan)
			cancel()
			otelShutdown(context.Background())
		},
	}

	return ctx, a, nil
}

func (a *app) token(ctx context.Context) (string, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		slog.Error("Failed to obtain access token", "error", err)
		return "", err
	}

	return token, nil
}

func (a *app) collector() *collector.Collector {
	return collector.New(
		a.repository,
		a.logger.WithField("component", "collector"),
		collector.WithPageDelay(a.config.Sync.PageDelay),
	)
}

func (a *app) pipeline() *enrich.Pipeline {
	return enrich.New(
		a.repository,
		a.logger.WithField("component", "enrich"),
		enrich.WithRetryPolicy(a.config.Sync.MaxAttempts, a.config.Sync.BackoffUnit),
		enrich.WithItemDelay(a.config.Sync.ItemDelay),
		enrich.WithConcurrency(a.config.Concurrency),
	)
}

func (a *app) machine() *activity.Machine {
	return activity.New(
		a.repository,
		a.logger.WithField("component", "activity"),
		activity.WithPollInterval(a.config.Sync.PollInterval),
		activity.WithMaxChecks(a.config.Sync.MaxChecks),
	)
}

func (a *app) handler(token string) *handlers.Handler {
	clients := &tasks.Clients{
		Activities: a.machine(),
		Reports:    vendorapi.NewReportDownloader(a.logger.WithField("component", "report")),
		Token:      token,
		ReportDir:  a.config.Export.ReportDir,
	}

	return handlers.NewHandler(clients, tasks.NewLogPublisher(a.logger.WithField("component", "tasks")))
}
