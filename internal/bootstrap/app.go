package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/adapters/jobrunner"
	"github.com/rohittupe/prediction-service/internal/adapters/reaper"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/predictor"
	httpx "github.com/rohittupe/prediction-service/internal/http"
	"github.com/rohittupe/prediction-service/internal/service"
)

// App is the wired prediction service.
type App struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	infra         *Infrastructure
	observability ObservabilityContainer
	retention     *job.DynamicRetention
	store         JobBackend
	runner        *jobrunner.Runner
	reaper        *reaper.Runner
	predictions   *service.PredictionService
	server        *http.Server
}

// AppDeps groups dependencies for NewApp.
type AppDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// Infra overrides ConnectInfrastructure; tests pass a pre-built value.
	Infra *Infrastructure
}

// NewApp connects infrastructure and wires every component.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention, err := BuildRetention(cfg.Jobs, logger)
	if err != nil {
		return nil, err
	}

	infra := deps.Infra
	if infra == nil {
		infra, err = ConnectInfrastructure(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	app := &App{
		cfg:           cfg,
		logger:        logger,
		infra:         infra,
		observability: BuildObservability(logger, cfg.Observability),
		retention:     retention,
	}
	if err := app.wire(); err != nil {
		return nil, errors.Join(err, app.Close())
	}
	return app, nil
}

func (a *App) wire() error {
	store, err := NewJobBackend(StoreDeps{
		Backend:   a.cfg.Jobs.Store,
		Infra:     a.infra,
		Retention: a.retention,
		KeyPrefix: a.cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return err
	}
	a.store = store

	pred := predictor.New(predictor.Options{FailureRate: a.cfg.Predictor.FailureRate})
	if a.cfg.Predictor.FailureRate > 0 {
		a.logger.Warn("simulated prediction failures enabled", "failure_rate", a.cfg.Predictor.FailureRate)
	}

	a.runner, err = jobrunner.NewRunner(jobrunner.RunnerOptions{
		Store:           store,
		Predictor:       pred,
		Logger:          a.logger,
		MaxConcurrency:  a.cfg.Runner.MaxConcurrency,
		StoreTimeout:    a.cfg.Runner.StoreTimeout,
		Metrics:         a.observability.Sink,
		FailureNotifier: a.observability.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("job runner: %w", err)
	}

	a.predictions, err = service.NewPredictionService(service.PredictionServiceOptions{
		Store:     store,
		Scheduler: a.runner,
		Predictor: pred,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("prediction service: %w", err)
	}

	if a.cfg.Reaper.Enabled {
		a.reaper, err = reaper.NewRunner(reaper.RunnerOptions{
			Store:     store,
			Retention: a.retention,
			Config:    a.cfg.Reaper,
			Logger:    a.logger,
			Metrics:   a.observability.Sink,
		})
		if err != nil {
			return fmt.Errorf("reaper: %w", err)
		}
	}

	a.server = NewHTTPServer(HTTPServerConfig{
		HTTP: a.cfg.HTTP,
		Services: httpx.RouterServices{
			Predictions: a.predictions,
			Registry:    a.observability.Registry,
			Metrics:     a.observability.Sink,
			Ready:       a.ready,
		},
		Logger: a.logger,
	})
	return nil
}

// ready fails once the runner stops accepting jobs or a store connection is down.
func (a *App) ready(ctx context.Context) error {
	if !a.runner.Accepting() {
		return errors.New("job runner is shutting down")
	}
	return a.infra.Ping(ctx)
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP and runs background workers until ctx is cancelled or one of them fails.
// Shutdown stops accepting requests first, then waits for in-flight predictions.
func (a *App) Run(ctx context.Context) error {
	ln, err := Listen(ctx, a.server.Addr, a.cfg.HTTP.MaxConnections)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return Serve(a.server, ln, a.logger)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down services...")
		return a.shutdown()
	})

	if a.reaper != nil {
		g.Go(func() error {
			return a.reaper.Run(gctx)
		})
	}

	if a.cfg.Jobs.PolicyFile != "" {
		g.Go(func() error {
			return WatchRetention(gctx, a.cfg.Jobs, a.retention, a.logger)
		})
	}

	return g.Wait()
}

func (a *App) shutdown() error {
	httpCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeouts.Shutdown)
	defer cancel()
	httpErr := ShutdownHTTPServer(httpCtx, a.server, a.logger)

	runnerCtx, cancelRunner := context.WithTimeout(context.Background(), a.cfg.Runner.ShutdownTimeout)
	defer cancelRunner()
	var runnerErr error
	if err := a.runner.Shutdown(runnerCtx); err != nil {
		runnerErr = fmt.Errorf("drain job runner: %w", err)
		a.logger.Warn("in-flight predictions abandoned at shutdown", "count", a.runner.InFlight(), "error", err)
	} else {
		a.logger.Info("job runner drained")
	}

	return errors.Join(httpErr, runnerErr)
}

// Close releases connections. It is safe to call after Run returns.
func (a *App) Close() error {
	return errors.Join(a.observability.Close(), a.infra.Close())
}
