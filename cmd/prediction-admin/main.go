package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/adapters/reaper"
	"github.com/rohittupe/prediction-service/internal/bootstrap"
	"github.com/rohittupe/prediction-service/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	// needsConfig loads service configuration before running.
	needsConfig bool
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultSweepTimeout     = 5 * time.Minute
	defaultAPIURL           = "http://localhost:8080"
)

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Out: os.Stdout}
	if cmd.needsConfig {
		cfg, err := bootstrap.LoadConfig()
		if err != nil {
			logger.ErrorContext(ctx, "load config", "error", err)
			os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
		}
		cmdCtx.Config = cfg
	}

	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run Postgres schema migrations",
			needsConfig: true,
			run:         runMigrations,
		},
		"sweep": {
			name:        "sweep",
			description: "Run one retention sweep against the configured job store",
			needsConfig: true,
			run:         runSweep,
		},
		"submit": {
			name:        "submit",
			description: "Submit a prediction request to a running service",
			run:         runSubmit,
		},
		"status": {
			name:        "status",
			description: "Show the status of a prediction job",
			run:         runStatus,
		},
		"result": {
			name:        "result",
			description: "Show the result of a prediction job",
			run:         runResult,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := fprintf(w, "Usage: prediction-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := fprintf(w, "Available commands:\n"); err != nil {
		return err
	}
	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := fprintf(w, "  %-10s %s\n", name, all[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

type sweepOptions struct {
	Timeout   time.Duration
	BatchSize int
}

func parseSweepFlags(args []string, cfg config.ReaperConfig) (sweepOptions, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := sweepOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultSweepTimeout, "Maximum duration of the sweep")
	fs.IntVar(&opts.BatchSize, "batch-size", cfg.BatchSize, "Maximum jobs handled per store operation")

	if err := fs.Parse(args); err != nil {
		return sweepOptions{}, err
	}
	if opts.Timeout <= 0 {
		return sweepOptions{}, errors.New("--timeout must be greater than zero")
	}
	if opts.BatchSize <= 0 {
		return sweepOptions{}, errors.New("--batch-size must be greater than zero")
	}
	return opts, nil
}

type sweepSummary struct {
	Store            string `json:"store"`
	Abandoned        int64  `json:"abandoned"`
	DeletedCompleted int64  `json:"deleted_completed"`
	DeletedFailed    int64  `json:"deleted_failed"`
	Elapsed          string `json:"elapsed"`
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args, cmdCtx.Config.Reaper)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Config
	if cfg.Jobs.Store == config.StoreMemory {
		return errors.New("sweep needs a shared store; JOB_STORE=memory only lives inside the service process")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	retention, err := bootstrap.BuildRetention(cfg.Jobs, cmdCtx.Logger)
	if err != nil {
		return err
	}
	infra, err := bootstrap.ConnectInfrastructure(ctx, &cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	store, err := bootstrap.NewJobBackend(bootstrap.StoreDeps{
		Backend:   cfg.Jobs.Store,
		Infra:     infra,
		Retention: retention,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return err
	}

	reaperCfg := cfg.Reaper
	reaperCfg.BatchSize = opts.BatchSize
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Store:     store,
		Retention: retention,
		Config:    reaperCfg,
		Logger:    cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	report, err := runner.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return printJSON(cmdCtx.Out, sweepSummary{
		Store:            string(cfg.Jobs.Store),
		Abandoned:        report.Abandoned,
		DeletedCompleted: report.DeletedCompleted,
		DeletedFailed:    report.DeletedFailed,
		Elapsed:          report.Elapsed.String(),
	})
}

type submitOptions struct {
	API     string
	Request model.PredictionRequest
	Wait    time.Duration
}

func parseSubmitFlags(args []string) (submitOptions, error) {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts    submitOptions
		balance float64
		size    float64
		date    string
	)
	fs.StringVar(&opts.API, "api", apiDefault(), "Base URL of the prediction service")
	fs.StringVar(&opts.Request.MemberID, "member", "", "Member id (required)")
	fs.Float64Var(&balance, "balance", 0, "Current balance")
	fs.Float64Var(&size, "size", 0, "Size of the last purchase")
	fs.StringVar(&date, "date", "", "Date of the last purchase (YYYY-MM-DD)")
	fs.DurationVar(&opts.Wait, "wait", 0, "Poll for the result for up to this long")

	if err := fs.Parse(args); err != nil {
		return submitOptions{}, err
	}
	if opts.Request.MemberID == "" {
		return submitOptions{}, errors.New("--member is required")
	}
	if opts.Wait < 0 {
		return submitOptions{}, errors.New("--wait must not be negative")
	}
	opts.Request.Balance = model.Float64(balance)
	opts.Request.LastPurchaseSize = model.Float64(size)
	if date != "" {
		d, err := model.ParseDate(date)
		if err != nil {
			return submitOptions{}, fmt.Errorf("--date: %w", err)
		}
		opts.Request.LastPurchaseDate = &d
	}
	return opts, nil
}

func runSubmit(cmdCtx *commandContext, args []string) error {
	opts, err := parseSubmitFlags(args)
	if err != nil {
		return err
	}
	client := newAPIClient(opts.API)

	job, err := client.Submit(cmdCtx.Ctx, opts.Request)
	if err != nil {
		return err
	}
	if opts.Wait == 0 {
		return printJSON(cmdCtx.Out, job)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Wait)
	defer cancel()
	if _, err := client.AwaitTerminal(ctx, job.JobID, pollInterval); err != nil {
		return err
	}
	// Failed jobs surface as an apiError carrying the stored reason.
	result, err := client.Result(cmdCtx.Ctx, job.JobID)
	if err != nil {
		return err
	}
	return printJSON(cmdCtx.Out, result)
}

func parseJobFlags(name string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	api := fs.String("api", apiDefault(), "Base URL of the prediction service")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if fs.NArg() != 1 {
		return "", "", fmt.Errorf("usage: prediction-admin %s [--api URL] <job-id>", name)
	}
	return *api, fs.Arg(0), nil
}

func runStatus(cmdCtx *commandContext, args []string) error {
	api, id, err := parseJobFlags("status", args)
	if err != nil {
		return err
	}
	status, err := newAPIClient(api).Status(cmdCtx.Ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmdCtx.Out, status)
}

func runResult(cmdCtx *commandContext, args []string) error {
	api, id, err := parseJobFlags("result", args)
	if err != nil {
		return err
	}
	result, err := newAPIClient(api).Result(cmdCtx.Ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmdCtx.Out, result)
}

func apiDefault() string {
	if v := os.Getenv("PREDICTION_API_URL"); v != "" {
		return v
	}
	return defaultAPIURL
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	return fprintf(w, format, args...)
}

func fprintf(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
