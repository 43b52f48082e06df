package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/api"
	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/config"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/internal/scheduler"
	"github.com/yakoovad/ensemble-events/internal/service"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic(err)
	}

	l, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.SetDefault(l)

	err = run(ctx, cfg, l)
	if err != nil {
		l.Error("application stopped", zap.Error(err))
	}
	_ = l.Sync()

	if err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *zap.Logger) error {
	l.Info("starting application", zap.String("version", version), zap.String("timezone", cfg.Timezone))

	auth.TokenSecretKey = cfg.TokenSecret

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid database url")
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "failed to ping database")
	}

	if err = db.CreateSchema(ctx, pool); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	l.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	eventRepo := repository.NewPgxEventRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)
	evaluationRepo := repository.NewPgxEvaluationRepository(pool)
	registrationRepo := repository.NewPgxRegistrationRepository(pool)

	event := service.NewEventService(transactor).WithEventRepo(eventRepo).WithTeamRepo(teamRepo)
	team := service.NewTeamService(transactor).WithTeamRepo(teamRepo)
	evaluation := service.NewEvaluationService(transactor).WithEventRepo(eventRepo).WithEvaluationRepo(evaluationRepo)
	registration := service.NewRegistrationService().WithRegistrationRepo(registrationRepo)

	sched := scheduler.New(eventRepo,
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithLocation(cfg.Location()),
		scheduler.WithStepTimeout(cfg.StorageTimeout),
		scheduler.WithLogger(l),
	)
	if err = sched.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	e := echo.New()
	e.HideBanner = true

	api.NewHandler(l).
		WithHealthChecker(api.MustNewHealthChecker(version, api.PostgresCheck(pool, cfg.StorageTimeout))).
		WithEventService(event).
		WithTeamService(team).
		WithEvaluationService(evaluation).
		WithRegistrationService(registration).
		WithRequestTimeout(cfg.StorageTimeout).
		RegisterRoutes(e)

	serverErr := make(chan error, 1)
	go func() {
		l.Info("server starting", zap.String("addr", cfg.Addr))
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		l.Info("shutting down")
	case err = <-serverErr:
		runErr = errors.Wrap(err, "server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = e.Shutdown(shutdownCtx); err != nil {
		l.Error("failed to shut down server", zap.Error(err))
	}
	if err = sched.Stop(shutdownCtx); err != nil {
		l.Error("failed to stop scheduler", zap.Error(err))
	}

	return runErr
}
