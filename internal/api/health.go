package api

import (
	"context"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type HealthChecker interface {
	HealthCheck() echo.HandlerFunc
}

type healthChecker struct {
	health *health.Health
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

func MustNewHealthChecker(version string, checks ...health.Config) HealthChecker {
	h, err := health.New(health.WithComponent(health.Component{Name: "ensemble-events", Version: version}))
	if err != nil {
		panic(errors.Wrap(err, "failed to create health checker"))
	}

	for _, check := range checks {
		if err = h.Register(check); err != nil {
			panic(errors.Wrapf(err, "failed to register health check %q", check.Name))
		}
	}

	return &healthChecker{
		health: h,
	}
}

// PostgresCheck reports the store unavailable when a ping does not succeed within timeout.
func PostgresCheck(p Pinger, timeout time.Duration) health.Config {
	return health.Config{
		Name:      "postgres",
		Timeout:   timeout,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			return errors.Wrap(p.Ping(ctx), "postgres ping failed")
		},
	}
}

func (h *healthChecker) HealthCheck() echo.HandlerFunc {
	return echo.WrapHandler(h.health.Handler())
}
