package api

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/service"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"github.com/yakoovad/ensemble-events/pkg/metrics"
	"go.uber.org/zap"
)

const claimsKey = "claims"

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

// MetricsMiddleware records every request under its route pattern, not the raw path.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			metrics.RecordHTTPRequest(route, c.Request().Method, strconv.Itoa(status), time.Since(start))
			return err
		}
	}
}

// TimeoutMiddleware cancels the request context after d. Zero disables it.
func TimeoutMiddleware(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// AuthMiddleware accepts bearer tokens whose role is one of roles.
func AuthMiddleware(roles ...auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := logger.FromContext(c.Request().Context())

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return transportError(c, service.NewError(service.ErrorCodeUnauthorized, "missing bearer token"))
			}

			claims, err := auth.VerifyToken(token)
			if err != nil {
				l.Warn("token rejected", zap.Error(err))
				return transportError(c, service.NewError(service.ErrorCodeUnauthorized, "invalid token"))
			}

			if !slices.Contains(roles, claims.Role) {
				l.Warn("role not allowed",
					zap.String("role", string(claims.Role)),
					zap.String("subject", claims.Subject))
				return transportError(c, service.NewError(service.ErrorCodeForbidden, "role not allowed"))
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func claimsFromContext(c echo.Context) *auth.TokenClaims {
	if claims, ok := c.Get(claimsKey).(*auth.TokenClaims); ok {
		return claims
	}
	return nil
}

// actingUser resolves the user a write is made on behalf of. Participants always
// act as their token subject; organizers may name any user.
func actingUser(c echo.Context, requested string) (string, *service.Error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Subject == "" {
		return requested, nil
	}

	if claims.Role == auth.RoleOrganizer && requested != "" {
		return requested, nil
	}
	if requested != "" && requested != claims.Subject {
		return "", service.NewError(service.ErrorCodeForbidden, "cannot act on behalf of another user")
	}
	return claims.Subject, nil
}
