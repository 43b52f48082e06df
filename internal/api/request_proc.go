package api

import (
	"github.com/labstack/echo/v4"
	"github.com/yakoovad/ensemble-events/internal/service"
)

type requestStep[T any] func(echo.Context, *T) *service.Error

// processRequest runs steps in order and stops at the first failure.
func processRequest[T any](e echo.Context, req *T, steps ...requestStep[T]) *service.Error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}
