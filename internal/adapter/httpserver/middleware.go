package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ledsync/internal/domain"
	apperrors "github.com/pscheid92/ledsync/internal/platform/errors"
)

// ErrorHandlingMiddleware renders handler errors as structured JSON.
// An oversized reading becomes a too_large error and a bare storage failure
// becomes a storage error; routing errors (404, 405) pass through to Echo.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				if httpErr.Code != http.StatusRequestEntityTooLarge {
					return err
				}
				return HandleError(c, apperrors.TooLargeError("request body too large").
					WithContext("route", c.Path()).
					WithContext("limit", maxReadingBodySize))
			}

			return HandleError(c, classify(err))
		}
	}
}

// classify keeps structured errors as they are and tags an unwrapped
// domain.ErrStorage so the client sees a storage failure, not a generic 500.
func classify(err error) error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return err
	}
	if errors.Is(err, domain.ErrStorage) {
		return apperrors.StorageError("storage unavailable", err)
	}
	return err
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"route", c.Path(),
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound, apperrors.TypeTooLarge:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeRateLimit:
		slog.WarnContext(ctx, "Request throttled", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}

// HandleError writes err as a structured JSON response.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}
