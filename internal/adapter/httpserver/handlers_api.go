package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/ledsync/internal/platform/errors"
)

type lightFlagResponse struct {
	LightState bool `json:"lightState"`
}

func (s *Server) handleGetLightFlag(c echo.Context) error {
	flag, err := s.gateway.LightFlag(c.Request().Context())
	if err != nil {
		return apperrors.StorageError("failed to read light state", err)
	}

	if err := c.JSON(http.StatusOK, lightFlagResponse{LightState: flag}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleToggleLightFlag flips the persisted flag. It never touches the live
// device state shared over WebSocket.
func (s *Server) handleToggleLightFlag(c echo.Context) error {
	flag, err := s.gateway.ToggleLightFlag(c.Request().Context())
	if err != nil {
		return apperrors.StorageError("failed to toggle light state", err)
	}

	if err := c.JSON(http.StatusOK, lightFlagResponse{LightState: flag}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetReadings(c echo.Context) error {
	readings, err := s.gateway.Readings(c.Request().Context())
	if err != nil {
		return apperrors.StorageError("failed to read readings", err)
	}

	if err := c.JSON(http.StatusOK, readings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleAppendReading stores the request body as one reading and echoes it back.
func (s *Server) handleAppendReading(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return err
	}
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}

	reading, err := compactObject(body)
	if err != nil {
		return apperrors.ValidationError("request body must be a JSON object")
	}

	if err := s.gateway.AppendReading(c.Request().Context(), reading); err != nil {
		return apperrors.StorageError("failed to store reading", err)
	}

	if err := c.JSONBlob(http.StatusCreated, reading); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetState(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.state.Get()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// compactObject returns body without insignificant whitespace, or an error
// unless body is exactly one JSON object.
func compactObject(body []byte) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode body: null is not an object")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, fmt.Errorf("compact body: %w", err)
	}
	return buf.Bytes(), nil
}
