package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ledsync/internal/domain"
	apperrors "github.com/pscheid92/ledsync/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestErrorPaths_Routes(t *testing.T) {
	redisDown := fmt.Errorf("%w: dial tcp 10.0.0.3:6379: connection refused", domain.ErrStorage)

	tests := []struct {
		name       string
		gateway    *mockGateway
		method     string
		path       string
		body       string
		wantStatus int
		wantType   apperrors.ErrorType
		wantMsg    string
	}{
		{
			name:       "toggle storage down",
			gateway:    &mockGateway{toggleFn: func(context.Context) (bool, error) { return false, redisDown }},
			method:     http.MethodPost,
			path:       "/led",
			wantStatus: http.StatusInternalServerError,
			wantType:   apperrors.TypeStorage,
			wantMsg:    "failed to toggle light state",
		},
		{
			name:       "light flag storage down",
			gateway:    &mockGateway{lightFlagFn: func(context.Context) (bool, error) { return false, redisDown }},
			method:     http.MethodGet,
			path:       "/led",
			wantStatus: http.StatusInternalServerError,
			wantType:   apperrors.TypeStorage,
			wantMsg:    "failed to read light state",
		},
		{
			name:       "reading not an object",
			gateway:    &mockGateway{},
			method:     http.MethodPost,
			path:       "/data",
			body:       `[{"temp":21}]`,
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
			wantMsg:    "request body must be a JSON object",
		},
		{
			name:       "reading append storage down",
			gateway:    &mockGateway{appendReadingFn: func(context.Context, json.RawMessage) error { return redisDown }},
			method:     http.MethodPost,
			path:       "/data",
			body:       `{"temp":21}`,
			wantStatus: http.StatusInternalServerError,
			wantType:   apperrors.TypeStorage,
			wantMsg:    "failed to store reading",
		},
		{
			name:       "readings list storage down",
			gateway:    &mockGateway{readingsFn: func(context.Context) ([]json.RawMessage, error) { return nil, redisDown }},
			method:     http.MethodGet,
			path:       "/data",
			wantStatus: http.StatusInternalServerError,
			wantType:   apperrors.TypeStorage,
			wantMsg:    "failed to read readings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.gateway)

			rec := doRequest(srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, tt.wantMsg, resp.Error)
			assert.NotContains(t, rec.Body.String(), "10.0.0.3", "causes stay in the log")
		})
	}
}

func TestErrorPaths_RoutingErrorsPassThrough(t *testing.T) {
	srv := newTestServer(t, &mockGateway{})

	rec := doRequest(srv, http.MethodDelete, "/led", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"type"`, "echo renders its own routing errors")

	rec = doRequest(srv, http.MethodPut, "/data", `{"temp":21}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestErrorHandlingMiddleware_BareStorageErrorIsTagged(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/data", nil), rec)

	handler := ErrorHandlingMiddleware()(func(echo.Context) error {
		return fmt.Errorf("append reading: %w", domain.ErrStorage)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeStorage, resp.Type)
	assert.Equal(t, "storage unavailable", resp.Error)
}

func TestErrorHandlingMiddleware_UnknownErrorIsInternal(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/state", nil), rec)

	handler := ErrorHandlingMiddleware()(func(echo.Context) error {
		return errors.New("encode state: unsupported value")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestErrorHandlingMiddleware_BodyLimitBecomesTooLarge(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/data", nil), rec)
	c.SetPath("/data")

	handler := ErrorHandlingMiddleware()(func(echo.Context) error {
		return echo.ErrStatusRequestEntityTooLarge
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeTooLarge, resp.Type)
	assert.Equal(t, "/data", resp.Context["route"])
}

func TestErrorHandlingMiddleware_NoError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/led", nil), rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return c.JSON(http.StatusOK, lightFlagResponse{LightState: true})
	})

	require.NoError(t, handler(c))
	assert.JSONEq(t, `{"lightState":true}`, rec.Body.String())
}

func TestHandleErrorWithNil(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/led", nil), rec)

	require.NoError(t, HandleError(c, nil))
	assert.Equal(t, 0, rec.Body.Len())
}
