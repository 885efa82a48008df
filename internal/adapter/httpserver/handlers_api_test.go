package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pscheid92/ledsync/internal/domain"
	apperrors "github.com/pscheid92/ledsync/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

var errDiskFull = fmt.Errorf("%w: write db.json: no space left on device", domain.ErrStorage)

// --- /led ---

func TestGetLightFlag_DefaultFalse(t *testing.T) {
	srv := newTestServer(t, &mockGateway{})

	rec := doRequest(srv, http.MethodGet, "/led", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lightState":false}`, rec.Body.String())
}

func TestToggleLightFlag_Twice(t *testing.T) {
	gateway := &mockGateway{}
	srv := newTestServer(t, gateway)

	rec := doRequest(srv, http.MethodPost, "/led", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lightState":true}`, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/led", "")
	assert.JSONEq(t, `{"lightState":true}`, rec.Body.String())

	rec = doRequest(srv, http.MethodPost, "/led", "")
	assert.JSONEq(t, `{"lightState":false}`, rec.Body.String())
}

func TestToggleLightFlag_DoesNotTouchDeviceState(t *testing.T) {
	srv := newTestServer(t, &mockGateway{})

	rec := doRequest(srv, http.MethodPost, "/led", "")
	require.JSONEq(t, `{"lightState":true}`, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/state", "")
	var state domain.DeviceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.LEDOn, "the persisted flag and the live LED state are independent")
}

func TestLightFlag_StorageFailure(t *testing.T) {
	gateway := &mockGateway{
		lightFlagFn: func(context.Context) (bool, error) { return false, errDiskFull },
		toggleFn:    func(context.Context) (bool, error) { return false, errDiskFull },
	}
	srv := newTestServer(t, gateway)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := doRequest(srv, method, "/led", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, method)

		var resp apperrors.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.TypeStorage, resp.Type)
	}
}

// --- /data ---

func TestReadings_EmptyArray(t *testing.T) {
	srv := newTestServer(t, &mockGateway{})

	rec := doRequest(srv, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAppendReading_EchoesAndPersists(t *testing.T) {
	gateway := &mockGateway{}
	srv := newTestServer(t, gateway)

	rec := doRequest(srv, http.MethodPost, "/data", `{"sensor":"temp","v":21.5}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"sensor":"temp","v":21.5}`, rec.Body.String())

	rec = doRequest(srv, http.MethodPost, "/data", `{ "sensor" : "hum", "v" : 40 }`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"sensor":"temp","v":21.5},{"sensor":"hum","v":40}]`, rec.Body.String())
}

func TestAppendReading_RejectsNonObjects(t *testing.T) {
	bodies := []string{`{not json`, `[1,2,3]`, `42`, `"text"`, `null`, ` `}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			gateway := &mockGateway{}
			srv := newTestServer(t, gateway)

			rec := doRequest(srv, http.MethodPost, "/data", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, apperrors.TypeValidation, resp.Type)
			assert.Empty(t, gateway.readings)
		})
	}
}

func TestAppendReading_StorageFailure(t *testing.T) {
	gateway := &mockGateway{
		appendReadingFn: func(context.Context, json.RawMessage) error { return errDiskFull },
	}
	srv := newTestServer(t, gateway)

	rec := doRequest(srv, http.MethodPost, "/data", `{"v":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadings_StorageFailure(t *testing.T) {
	gateway := &mockGateway{
		readingsFn: func(context.Context) ([]json.RawMessage, error) {
			return nil, errors.New("unexpected end of JSON input")
		},
	}
	srv := newTestServer(t, gateway)

	rec := doRequest(srv, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAppendReading_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, &mockGateway{})

	body := `{"blob":"` + strings.Repeat("x", 70*1024) + `"}`
	rec := doRequest(srv, http.MethodPost, "/data", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeTooLarge, resp.Type)
	assert.Equal(t, "/data", resp.Context["route"])
	assert.Equal(t, maxReadingBodySize, resp.Context["limit"])
}

func TestAppendReading_ChunkedBodyTooLarge(t *testing.T) {
	gateway := &mockGateway{}
	srv := newTestServer(t, gateway)

	req := httptest.NewRequest(http.MethodPost, "/data", strings.NewReader(`{"blob":"`+strings.Repeat("x", 70*1024)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "a body without Content-Length is cut off while reading")
	assert.Contains(t, rec.Body.String(), string(apperrors.TypeTooLarge))
	assert.Empty(t, gateway.readings)
}

// --- /state ---

func TestGetState(t *testing.T) {
	state := domain.DeviceState{LEDOn: true, Brightness: 10, PulseRate: 20, ServoAngle: 30}
	srv := newTestServer(t, &mockGateway{}, withState(state))

	rec := doRequest(srv, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ledOn":true,"brightness":10,"pulseRate":20,"servoAngle":30}`, rec.Body.String())
}

func TestCompactObject(t *testing.T) {
	got, err := compactObject([]byte("{\n  \"a\": 1\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	_, err = compactObject([]byte(`[]`))
	assert.Error(t, err)
}
