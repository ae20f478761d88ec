package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, ReadyResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestLiveAndHealth(t *testing.T) {
	s := NewServer(Config{ServiceName: "stall10n", Version: "test", Port: "0"})

	rec, body := get(t, s.Handler(), "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body.Status)

	rec, _ = get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestReadyRunsChecks(t *testing.T) {
	quotaErr := errors.New("dial tcp 10.0.0.5:6379: connection refused")
	s := NewServer(Config{
		ServiceName: "stall10n",
		Port:        "0",
		DB:          fakePinger{},
		Checks: map[string]Check{
			"quota_store": func(context.Context) error { return quotaErr },
		},
	})

	rec, body := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", body.Checks["service"])

	s.SetReady(true)
	rec, body = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "unavailable", body.Checks["quota_store"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	quotaErr = nil
	rec, body = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body.Status)
}
