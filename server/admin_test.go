package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arenanet/session"
)

func startRunner(t *testing.T) (*Runner, *session.Manager) {
	t.Helper()
	log := zap.NewNop().Sugar()
	mgr := session.NewManager(log, session.DefaultOptions(), nil, nil)
	runner := NewRunner(log, mgr, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = runner.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return runner, mgr
}

func newTestAdmin(t *testing.T) (http.Handler, *session.Manager) {
	runner, mgr := startRunner(t)
	return NewAdmin(zap.NewNop().Sugar(), runner, mgr).Router(), mgr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	h, _ := newTestAdmin(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRoomsAndMatchThroughRunner(t *testing.T) {
	h, mgr := newTestAdmin(t)

	rec := do(t, h, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/match", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/rooms", `{"name":"arena","capacity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool { return len(mgr.Status().Rooms) == 1 }, time.Second, time.Millisecond)
	rec = do(t, h, http.MethodGet, "/rooms", "")
	var rooms []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "arena", rooms[0]["name"])
	assert.EqualValues(t, 2, rooms[0]["capacity"])

	rec = do(t, h, http.MethodPost, "/match", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool { return mgr.Status().Match != nil }, time.Second, time.Millisecond)

	rec = do(t, h, http.MethodPost, "/match", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])

	rec = do(t, h, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "standalone", body["role"])
	assert.NotNil(t, body["match"])
}

func TestCreateRoomRejectsBadJSON(t *testing.T) {
	h, _ := newTestAdmin(t)
	rec := do(t, h, http.MethodPost, "/rooms", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	h, mgr := newTestAdmin(t)

	rec := do(t, h, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode(t, rec)
	assert.EqualValues(t, 16, cfg["inputIntervalMs"])
	assert.EqualValues(t, 33, cfg["playerStateIntervalMs"])
	assert.EqualValues(t, 1000, cfg["pingIntervalMs"])
	assert.Equal(t, "eliminate", cfg["orphanPolicy"])

	rec = do(t, h, http.MethodPost, "/config", `{"playerStateIntervalMs":50,"orphanPolicy":"freeze"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decode(t, rec)["config"].(map[string]any)
	assert.EqualValues(t, 50, applied["playerStateIntervalMs"])
	assert.EqualValues(t, 16, applied["inputIntervalMs"], "omitted fields keep their value")
	assert.Equal(t, "freeze", applied["orphanPolicy"])

	require.Eventually(t, func() bool {
		st := mgr.Status()
		return st.Cadence.PlayerStateInterval == 50*time.Millisecond && st.Orphan == session.OrphanFreeze
	}, time.Second, time.Millisecond)
}

func TestConfigValidation(t *testing.T) {
	h, _ := newTestAdmin(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"inputIntervalMs":`},
		{"zero interval", `{"inputIntervalMs":0}`},
		{"negative interval", `{"pingIntervalMs":-5}`},
		{"unknown policy", `{"orphanPolicy":"ghost"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/config", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, mgr := newTestAdmin(t)
	require.Eventually(t, func() bool { return mgr.Status().Tick > 2 }, time.Second, time.Millisecond)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "standalone", body["role"])
	metrics := body["metrics"].(map[string]any)
	assert.Contains(t, metrics, "tick_count")
	assert.Contains(t, metrics, "decode_errors")
	assert.Contains(t, metrics, "avg_tick_ms")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestAdmin(t)
	req := httptest.NewRequest(http.MethodOptions, "/config", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
