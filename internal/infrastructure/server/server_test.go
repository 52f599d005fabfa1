package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	srv.windows.Open("sess_1", "notes")

	var body struct {
		Status      string `json:"status"`
		HubID       string `json:"hub_id"`
		Connections int    `json:"connections"`
		Windows     struct {
			TotalWindows int `json:"total_windows"`
		} `json:"windows"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, srv.Hub().ID(), body.HubID)
	assert.Equal(t, 0, body.Connections)
	assert.Equal(t, 1, body.Windows.TotalWindows)
}

func TestListWindows(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	srv.windows.Open("sess_1", "notes")
	srv.windows.Open("sess_2", "mail")

	var all struct {
		Windows []map[string]any `json:"windows"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/windows", &all))
	assert.Len(t, all.Windows, 2)

	var mine struct {
		Windows []map[string]any `json:"windows"`
	}
	getJSON(t, ts.URL+"/windows?session_id=sess_2", &mine)
	require.Len(t, mine.Windows, 1)
	assert.Equal(t, "mail", mine.Windows[0]["addon"])
}

func TestMetricsEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	// One request so the HTTP histogram has a sample
	getJSON(t, ts.URL+"/health", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(text), "windowbus_")

	var snap map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/metrics/json", &snap))
	assert.Contains(t, snap, "active_connections")
}

func TestWebSocketRequiresSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/ws", &body))
	assert.Contains(t, body["error"], "session_id")
}

func TestRateLimitEnabled(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 1
	})

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/", nil))
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, ts.URL+"/", nil))
}

func TestShutdownWithoutRun(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
