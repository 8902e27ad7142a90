package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/playback-hub-go/internal/auth"
	"github.com/strefethen/playback-hub-go/internal/config"
	"github.com/strefethen/playback-hub-go/internal/hub"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		SQLiteDBPath:             filepath.Join(t.TempDir(), "hub.db"),
		NodeEnv:                  "development",
		AllowTestMode:            true,
		JWTSecret:                "this-is-a-development-secret-string-32chars",
		JWTIssuer:                "playback-hub",
		JWTAudience:              "playback-hub-client",
		JWTAccessTokenExpirySec:  3600,
		FreshnessWindowSec:       300,
		HubSendBuffer:            32,
		HubCallsPerSecond:        100,
		HubCallBurst:             100,
		HubMaxConnectionsPerUser: 10,
		AuditRetentionDays:       30,
		AuditPruneSchedule:       "0 3 * * *",
	}
}

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	handler, shutdown, err := NewHandler(cfg, nil, Options{})
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, shutdown(ctx))
		server.Close()
	})
	return server
}

func getJSON(t *testing.T, server *httptest.Server, path, userID string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("x-test-mode", "true")
		req.Header.Set("x-test-user", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestServer_PublicRoutes(t *testing.T) {
	server := newTestServer(t, testConfig(t))

	status, body := getJSON(t, server, "/v1/health", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "healthy", body["status"])

	status, body = getJSON(t, server, "/v1/health/ready", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ready", body["status"])

	status, _ = getJSON(t, server, "/v1/openapi.json", "")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(metricsBody), "playback_hub_connections_current")
}

func TestServer_ProtectedRoutesRequireAuth(t *testing.T) {
	server := newTestServer(t, testConfig(t))

	for _, path := range []string{"/v1/session/whoami", "/v1/playback/devices", "/v1/devices/known", "/v1/audit/events", "/v1/system/info"} {
		status, body := getJSON(t, server, path, "")
		require.Equal(t, http.StatusUnauthorized, status, path)
		require.NotNil(t, body["error"], path)
	}
}

func dialHub(t *testing.T, server *httptest.Server, cfg config.Config, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateAccessToken(cfg, auth.TokenPayload{UserID: userID})
	require.NoError(t, err)

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + hub.Path + "?access_token=" + url.QueryEscape(token)
	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0 Firefox/121.0")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type         string            `json:"type"`
	InvocationID string            `json:"invocationId"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	Result       json.RawMessage   `json:"result"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != "ping" {
			return f
		}
	}
}

func TestServer_HubEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	server := newTestServer(t, cfg)

	conn := dialHub(t, server, cfg, "user-1")
	greeting := readFrame(t, conn)
	require.Equal(t, "Connected", greeting.Target)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":         "invoke",
		"invocationId": "1",
		"target":       "RegisterDevice",
		"arguments":    []any{"laptop-1", "Work Laptop", "desktop"},
	}))
	require.Equal(t, "RegisterDeviceResult", readFrame(t, conn).Target)
	require.Equal(t, "completion", readFrame(t, conn).Type)

	status, body := getJSON(t, server, "/v1/playback/devices", "user-1")
	require.Equal(t, http.StatusOK, status)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	device := data[0].(map[string]any)
	require.Equal(t, "laptop-1", device["deviceId"])
	require.Equal(t, "Work Laptop", device["deviceName"])

	status, body = getJSON(t, server, "/v1/devices/known/laptop-1", "user-1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Work Laptop", body["device_name"])

	require.Eventually(t, func() bool {
		status, body := getJSON(t, server, "/v1/audit/events?type=DEVICE_REGISTERED", "user-1")
		if status != http.StatusOK {
			return false
		}
		events, ok := body["data"].([]any)
		return ok && len(events) == 1
	}, 2*time.Second, 20*time.Millisecond)

	status, body = getJSON(t, server, "/v1/system/info", "user-1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), body["connections_current"])

	status, _ = getJSON(t, server, "/v1/playback/devices", "user-2")
	require.Equal(t, http.StatusOK, status)
}
