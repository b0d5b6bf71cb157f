package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curtainctl/internal/history"
	"curtainctl/internal/serialbridge"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	hist, err := history.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	s := NewServer(serialbridge.New("/dev/null", 9600), hist)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestCurtainStatusDefaults(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	code := getJSON(t, ts.URL+"/api/v1/curtain/status", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unknown", body["position"])
	assert.Equal(t, "stopped", body["motor_state"])
	assert.Equal(t, "manual", body["mode"])
}

func TestSystemStatusIsSnapshot(t *testing.T) {
	_, ts := newTestServer(t)

	var snap serialbridge.Snapshot
	code := getJSON(t, ts.URL+"/api/v1/system/status", &snap)

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, snap.Connected)
	assert.Equal(t, "/dev/null", snap.Port)
}

func TestControlRequiresConnection(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	code := postJSON(t, ts.URL+"/api/v1/curtain/control", `{"action":"open"}`, &body)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "device not connected", body["error"])
}

func TestControlRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string

	code := postJSON(t, ts.URL+"/api/v1/curtain/control", `{"action":"launch"}`, &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid action", body["error"])

	code = postJSON(t, ts.URL+"/api/v1/curtain/control", `not json`, &body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSetModeValidation(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	code := postJSON(t, ts.URL+"/api/v1/curtain/mode", `{"mode":"sideways"}`, &body)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid mode", body["error"])
}

func TestLightHistoryReturnsRows(t *testing.T) {
	s, ts := newTestServer(t)

	require.NoError(t, s.hist.InsertLightReading(512, 48))
	require.NoError(t, s.hist.InsertLightReading(600, 57))

	var body struct {
		Readings []history.LightReading `json:"readings"`
		Count    int                    `json:"count"`
	}
	code := getJSON(t, ts.URL+"/api/v1/light/history?hours=1", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Readings, 2)
	assert.Equal(t, 600, body.Readings[0].Raw)
}

func TestOperationsReturnsRows(t *testing.T) {
	s, ts := newTestServer(t)

	require.NoError(t, s.hist.LogOperation("open", "api", 420))

	var body struct {
		Operations []history.Operation `json:"operations"`
		Count      int                 `json:"count"`
	}
	code := getJSON(t, ts.URL+"/api/v1/curtain/operations", &body)

	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "open", body.Operations[0].Operation)
	assert.Equal(t, "api", body.Operations[0].Trigger)
}

func TestWebSocketReceivesBroadcasts(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the hub registers the client synchronously in Serve, but give the
	// HTTP round trip a moment to complete before broadcasting
	time.Sleep(50 * time.Millisecond)
	s.hub.Broadcast("LIGHT", "512")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "LIGHT", ev.Key)
	assert.Equal(t, "512", ev.Value)
}
