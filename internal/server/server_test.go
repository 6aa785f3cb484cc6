package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kropeks/notify-relay/internal/broadcast"
	"github.com/Kropeks/notify-relay/internal/config"
	"github.com/Kropeks/notify-relay/internal/hub"
	"github.com/Kropeks/notify-relay/internal/token"
)

const (
	testTokenSecret     = "test-signing-secret"
	testBroadcastSecret = "test-broadcast-secret"
)

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Host:                "127.0.0.1",
		Port:                "0",
		BroadcastSecret:     testBroadcastSecret,
		TokenSecret:         testTokenSecret,
		TokenIssuer:         "notify-relay",
		TokenAudience:       "notify-relay-clients",
		TokenTTL:            15 * time.Minute,
		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		ConnectionRate:      1000,
		ConnectionBurst:     1000,
	}
}

type testRelay struct {
	server *Server
	hub    *hub.Hub
	codec  *token.Codec
	http   *httptest.Server
}

func newTestRelay(t *testing.T, cfg *config.Config) *testRelay {
	t.Helper()

	h := hub.NewHub(nil)
	t.Cleanup(func() { h.Stop() })

	codec := token.NewCodec(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenTTL, nil)
	srv := NewServer(cfg, h, broadcast.NewDispatcher(h), codec, nil)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return &testRelay{server: srv, hub: h, codec: codec, http: ts}
}

func (r *testRelay) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(r.http.URL, "http") + path
}

// connect dials the notifications endpoint with a freshly issued token and
// consumes the connected acknowledgment.
func (r *testRelay) connect(t *testing.T, userID string) *ws.Conn {
	t.Helper()

	signed, err := r.codec.Issue(userID, "", 0)
	require.NoError(t, err)

	conn, _, err := ws.DefaultDialer.Dial(r.wsURL(notificationsPath)+"?token="+signed, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ack := readEnvelope(t, conn)
	require.Equal(t, "connected", ack["type"])
	return conn
}

func (r *testRelay) waitForUserCount(t *testing.T, userID string, expected int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.hub.CountUser(userID) == expected },
		time.Second, time.Millisecond)
}

func readEnvelope(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(msg, &result))
	return result
}

func assertNoMessage(t *testing.T, conn *ws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no message")
}
