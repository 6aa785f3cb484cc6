package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kropeks/notify-relay/internal/hub"
	"github.com/Kropeks/notify-relay/internal/protocol"
)

func testDispatcher(t *testing.T) (*Dispatcher, *hub.Hub, func(userID string) *ws.Conn) {
	t.Helper()

	h := hub.NewHub(nil)
	t.Cleanup(func() { h.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(r.URL.Query().Get("user"), conn, nil)
	}))
	t.Cleanup(func() { server.Close() })

	dial := func(userID string) *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return NewDispatcher(h), h, dial
}

func waitForUserCount(t *testing.T, h *hub.Hub, userID string, expected int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.CountUser(userID) == expected },
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

func TestSendToUser_WrapsInNotificationEnvelope(t *testing.T) {
	d, h, dial := testDispatcher(t)

	conn := dial("42")
	waitForUserCount(t, h, "42", 1)

	delivered := d.SendToUser("42", map[string]string{"title": "x"})
	assert.Equal(t, 1, delivered)

	result := readEnvelope(t, conn)
	assert.Equal(t, "notification", result["type"])
	payload, ok := result["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", payload["title"])
}

func TestSendToUser_UnknownUserReturnsZero(t *testing.T) {
	d, _, _ := testDispatcher(t)

	assert.Equal(t, 0, d.SendToUser("nobody", map[string]string{"title": "x"}))
}

func TestSendToUsers_SumsCountsAndProcessesDuplicates(t *testing.T) {
	d, h, dial := testDispatcher(t)

	conn42 := dial("42")
	dial("43")
	waitForUserCount(t, h, "42", 1)
	waitForUserCount(t, h, "43", 1)

	delivered := d.SendToUsers([]string{"42", "43", "42", "missing"}, map[string]string{"title": "x"})
	assert.Equal(t, 3, delivered)

	// The duplicated id received the message twice.
	first := readEnvelope(t, conn42)
	second := readEnvelope(t, conn42)
	assert.Equal(t, "notification", first["type"])
	assert.Equal(t, "notification", second["type"])
}

func TestSendBulk_SkipsEmptyLists(t *testing.T) {
	d, h, dial := testDispatcher(t)

	conn42 := dial("42")
	conn43 := dial("43")
	waitForUserCount(t, h, "42", 1)
	waitForUserCount(t, h, "43", 1)

	delivered := d.SendBulk(map[string][]json.RawMessage{
		"42": {json.RawMessage(`{"title":"a"}`)},
		"43": {},
	})
	assert.Equal(t, 1, delivered)

	result := readEnvelope(t, conn42)
	assert.Equal(t, "notifications", result["type"])
	payloads, ok := result["payload"].([]any)
	require.True(t, ok)
	require.Len(t, payloads, 1)
	item, ok := payloads[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", item["title"])

	assertNoMessage(t, conn43)
}

func TestSendEnvelopeToUsers_ChatFanOut(t *testing.T) {
	d, h, dial := testDispatcher(t)

	conn42 := dial("42")
	conn43 := dial("43")
	waitForUserCount(t, h, "42", 1)
	waitForUserCount(t, h, "43", 1)

	env := protocol.ChatMessage("conv-7", json.RawMessage(`{"text":"hi"}`))
	delivered := d.SendEnvelopeToUsers([]string{"42", "43"}, env)
	assert.Equal(t, 2, delivered)

	for _, conn := range []*ws.Conn{conn42, conn43} {
		result := readEnvelope(t, conn)
		assert.Equal(t, "chat-message", result["type"])
		payload, ok := result["payload"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "conv-7", payload["conversationId"])
	}
}

func TestSendToUser_DeliversToAllOpenConnections(t *testing.T) {
	d, h, dial := testDispatcher(t)

	conn1 := dial("42")
	conn2 := dial("42")
	waitForUserCount(t, h, "42", 2)

	delivered := d.SendToUser("42", map[string]string{"title": "x"})
	assert.Equal(t, 2, delivered)

	for _, conn := range []*ws.Conn{conn1, conn2} {
		result := readEnvelope(t, conn)
		assert.Equal(t, "notification", result["type"])
	}
}
