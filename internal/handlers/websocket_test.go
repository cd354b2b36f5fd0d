package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/events"
)

// wsServer serves h with the user taken from the "user" query parameter
func wsServer(t *testing.T, h *WebSocketHandler) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := r.URL.Query().Get("user"); u != "" {
			r = r.WithContext(WithUserID(r.Context(), u))
		}
		h.HandleWebSocket(w, r)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)
	return conn
}

func readType(conn *websocket.Conn, wait time.Duration) (string, map[string]interface{}, error) {
	conn.SetReadDeadline(time.Now().Add(wait))
	var msg struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	err := conn.ReadJSON(&msg)
	return msg.Type, msg.Payload, err
}

func waitClients(t *testing.T, h *WebSocketHandler, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketRequiresUser(t *testing.T) {
	h := NewWebSocketHandler(arbor.NewLogger(), &common.WebSocketConfig{})
	url := wsServer(t, h)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCaptureEventsReachOnlyTheOwner(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(arbor.NewLogger(), &common.WebSocketConfig{})
	require.NoError(t, h.SubscribeToEvents(bus))
	url := wsServer(t, h)

	owner := dial(t, url, "u1")
	other := dial(t, url, "u2")
	waitClients(t, h, 2)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventCaptureStatus,
		Payload: models.CaptureState{
			UserID:   "u1",
			Platform: models.PlatformNaukri,
			Phase:    models.CapturePhaseConnected,
			Message:  "Connected",
		},
	}))

	typ, payload, err := readType(owner, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.EventCaptureStatus), typ)
	assert.Equal(t, "connected", payload["phase"])

	_, _, err = readType(other, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestScrapeAndBatchEventsAreForwarded(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(arbor.NewLogger(), nil)
	require.NoError(t, h.SubscribeToEvents(bus))
	conn := dial(t, wsServer(t, h), "u1")
	waitClients(t, h, 1)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventScrapeFinished,
		Payload: map[string]interface{}{"user_id": "u1", "platform": "naukri", "total": 4},
	}))
	typ, payload, err := readType(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.EventScrapeFinished), typ)
	assert.Equal(t, float64(4), payload["total"])

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventBatchFinished,
		Payload: map[string]interface{}{"user_id": "u1", "applied": 1},
	}))
	typ, _, err = readType(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.EventBatchFinished), typ)
}

func TestProgressIsThrottledButTerminalIsNot(t *testing.T) {
	h := NewWebSocketHandler(arbor.NewLogger(), &common.WebSocketConfig{ThrottleInterval: "1h"})
	conn := dial(t, wsServer(t, h), "u1")
	waitClients(t, h, 1)

	progress := func(phase models.CapturePhase, attempt int) interfaces.Event {
		return interfaces.Event{Type: interfaces.EventCaptureStatus, Payload: models.CaptureState{
			UserID: "u1", Platform: models.PlatformNaukri, Phase: phase, AttemptCount: attempt,
		}}
	}
	ctx := context.Background()
	require.NoError(t, h.onCaptureStatus(ctx, progress(models.CapturePhaseMonitoring, 1)))
	require.NoError(t, h.onCaptureStatus(ctx, progress(models.CapturePhaseMonitoring, 2)))
	require.NoError(t, h.onCaptureStatus(ctx, progress(models.CapturePhaseTimeout, 3)))

	_, first, err := readType(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(1), first["attemptCount"])

	_, second, err := readType(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "timeout", second["phase"])
}

func TestClientCountDropsOnDisconnect(t *testing.T) {
	h := NewWebSocketHandler(arbor.NewLogger(), nil)
	conn := dial(t, wsServer(t, h), "u1")
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}
