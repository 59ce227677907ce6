package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/infrastructure/config"
	"github.com/hifilink/hifilink/internal/infrastructure/logging"
	"github.com/hifilink/hifilink/internal/queue"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func mockClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func readEvent(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)
	client := mockClient(hub, ChannelQueue)

	hub.Broadcast(ChannelQueue, map[string]any{"event": "enqueued", "pending": 1})

	msg := readEvent(t, client)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelQueue {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)
	client := mockClient(hub, ChannelTransmission)

	hub.Broadcast(ChannelQueue, map[string]any{"event": "enqueued"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}
	client := mockClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(client)
	hub.Unregister(client) // second call must not double-close
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_RecordTransmission(t *testing.T) {
	hub := testHub(t)
	client := mockClient(hub, ChannelTransmission)

	var rec dispatch.Recorder = hub
	rec.RecordTransmission(dispatch.TransmissionEvent{
		Device:  "deck",
		Command: "play",
		Source:  queue.SourceAPI,
		Status:  http.StatusOK,
	})

	msg := readEvent(t, client)
	payload := msg.Payload.(map[string]any)
	if payload["device"] != "deck" || payload["command"] != "play" || payload["source"] != "api" {
		t.Errorf("payload = %v", payload)
	}
}

func TestHub_JobDone(t *testing.T) {
	hub := testHub(t)
	client := mockClient(hub, ChannelQueue)

	job := queue.Job{ID: uuid.New(), Device: "deck", Command: "eject", Source: queue.SourceMQTT}
	var obs queue.JobObserver = hub
	obs.JobDone(job, dispatch.Result{
		Status: http.StatusNotFound,
		Body:   map[string]any{"error": "Unknown command 'eject'"},
	})

	payload := readEvent(t, client).Payload.(map[string]any)
	if payload["event"] != "done" || payload["job_id"] != job.ID.String() {
		t.Errorf("payload = %v", payload)
	}
	if payload["status"] != float64(http.StatusNotFound) || payload["error"] != "Unknown command 'eject'" {
		t.Errorf("payload = %v", payload)
	}
}

// ─── Connection Tests ──────────────────────────────────────────────

func dialWS(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck // Test cleanup
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, out any) WSMessage {
	t.Helper()
	switch v := out.(type) {
	case string:
		if err := ws.WriteMessage(websocket.TextMessage, []byte(v)); err != nil {
			t.Fatalf("write: %v", err)
		}
	default:
		if err := ws.WriteJSON(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	env := testServer(t, testOptions{})
	ws := dialWS(t, env, "")

	resp := roundTrip(t, ws, WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelTransmission}},
	})
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Errorf("subscribe response = %+v", resp)
	}

	resp = roundTrip(t, ws, WSMessage{Type: WSTypePing, ID: "ping-1"})
	if resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("ping response = %+v", resp)
	}

	if env.srv.Hub().ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", env.srv.Hub().ClientCount())
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	env := testServer(t, testOptions{})
	ws := dialWS(t, env, "")

	tests := []struct {
		name    string
		msg     any
		message string
	}{
		{"not json", "not json", "Invalid JSON"},
		{"unknown type", WSMessage{Type: "reboot"}, "unknown message type: reboot"},
		{"send without command", WSMessage{Type: WSTypeSend, Payload: WSSendPayload{Device: "deck"}}, "Missing 'device' or 'command'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, ws, tt.msg)
			if resp.Type != WSTypeError {
				t.Fatalf("type = %s, want error", resp.Type)
			}
			payload := resp.Payload.(map[string]any)
			if payload["message"] != tt.message {
				t.Errorf("message = %v, want %q", payload["message"], tt.message)
			}
		})
	}
}

func TestWebSocket_SendQueued(t *testing.T) {
	env := testServer(t, testOptions{queueCapacity: 4})
	ws := dialWS(t, env, "")

	resp := roundTrip(t, ws, WSMessage{
		Type:    WSTypeSend,
		ID:      "send-1",
		Payload: WSSendPayload{Device: "deck", Command: "play", Count: 2},
	})
	if resp.Type != WSTypeResponse || resp.ID != "send-1" {
		t.Fatalf("response = %+v", resp)
	}
	payload := resp.Payload.(map[string]any)
	if payload["status"] != float64(http.StatusAccepted) {
		t.Errorf("status = %v, want 202", payload["status"])
	}
	if env.queue.Depth() != 2 {
		t.Errorf("queue depth = %d, want 2", env.queue.Depth())
	}

	job := <-env.queue.Jobs()
	if job.Source != queue.SourceWS {
		t.Errorf("job source = %q, want ws", job.Source)
	}
}

func TestWebSocket_SendLimits(t *testing.T) {
	env := testServer(t, testOptions{queueCapacity: 4})
	ws := dialWS(t, env, "")
	huge := 1 << 40

	tests := []struct {
		name    string
		payload WSSendPayload
		want    string
	}{
		{"count", WSSendPayload{Device: "deck", Command: "play", Count: huge}, "Invalid 'count' value"},
		{"repetitions", WSSendPayload{Device: "deck", Command: "play", Repetitions: &huge}, "Invalid 'repetitions' value"},
	}
	for _, tt := range tests {
		resp := roundTrip(t, ws, WSMessage{Type: WSTypeSend, ID: "limit-" + tt.name, Payload: tt.payload})
		if resp.Type != WSTypeError {
			t.Fatalf("%s: response = %+v", tt.name, resp)
		}
		payload := resp.Payload.(map[string]any)
		if payload["status"] != float64(http.StatusBadRequest) || payload["message"] != tt.want {
			t.Errorf("%s: payload = %v", tt.name, payload)
		}
	}
	if env.queue.Depth() != 0 {
		t.Errorf("queue depth = %d, want 0", env.queue.Depth())
	}
}

func TestWebSocket_SendDirect(t *testing.T) {
	env := testServer(t, testOptions{})
	ws := dialWS(t, env, "")

	resp := roundTrip(t, ws, WSMessage{
		Type:    WSTypeSend,
		ID:      "send-2",
		Payload: WSSendPayload{Device: "deck", Command: "stop"},
	})
	if resp.Type != WSTypeResponse {
		t.Fatalf("response = %+v", resp)
	}
	body := resp.Payload.(map[string]any)["body"].(map[string]any)
	if body["status"] != "success" || body["command"] != "stop" {
		t.Errorf("body = %v", body)
	}

	resp = roundTrip(t, ws, WSMessage{
		Type:    WSTypeSend,
		ID:      "send-3",
		Payload: WSSendPayload{Device: "ghost", Command: "stop"},
	})
	if resp.Type != WSTypeError {
		t.Fatalf("response = %+v", resp)
	}
	payload := resp.Payload.(map[string]any)
	if payload["status"] != float64(http.StatusNotFound) || payload["message"] != "Unknown device 'ghost'" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_RequiresAuth(t *testing.T) {
	env := testServer(t, testOptions{security: config.SecurityConfig{APIKey: "key-1"}})
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	if err == nil {
		t.Fatal("dial without credentials should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v, want 401", resp)
	}

	ws, _, err := websocket.DefaultDialer.Dial(base+"?apikey=key-1", nil)
	if err != nil {
		t.Fatalf("dial with api key: %v", err)
	}
	ws.Close() //nolint:errcheck // Test cleanup
}
