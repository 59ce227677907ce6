package mqttbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/infrastructure/mqtt"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/queue"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockClient implements MQTTClient and HealthPublisher for testing.
type mockClient struct {
	mu         sync.Mutex
	connected  bool
	messages   []publishedMessage
	subscribed map[string]mqtt.MessageHandler
}

func newMockClient(connected bool) *mockClient {
	return &mockClient{connected: connected, subscribed: make(map[string]mqtt.MessageHandler)}
}

func (m *mockClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[topic] = handler
	return nil
}

func (m *mockClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribed, topic)
	return nil
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// waitForMessages polls until n messages have been published.
func (m *mockClient) waitForMessages(t *testing.T, n int) []publishedMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := m.getMessages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	msgs := m.getMessages()
	t.Fatalf("published %d messages, want %d", len(msgs), n)
	return nil
}

func decodeAck(t *testing.T, msg publishedMessage) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(msg.payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func startBridge(t *testing.T, q *queue.Queue) (*Bridge, *mockClient) {
	t.Helper()
	client := newMockClient(true)
	b, err := New(Options{MQTT: client, Topics: mqtt.NewTopics("hifilink"), Queue: q, QoS: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Options{Queue: queue.New(1)}); err == nil {
		t.Error("New() without MQTT client should fail")
	}
	if _, err := New(Options{MQTT: newMockClient(true)}); err == nil {
		t.Error("New() without queue should fail")
	}
}

func TestStart_Subscribes(t *testing.T) {
	_, client := startBridge(t, queue.New(4))

	client.mu.Lock()
	_, ok := client.subscribed["hifilink/command/+"]
	client.mu.Unlock()
	if !ok {
		t.Error("bridge did not subscribe to hifilink/command/+")
	}
}

func TestHandleCommand_Queued(t *testing.T) {
	q := queue.New(4)
	b, client := startBridge(t, q)

	err := b.HandleCommand("hifilink/command/deck", []byte(`{"id":"c1","command":"play","repetitions":3}`))
	if err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}

	msgs := client.waitForMessages(t, 1)
	if msgs[0].topic != "hifilink/ack/deck" || msgs[0].retained {
		t.Errorf("ack topic = %q retained = %v", msgs[0].topic, msgs[0].retained)
	}
	ack := decodeAck(t, msgs[0])
	if ack.CommandID != "c1" || ack.Status != AckQueued || ack.Enqueued != 1 || ack.Pending != 1 {
		t.Errorf("ack = %+v", ack)
	}

	job := <-q.Jobs()
	if job.Device != "deck" || job.Command != "play" || job.Source != queue.SourceMQTT {
		t.Errorf("job = %+v", job)
	}
	if job.Options.Reps(1) != 3 {
		t.Errorf("repetitions = %d, want 3", job.Options.Reps(1))
	}
}

func TestHandleCommand_DeviceFromBody(t *testing.T) {
	q := queue.New(4)
	b, _ := startBridge(t, q)

	if err := b.HandleCommand("hifilink/command/any", []byte(`{"device":"amp","command":"mute"}`)); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	if job := <-q.Jobs(); job.Device != "amp" {
		t.Errorf("device = %q, want amp", job.Device)
	}
}

func TestHandleCommand_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		wantErr  bool
		wantCode string
	}{
		{"invalid json", "hifilink/command/deck", `{`, true, ErrCodeInvalidParameters},
		{"missing command", "hifilink/command/deck", `{"id":"c2"}`, false, ErrCodeInvalidCommand},
		{"queue full", "hifilink/command/deck", `{"id":"c3","command":"play"}`, false, ErrCodeQueueFull},
		{"count too large", "hifilink/command/deck", `{"id":"c4","command":"play","count":1099511627776}`, false, ErrCodeInvalidParameters},
		{"repetitions too large", "hifilink/command/deck", `{"id":"c5","command":"play","repetitions":65}`, false, ErrCodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New(1)
			if _, err := q.Enqueue(queue.NewJob("deck", "stop", protocol.Options{}, queue.SourceAPI)); err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
			b, client := startBridge(t, q)

			err := b.HandleCommand(tt.topic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleCommand() error = %v, wantErr %v", err, tt.wantErr)
			}

			ack := decodeAck(t, client.waitForMessages(t, 1)[0])
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, error = %+v", ack, ack.Error)
			}
			if b.PendingCommands() != 0 {
				t.Errorf("pending = %d, want 0", b.PendingCommands())
			}
		})
	}
}

func TestHandleCommand_ExpandStopsAtFreeSpace(t *testing.T) {
	q := queue.New(3)
	b, client := startBridge(t, q)

	if err := b.HandleCommand("hifilink/command/amp", []byte(`{"id":"c6","command":"vol_up,vol_down","count":10}`)); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	ack := decodeAck(t, client.waitForMessages(t, 1)[0])
	if ack.Status != AckQueued || ack.Enqueued != 3 {
		t.Errorf("ack = %+v, want 3 queued", ack)
	}
	// One entry per queued job.
	if b.PendingCommands() != 3 {
		t.Errorf("pending = %d, want 3", b.PendingCommands())
	}
}

func TestHandleCommand_BadTopic(t *testing.T) {
	b, _ := startBridge(t, queue.New(1))

	if err := b.HandleCommand("hifilink/command/a/b", []byte(`{"command":"x"}`)); err == nil {
		t.Error("HandleCommand() with nested topic should fail")
	}
}

func TestJobDone_FinalAck(t *testing.T) {
	q := queue.New(8)
	b, client := startBridge(t, q)

	if err := b.HandleCommand("hifilink/command/deck", []byte(`{"id":"c4","command":"play,eject"}`)); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	client.waitForMessages(t, 1)

	play := <-q.Jobs()
	b.JobDone(play, dispatch.Result{Status: http.StatusOK, Body: map[string]any{"status": "success"}})
	if got := len(client.getMessages()); got != 1 {
		t.Fatalf("final ack published before all jobs finished (%d messages)", got)
	}

	eject := <-q.Jobs()
	b.JobDone(eject, dispatch.Result{
		Status: http.StatusNotFound,
		Body:   map[string]any{"error": "Unknown command 'eject'"},
		Err:    protocol.ErrUnknownCommand,
	})

	ack := decodeAck(t, client.waitForMessages(t, 2)[1])
	if ack.CommandID != "c4" || ack.Status != AckFailed || ack.Sent != 1 || ack.Failed != 1 {
		t.Errorf("final ack = %+v", ack)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand || ack.Error.Status != http.StatusNotFound {
		t.Errorf("final ack error = %+v", ack.Error)
	}
}

func TestJobDone_BeforeQueuedAck(t *testing.T) {
	q := queue.New(4)
	client := newMockClient(true)
	b, err := New(Options{MQTT: client, Queue: q})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A fast worker finishes the job before the handler acks it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		job := <-q.Jobs()
		b.JobDone(job, dispatch.Result{Status: http.StatusOK})
	}()
	if err := b.HandleCommand("hifilink/command/deck", []byte(`{"id":"c5","command":"play"}`)); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	<-done

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	msgs := client.waitForMessages(t, 2)
	first, second := decodeAck(t, msgs[0]), decodeAck(t, msgs[1])
	if first.Status != AckQueued || second.Status != AckAccepted {
		t.Errorf("ack order = %s, %s; want queued, accepted", first.Status, second.Status)
	}
}

func TestJobDone_IgnoresOtherSources(t *testing.T) {
	b, client := startBridge(t, queue.New(1))

	b.JobDone(queue.NewJob("deck", "play", protocol.Options{}, queue.SourceAPI), dispatch.Result{Status: http.StatusOK})
	time.Sleep(20 * time.Millisecond)
	if n := len(client.getMessages()); n != 0 {
		t.Errorf("published %d messages for a non-MQTT job", n)
	}
}

func TestRecordTransmission(t *testing.T) {
	b, client := startBridge(t, queue.New(1))

	b.RecordTransmission(dispatch.TransmissionEvent{
		Device:   "deck",
		Protocol: "KENWOOD_XS8",
		Command:  "play",
		Source:   queue.SourceTimer,
		Status:   http.StatusOK,
		Code:     121,
		Duration: 25 * time.Millisecond,
		At:       time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC),
	})

	msg := client.waitForMessages(t, 1)[0]
	if msg.topic != "hifilink/state/deck" || msg.retained {
		t.Errorf("state topic = %q retained = %v", msg.topic, msg.retained)
	}
	var state StateMessage
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !state.Success || state.Code != 121 || state.DurationMS != 25 || state.Source != "timer" {
		t.Errorf("state = %+v", state)
	}
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		name string
		res  dispatch.Result
		want string
	}{
		{"unknown device", dispatch.Result{Status: 404, Err: device.ErrDeviceNotFound}, ErrCodeNotConfigured},
		{"unknown command", dispatch.Result{Status: 404, Err: protocol.ErrUnknownCommand}, ErrCodeInvalidCommand},
		{"malformed", dispatch.Result{Status: 400}, ErrCodeInvalidParameters},
		{"unsupported protocol", dispatch.Result{Status: 501}, ErrCodeProtocolError},
		{"cancelled", dispatch.Result{Status: 503, Err: context.Canceled}, ErrCodeBridgeError},
		{"driver", dispatch.Result{Status: 500}, ErrCodeDeviceUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCodeFor(tt.res); got != tt.want {
				t.Errorf("errorCodeFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
