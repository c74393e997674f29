package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openscrivo/scrivo/internal/capture"
	"github.com/openscrivo/scrivo/internal/config"
	"github.com/openscrivo/scrivo/internal/pipeline"
	"github.com/openscrivo/scrivo/internal/prompt"
	"github.com/openscrivo/scrivo/internal/providers"
	llmmock "github.com/openscrivo/scrivo/pkg/provider/llm/mock"
	sttmock "github.com/openscrivo/scrivo/pkg/provider/stt/mock"
)

// fakeController records commands and exposes the event bus for tests.
type fakeController struct {
	bus *pipeline.Bus

	mu         sync.Mutex
	calls      []string
	startErr   error
	stopText   string
	stopErr    error
	stopMode   config.StopMode
	sections   prompt.Sections
	vocabulary []string
}

func newFakeController() *fakeController {
	return &fakeController{bus: pipeline.NewBus(nil)}
}

func (c *fakeController) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *fakeController) StartRecording() error {
	c.record("start")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startErr
}

func (c *fakeController) StopAndTranscribe(context.Context) (string, error) {
	c.record("stop")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopText, c.stopErr
}

func (c *fakeController) CancelRecording() error {
	c.record("cancel")
	return nil
}

func (c *fakeController) ForceReset() { c.record("reset") }

func (c *fakeController) Status() pipeline.Status {
	return pipeline.Status{State: "idle", ActiveSTT: "mock"}
}

func (c *fakeController) Events() (<-chan pipeline.Event, func()) {
	return c.bus.Subscribe()
}

func (c *fakeController) UpdatePrompt(s prompt.Sections) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections = s
}

func (c *fakeController) UpdateVocabulary(words []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vocabulary = words
}

func (c *fakeController) SetStopMode(m config.StopMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopMode = m
}

type wsTestClient struct {
	conn *websocket.Conn
	ctx  context.Context
}

func dialTestServer(t *testing.T, srv *Server) *wsTestClient {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return &wsTestClient{conn: conn, ctx: ctx}
}

func (c *wsTestClient) roundTrip(t *testing.T, cmd Command) map[string]any {
	t.Helper()
	if err := wsjson.Write(c.ctx, c.conn, cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
	return c.read(t)
}

func (c *wsTestClient) read(t *testing.T) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := wsjson.Read(c.ctx, c.conn, &msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func newTestServer(t *testing.T, ctrl Controller, opts ...Option) *Server {
	t.Helper()
	reg := providers.New()
	if err := reg.RegisterSTT("mock", &sttmock.Provider{}); err != nil {
		t.Fatalf("RegisterSTT() error = %v", err)
	}
	srv, err := New(ctrl, reg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestRecordingCommands(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	client := dialTestServer(t, newTestServer(t, ctrl))

	for _, tc := range []struct {
		cmd      string
		wantType string
	}{
		{"start_recording", "ack"},
		{"stop_and_transcribe", "result"},
		{"cancel_recording", "ack"},
		{"force_reset", "ack"},
	} {
		msg := client.roundTrip(t, Command{Command: tc.cmd})
		if msg["type"] != tc.wantType {
			t.Errorf("%s reply type = %v, want %s", tc.cmd, msg["type"], tc.wantType)
		}
		if msg["command"] != tc.cmd {
			t.Errorf("reply command = %v, want %s", msg["command"], tc.cmd)
		}
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	want := []string{"start", "stop", "cancel", "reset"}
	if len(ctrl.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ctrl.calls, want)
	}
	for i, name := range want {
		if ctrl.calls[i] != name {
			t.Errorf("call %d = %q, want %q", i, ctrl.calls[i], name)
		}
	}
}

func TestStopReplyCarriesTranscript(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	ctrl.stopText = "the final text"
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "stop_and_transcribe"})
	if msg["type"] != "result" {
		t.Fatalf("reply type = %v, want result", msg["type"])
	}
	if msg["text"] != "the final text" {
		t.Errorf("text = %v, want the final text", msg["text"])
	}
}

func TestStopReplyCarriesFailure(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	ctrl.stopErr = pipeline.ErrCancelled
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "stop_and_transcribe"})
	if msg["type"] != "error" {
		t.Fatalf("reply type = %v, want error", msg["type"])
	}
	if !strings.Contains(msg["error"].(string), "cancelled") {
		t.Errorf("error = %v, want cancellation message", msg["error"])
	}
}

func TestGetState(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "get_state"})
	if msg["type"] != "status" {
		t.Fatalf("reply type = %v, want status", msg["type"])
	}
	if msg["state"] != "idle" {
		t.Errorf("state = %v, want idle", msg["state"])
	}
	if msg["active_stt"] != "mock" {
		t.Errorf("active_stt = %v, want mock", msg["active_stt"])
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "frobnicate"})
	if msg["type"] != "error" {
		t.Fatalf("reply type = %v, want error", msg["type"])
	}
	if !strings.Contains(msg["error"].(string), "unknown command") {
		t.Errorf("error = %v, want unknown command", msg["error"])
	}
}

func TestCommandFailureReturnsError(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	ctrl.startErr = context.DeadlineExceeded
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "start_recording"})
	if msg["type"] != "error" {
		t.Fatalf("reply type = %v, want error", msg["type"])
	}
}

func TestEventBroadcast(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	client := dialTestServer(t, newTestServer(t, ctrl))

	// Command round trip guarantees the event subscription is live.
	client.roundTrip(t, Command{Command: "get_state"})

	ctrl.bus.Publish(pipeline.Event{
		Type:     pipeline.EventTranscript,
		Text:     "hello world",
		Provider: "mock",
	})

	msg := client.read(t)
	if msg["type"] != "transcript" {
		t.Fatalf("event type = %v, want transcript", msg["type"])
	}
	if msg["text"] != "hello world" {
		t.Errorf("text = %v, want hello world", msg["text"])
	}
}

func TestGetDevices(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	lister := func() ([]capture.Device, error) {
		return []capture.Device{
			{ID: 0, Name: "Built-in Microphone", Channels: 1, SampleRate: 48000, Default: true},
		}, nil
	}
	client := dialTestServer(t, newTestServer(t, ctrl, WithDeviceLister(lister)))

	msg := client.roundTrip(t, Command{Command: "get_devices"})
	if msg["type"] != "devices" {
		t.Fatalf("reply type = %v, want devices", msg["type"])
	}
	devices := msg["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	first := devices[0].(map[string]any)
	if first["name"] != "Built-in Microphone" {
		t.Errorf("device name = %v", first["name"])
	}
}

func TestGetDevicesUnavailable(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	client := dialTestServer(t, newTestServer(t, ctrl))

	msg := client.roundTrip(t, Command{Command: "get_devices"})
	if msg["type"] != "error" {
		t.Fatalf("reply type = %v, want error", msg["type"])
	}
}

func TestSyncConfig(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	reg := providers.New()
	if err := reg.RegisterSTT("openai", &sttmock.Provider{}); err != nil {
		t.Fatalf("RegisterSTT() error = %v", err)
	}
	if err := reg.RegisterSTT("groq", &sttmock.Provider{}); err != nil {
		t.Fatalf("RegisterSTT() error = %v", err)
	}
	if err := reg.RegisterLLM("openai", &llmmock.Provider{}); err != nil {
		t.Fatalf("RegisterLLM() error = %v", err)
	}
	srv, err := New(ctrl, reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client := dialTestServer(t, srv)

	stt := "groq"
	mode := "auto"
	dict := true
	msg := client.roundTrip(t, Command{
		Command: "sync_config",
		Config: &ConfigUpdate{
			ActiveSTT:         &stt,
			StopMode:          &mode,
			DictionaryEnabled: &dict,
			Vocabulary:        []string{"PostgreSQL", "Kubernetes"},
		},
	})
	if msg["type"] != "ack" {
		t.Fatalf("reply = %v, want ack", msg)
	}

	if _, name, _ := reg.CurrentSTT(); name != "groq" {
		t.Errorf("active stt = %q, want groq", name)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.stopMode != config.StopAuto {
		t.Errorf("stop mode = %q, want auto", ctrl.stopMode)
	}
	if !ctrl.sections.DictionaryEnabled {
		t.Error("dictionary not enabled in prompt sections")
	}
	if len(ctrl.vocabulary) != 2 {
		t.Errorf("vocabulary = %v, want 2 entries", ctrl.vocabulary)
	}
}

func TestSyncConfigUnknownProviderKeepsSelection(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	srv := newTestServer(t, ctrl)
	client := dialTestServer(t, srv)

	bad := "azure"
	msg := client.roundTrip(t, Command{Command: "sync_config", Config: &ConfigUpdate{ActiveSTT: &bad}})
	if msg["type"] != "error" {
		t.Fatalf("reply type = %v, want error", msg["type"])
	}
}
