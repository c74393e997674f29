// Package server exposes the dictation daemon over HTTP.
//
// A single listen address serves three surfaces:
//
//   - /ws: the WebSocket command API. Clients send JSON commands
//     (start_recording, stop_and_transcribe, ...) and receive pipeline
//     events (state transitions, speech boundaries, transcripts) pushed
//     as they happen. stop_and_transcribe holds its reply until the final
//     text or failure is known.
//   - /metrics: Prometheus scrape endpoint.
//   - /healthz, /readyz: liveness and readiness probes.
//
// The WebSocket protocol is line-of-sight simple: every client message is
// a [Command], every server message carries a "type" field. Transcript and
// state events are broadcast to all connected clients, so a tray client
// and an editor plugin can observe the same session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openscrivo/scrivo/internal/capture"
	"github.com/openscrivo/scrivo/internal/config"
	"github.com/openscrivo/scrivo/internal/health"
	"github.com/openscrivo/scrivo/internal/pipeline"
	"github.com/openscrivo/scrivo/internal/prompt"
	"github.com/openscrivo/scrivo/internal/providers"
)

// shutdownTimeout bounds the graceful drain when Run's context ends.
const shutdownTimeout = 5 * time.Second

// Controller is the slice of the pipeline the command API drives.
// [pipeline.Pipeline] satisfies it.
type Controller interface {
	StartRecording() error
	StopAndTranscribe(ctx context.Context) (string, error)
	CancelRecording() error
	ForceReset()
	Status() pipeline.Status
	Events() (<-chan pipeline.Event, func())
	UpdatePrompt(s prompt.Sections)
	UpdateVocabulary(words []string)
	SetStopMode(m config.StopMode)
}

// DeviceLister enumerates capture devices for the get_devices command.
type DeviceLister func() ([]capture.Device, error)

// Command is a client request on the WebSocket API.
type Command struct {
	// Command selects the operation: start_recording, stop_and_transcribe,
	// cancel_recording, force_reset, get_state, get_devices, sync_config.
	Command string `json:"command"`

	// Config carries settings for sync_config.
	Config *ConfigUpdate `json:"config,omitempty"`
}

// ConfigUpdate is the sync_config payload. Nil fields are left unchanged.
type ConfigUpdate struct {
	ActiveSTT *string `json:"active_stt,omitempty"`
	ActiveLLM *string `json:"active_llm,omitempty"`
	StopMode  *string `json:"stop_mode,omitempty"`

	PromptMainCustom  *string  `json:"prompt_main_custom,omitempty"`
	AdvancedEnabled   *bool    `json:"advanced_enabled,omitempty"`
	PromptAdvanced    *string  `json:"prompt_advanced_custom,omitempty"`
	DictionaryEnabled *bool    `json:"dictionary_enabled,omitempty"`
	Vocabulary        []string `json:"vocabulary,omitempty"`
}

type ackMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// resultMessage is the direct reply to stop_and_transcribe carrying the
// final text, distinct from the broadcast transcript events.
type resultMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Text    string `json:"text"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

type statusMessage struct {
	Type string `json:"type"`
	pipeline.Status
}

type devicesMessage struct {
	Type    string           `json:"type"`
	Devices []capture.Device `json:"devices"`
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDeviceLister sets the device enumerator backing get_devices.
func WithDeviceLister(l DeviceLister) Option {
	return func(s *Server) { s.devices = l }
}

// WithHealth sets the health handler mounted at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// Server is the HTTP and WebSocket front end of the daemon.
type Server struct {
	ctrl    Controller
	reg     *providers.Registry
	devices DeviceLister
	health  *health.Handler
	log     *slog.Logger

	mu       sync.Mutex
	sections prompt.Sections
}

// New constructs a Server driving ctrl and switching providers through reg.
func New(ctrl Controller, reg *providers.Registry, opts ...Option) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("server: controller is required")
	}
	if reg == nil {
		return nil, errors.New("server: provider registry is required")
	}
	s := &Server{
		ctrl: ctrl,
		reg:  reg,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetPromptSections seeds the prompt sections used as the base for
// sync_config updates.
func (s *Server) SetPromptSections(sections prompt.Sections) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = sections
}

// Handler returns the HTTP handler serving all daemon surfaces.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

// Run serves addr until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("server: websocket accept", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	s.log.Info("server: client connected", "remote", r.RemoteAddr)

	// Push pipeline events to this client until it disconnects.
	events, cancelEvents := s.ctrl.Events()
	defer cancelEvents()
	writeMu := &sync.Mutex{}
	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				writeMu.Lock()
				err := wsjson.Write(ctx, conn, ev)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			s.log.Debug("server: client disconnected", "remote", r.RemoteAddr, "error", err)
			break
		}
		reply := s.dispatch(ctx, cmd)
		writeMu.Lock()
		err := wsjson.Write(ctx, conn, reply)
		writeMu.Unlock()
		if err != nil {
			break
		}
	}
	<-pushDone
}

// dispatch executes one command and returns the direct reply message.
// Transcripts and state changes travel separately as broadcast events.
func (s *Server) dispatch(ctx context.Context, cmd Command) any {
	s.log.Debug("server: command", "command", cmd.Command)
	switch cmd.Command {
	case "start_recording":
		if err := s.ctrl.StartRecording(); err != nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: err.Error()}
		}
		return ackMessage{Type: "ack", Command: cmd.Command}

	case "stop_and_transcribe":
		text, err := s.ctrl.StopAndTranscribe(ctx)
		if err != nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: err.Error()}
		}
		return resultMessage{Type: "result", Command: cmd.Command, Text: text}

	case "cancel_recording":
		if err := s.ctrl.CancelRecording(); err != nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: err.Error()}
		}
		return ackMessage{Type: "ack", Command: cmd.Command}

	case "force_reset":
		s.ctrl.ForceReset()
		return ackMessage{Type: "ack", Command: cmd.Command}

	case "get_state":
		return statusMessage{Type: "status", Status: s.ctrl.Status()}

	case "get_devices":
		if s.devices == nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: "device enumeration unavailable"}
		}
		devices, err := s.devices()
		if err != nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: err.Error()}
		}
		return devicesMessage{Type: "devices", Devices: devices}

	case "sync_config":
		if cmd.Config == nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: "missing config payload"}
		}
		if err := s.applyConfig(cmd.Config); err != nil {
			return errorMessage{Type: "error", Command: cmd.Command, Error: err.Error()}
		}
		return ackMessage{Type: "ack", Command: cmd.Command}

	default:
		return errorMessage{Type: "error", Command: cmd.Command, Error: fmt.Sprintf("unknown command %q", cmd.Command)}
	}
}

// applyConfig applies a sync_config payload to the registry and pipeline.
func (s *Server) applyConfig(u *ConfigUpdate) error {
	if u.ActiveSTT != nil {
		if err := s.reg.SetCurrentSTT(*u.ActiveSTT); err != nil {
			return err
		}
		s.log.Info("server: stt provider switched", "provider", *u.ActiveSTT)
	}
	if u.ActiveLLM != nil {
		if err := s.reg.SetCurrentLLM(*u.ActiveLLM); err != nil {
			return err
		}
		s.log.Info("server: llm provider switched", "provider", *u.ActiveLLM)
	}
	if u.StopMode != nil {
		mode := config.StopMode(*u.StopMode)
		if !mode.IsValid() {
			return fmt.Errorf("invalid stop_mode %q", *u.StopMode)
		}
		s.ctrl.SetStopMode(mode)
	}

	s.mu.Lock()
	sections := s.sections
	changed := false
	if u.PromptMainCustom != nil {
		sections.MainCustom = *u.PromptMainCustom
		changed = true
	}
	if u.AdvancedEnabled != nil {
		sections.AdvancedEnabled = *u.AdvancedEnabled
		changed = true
	}
	if u.PromptAdvanced != nil {
		sections.AdvancedCustom = *u.PromptAdvanced
		changed = true
	}
	if u.DictionaryEnabled != nil {
		sections.DictionaryEnabled = *u.DictionaryEnabled
		changed = true
	}
	if u.Vocabulary != nil {
		sections.DictionaryEntries = u.Vocabulary
		changed = true
	}
	s.sections = sections
	s.mu.Unlock()

	if changed {
		s.ctrl.UpdatePrompt(sections)
	}
	if u.Vocabulary != nil {
		s.ctrl.UpdateVocabulary(u.Vocabulary)
	}
	return nil
}
