// Package pipeline implements the dictation orchestrator.
//
// The pipeline owns the full lifecycle of an utterance: it drains audio
// frames from the capture bridge, feeds them through voice activity
// detection into the session buffer, submits the finished session to the
// active STT provider, optionally formats the raw transcript with the
// active LLM provider, and publishes the result as an [Event].
//
// A single [Pipeline] serves one microphone. Commands arrive from the
// WebSocket API; the pipeline serialises them through its own lock, so
// callers may issue commands from any goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openscrivo/scrivo/internal/config"
	"github.com/openscrivo/scrivo/internal/observe"
	"github.com/openscrivo/scrivo/internal/prompt"
	"github.com/openscrivo/scrivo/internal/providers"
	"github.com/openscrivo/scrivo/internal/resilience"
	"github.com/openscrivo/scrivo/internal/transcript"
	"github.com/openscrivo/scrivo/internal/vad"
	"github.com/openscrivo/scrivo/pkg/audio"
	"github.com/openscrivo/scrivo/pkg/provider/llm"
)

// sttSampleRate is the rate all session audio is resampled to before
// submission. Whisper models require it and remote backends accept it.
const sttSampleRate = 16000

// ErrCancelled reports that the session was cancelled or reset before its
// transcript could be delivered.
var ErrCancelled = errors.New("pipeline: session cancelled")

// AudioSource is the capture-side contract the pipeline drains.
// [capture.Bridge] satisfies it.
type AudioSource interface {
	Start() error
	Stop() error
	Frames() <-chan audio.Frame
	Errors() <-chan error
	Dropped() uint64
	SampleRate() int
}

// Config carries the pipeline tuning taken from the daemon configuration.
type Config struct {
	// VAD configures the detector built for each recording session.
	VAD vad.Config

	// StopMode selects manual or VAD-driven session end.
	StopMode config.StopMode

	// MaxSessionDuration bounds the session buffer. Zero means unbounded.
	MaxSessionDuration time.Duration

	// MaxUploadBytes rejects encoded sessions larger than this before they
	// reach a provider. Zero disables the guard.
	MaxUploadBytes int

	// Retry tunes provider retry behavior.
	Retry resilience.RetryConfig

	// FormatTemperature is passed to the LLM formatting request.
	FormatTemperature float64

	// FormatMaxTokens bounds the LLM response. Zero means no bound.
	FormatMaxTokens int
}

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithLogger sets the structured logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithPromptSections sets the initial formatting prompt sections.
func WithPromptSections(s prompt.Sections) Option {
	return func(p *Pipeline) { p.sections = s }
}

// WithVocabulary sets the initial phonetic correction vocabulary.
func WithVocabulary(words []string) Option {
	return func(p *Pipeline) { p.corrector = transcript.NewCorrector(words) }
}

// Pipeline is the dictation orchestrator. All exported methods are safe for
// concurrent use.
type Pipeline struct {
	src     AudioSource
	reg     *providers.Registry
	cfg     Config
	bus     *Bus
	log     *slog.Logger
	metrics *observe.Metrics

	mu         sync.Mutex
	state      State
	generation uint64
	detector   *vad.Detector
	session    *audio.SessionBuffer
	sections   prompt.Sections
	corrector  *transcript.Corrector
	breakers   map[string]*resilience.CircuitBreaker
	lastErr    error
	lastErrRec bool

	// droppedBase is the source drop count already reported to metrics.
	droppedBase uint64

	loopStop chan struct{}
	loopDone chan struct{}

	cancelWork context.CancelFunc

	// wg tracks transcription goroutines so Close and tests can wait for
	// in-flight work.
	wg sync.WaitGroup
}

// New constructs a Pipeline reading from src and resolving providers
// through reg.
func New(src AudioSource, reg *providers.Registry, cfg Config, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline: audio source is required")
	}
	if reg == nil {
		return nil, errors.New("pipeline: provider registry is required")
	}
	cfg.VAD.SampleRate = src.SampleRate()
	p := &Pipeline{
		src:      src,
		reg:      reg,
		cfg:      cfg,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
		state:    StateIdle,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bus = NewBus(p.log)
	// Build a detector once up front so invalid VAD settings fail at
	// construction rather than on the first start command.
	if _, err := vad.New(cfg.VAD); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return p, nil
}

// Events returns a subscription to pipeline events and a cancel function.
func (p *Pipeline) Events() (<-chan Event, func()) {
	return p.bus.Subscribe()
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a snapshot for state queries.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		State:         p.state.String(),
		DroppedFrames: p.src.Dropped(),
	}
	if p.detector != nil {
		st.Speaking = p.detector.Speaking()
	}
	if p.session != nil {
		st.SessionSeconds = p.session.Duration().Seconds()
	}
	if _, name, err := p.reg.CurrentSTT(); err == nil {
		st.ActiveSTT = name
	}
	if _, name, _ := p.reg.CurrentLLM(); name != "" {
		st.ActiveLLM = name
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
		st.ErrRecoverable = p.lastErrRec
	}
	return st
}

// StartRecording opens the capture source and begins collecting audio.
// Allowed from idle and from a recoverable error state.
func (p *Pipeline) StartRecording() error {
	p.mu.Lock()
	if p.state != StateIdle && !(p.state == StateError && p.lastErrRec) {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pipeline: cannot start recording while %s", state)
	}

	detector, err := vad.New(p.cfg.VAD)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: %w", err)
	}
	maxSamples := 0
	if p.cfg.MaxSessionDuration > 0 {
		maxSamples = int(p.cfg.MaxSessionDuration.Seconds() * float64(p.src.SampleRate()))
	}
	p.detector = detector
	p.session = audio.NewSessionBuffer(p.src.SampleRate(), maxSamples)
	p.lastErr = nil
	p.lastErrRec = false

	// Discard frames left queued by a cancelled or failed session.
drain:
	for {
		select {
		case <-p.src.Frames():
		default:
			break drain
		}
	}

	if err := p.src.Start(); err != nil {
		p.mu.Unlock()
		return resilience.NewError(resilience.KindAudio, "capture", err)
	}

	p.loopStop = make(chan struct{})
	p.loopDone = make(chan struct{})
	stop, done := p.loopStop, p.loopDone
	p.setStateLocked(StateRecording)
	p.mu.Unlock()

	go p.recordLoop(stop, done)
	p.bus.Publish(Event{Type: EventRecordingStarted})
	p.log.Info("pipeline: recording started", "stop_mode", string(p.cfg.StopMode))
	return nil
}

// StopAndTranscribe ends the recording session, submits the captured audio,
// and blocks until the final text is ready or the session fails. The text is
// also broadcast as events, so subscribers that do not hold the command open
// still receive it. Returns [ErrCancelled] when the session is cancelled or
// reset while the caller waits; when ctx ends first the session keeps
// running and the result arrives through the event bus only.
func (p *Pipeline) StopAndTranscribe(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.state != StateRecording {
		state := p.state
		p.mu.Unlock()
		return "", fmt.Errorf("pipeline: cannot stop while %s", state)
	}
	stop, done := p.loopStop, p.loopDone
	p.loopStop = nil
	p.loopDone = nil
	gen := p.generation
	p.setStateLocked(StateTranscribing)
	p.mu.Unlock()

	close(stop)
	<-done
	if err := p.src.Stop(); err != nil {
		p.log.Warn("pipeline: stopping capture", "error", err)
	}

	p.mu.Lock()
	samples := p.session.Samples()
	rate := p.session.SampleRate()
	p.recordDroppedLocked()
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelWork = cancel
	p.mu.Unlock()

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		text, err := p.transcribe(workCtx, gen, samples, rate)
		resCh <- result{text, err}
	}()

	select {
	case res := <-resCh:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CancelRecording discards the current session without producing a
// transcript. Results from already-submitted provider calls are suppressed.
func (p *Pipeline) CancelRecording() error {
	p.mu.Lock()
	switch p.state {
	case StateRecording, StateTranscribing, StateFormatting:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pipeline: nothing to cancel while %s", state)
	}
	p.resetLocked()
	p.setStateLocked(StateIdle)
	p.mu.Unlock()
	p.bus.Publish(Event{Type: EventCancelled})
	p.log.Info("pipeline: session cancelled")
	return nil
}

// ForceReset returns the pipeline to idle from any state, discarding any
// session and suppressing in-flight results.
func (p *Pipeline) ForceReset() {
	p.mu.Lock()
	p.resetLocked()
	p.lastErr = nil
	p.lastErrRec = false
	p.setStateLocked(StateIdle)
	p.mu.Unlock()
	p.bus.Publish(Event{Type: EventReset})
	p.log.Info("pipeline: force reset")
}

// Close stops capture and waits for in-flight transcription work.
func (p *Pipeline) Close() error {
	p.ForceReset()
	p.wg.Wait()
	return nil
}

// UpdatePrompt replaces the formatting prompt sections.
func (p *Pipeline) UpdatePrompt(s prompt.Sections) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections = s
}

// UpdateVocabulary replaces the phonetic correction vocabulary.
func (p *Pipeline) UpdateVocabulary(words []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corrector = transcript.NewCorrector(words)
}

// UpdateVAD replaces the detector settings used for subsequent sessions.
// The active session, if any, keeps its current detector.
func (p *Pipeline) UpdateVAD(cfg vad.Config) error {
	cfg.SampleRate = p.src.SampleRate()
	if _, err := vad.New(cfg); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.VAD = cfg
	return nil
}

// SetRetry replaces the provider retry settings used for subsequent
// sessions.
func (p *Pipeline) SetRetry(cfg resilience.RetryConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Retry = cfg
}

// SetStopMode switches between manual and VAD-driven session end.
func (p *Pipeline) SetStopMode(m config.StopMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.StopMode = m
}

// resetLocked tears down the active session. Callers hold p.mu.
func (p *Pipeline) resetLocked() {
	p.generation++
	if p.cancelWork != nil {
		p.cancelWork()
		p.cancelWork = nil
	}
	if p.loopStop != nil {
		close(p.loopStop)
		p.loopStop = nil
	}
	if err := p.src.Stop(); err != nil {
		p.log.Warn("pipeline: stopping capture", "error", err)
	}
	p.recordDroppedLocked()
	if p.session != nil {
		p.session.Clear()
	}
	if p.detector != nil {
		p.detector.Reset()
	}
}

// recordDroppedLocked reports the source's drop count delta since the last
// report. Callers hold p.mu.
func (p *Pipeline) recordDroppedLocked() {
	if d := p.src.Dropped(); d > p.droppedBase {
		p.metrics.AddDroppedFrames(context.Background(), int64(d-p.droppedBase))
		p.droppedBase = d
	}
}

// setStateLocked records and publishes a state transition. Callers hold
// p.mu; publishing is non-blocking so holding the lock is safe.
func (p *Pipeline) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.state = s
	p.metrics.SetPipelineState(context.Background(), int64(s))
	p.bus.Publish(Event{Type: EventState, State: s.String()})
}

// advance performs a generation-checked state transition. It returns false
// when the session was cancelled or reset after gen was captured, in which
// case the caller must drop its result.
func (p *Pipeline) advance(gen uint64, s State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return false
	}
	p.setStateLocked(s)
	return true
}

// recordLoop drains the capture source until stop is closed or the source
// reports a terminal error.
func (p *Pipeline) recordLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case err := <-p.src.Errors():
			p.failCapture(err)
			return
		case frame := <-p.src.Frames():
			if err := p.handleFrame(frame); err != nil {
				p.log.Warn("pipeline: dropping frame", "error", err)
			}
		}
	}
}

// handleFrame routes one capture frame through VAD and into the session
// buffer. In auto stop mode only pre-roll and speech are buffered and the
// end of speech finishes the session.
func (p *Pipeline) handleFrame(frame audio.Frame) error {
	p.mu.Lock()
	if p.state != StateRecording {
		p.mu.Unlock()
		return nil
	}
	ev, err := p.detector.ProcessFrame(frame)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	auto := p.cfg.StopMode == config.StopAuto
	switch {
	case !auto:
		// Manual mode buffers every frame; VAD only feeds events.
		p.session.AppendBytes(frame.Data)
	case ev.Type == vad.SpeechStart:
		// The pre-roll snapshot already contains the current frame.
		for _, f := range ev.PreRoll {
			p.session.AppendBytes(f.Data)
		}
	case ev.Type == vad.SpeechEnd:
		// The frame that completes the hangover is not buffered.
	case p.detector.Speaking():
		p.session.AppendBytes(frame.Data)
	}
	p.metrics.SetSessionSamples(context.Background(), int64(p.session.Len()))
	p.mu.Unlock()

	switch ev.Type {
	case vad.SpeechStart:
		p.metrics.RecordVADEvent(context.Background(), ev.Type.String())
		p.bus.Publish(Event{Type: EventSpeechStart})
	case vad.SpeechEnd:
		p.metrics.RecordVADEvent(context.Background(), ev.Type.String())
		p.bus.Publish(Event{Type: EventSpeechEnd})
		if auto {
			// Finish the session off the record loop so StopAndTranscribe
			// can wait for the loop to exit. No caller holds the command
			// open here; the result travels through the event bus.
			go func() {
				if _, err := p.StopAndTranscribe(context.Background()); err != nil && !errors.Is(err, ErrCancelled) {
					p.log.Warn("pipeline: auto stop", "error", err)
				}
			}()
		}
	}
	return nil
}

// failCapture handles a terminal capture error reported by the source.
func (p *Pipeline) failCapture(err error) {
	err = resilience.NewError(resilience.KindAudio, "capture", err)
	p.log.Error("pipeline: capture failed", "error", err)
	p.mu.Lock()
	p.generation++
	p.loopStop = nil
	if stopErr := p.src.Stop(); stopErr != nil {
		p.log.Warn("pipeline: stopping capture", "error", stopErr)
	}
	p.lastErr = err
	p.lastErrRec = false
	p.setStateLocked(StateError)
	p.mu.Unlock()
	p.bus.Publish(Event{Type: EventError, Error: err.Error()})
}

// transcribe runs the STT and formatting stages for one finished session and
// returns the final text. The raw transcript is broadcast as soon as STT
// succeeds; formatted text follows as its own event.
func (p *Pipeline) transcribe(ctx context.Context, gen uint64, samples []int16, rate int) (string, error) {
	start := time.Now()

	text, providerName, err := p.runSTT(ctx, samples, rate)
	if err != nil {
		if !p.failSession(gen, err) {
			return "", ErrCancelled
		}
		return "", err
	}

	p.mu.Lock()
	corrector := p.corrector
	p.mu.Unlock()
	if corrector != nil {
		text = corrector.Correct(text)
	}

	llmP, llmName, _ := p.reg.CurrentLLM()
	formatting := llmP != nil && text != ""
	next := StateIdle
	if formatting {
		next = StateFormatting
	}
	if !p.advance(gen, next) {
		p.log.Debug("pipeline: dropping stale transcript", "provider", providerName)
		return "", ErrCancelled
	}
	p.bus.Publish(Event{Type: EventTranscript, Text: text, Provider: providerName})

	final := text
	formatted := false
	if formatting {
		out, err := p.runFormatting(ctx, llmP, llmName, text)
		if err != nil {
			// Formatting is best-effort: deliver the raw transcript.
			p.log.Warn("pipeline: formatting failed, using raw transcript",
				"provider", llmName, "error", err)
		} else {
			final = out
			formatted = true
		}
		if !p.advance(gen, StateIdle) {
			p.log.Debug("pipeline: dropping stale transcript", "provider", providerName)
			return "", ErrCancelled
		}
		if formatted {
			p.bus.Publish(Event{
				Type:      EventFormatted,
				Text:      final,
				Provider:  llmName,
				Formatted: true,
			})
		}
	}

	p.metrics.RecordUtteranceDuration(context.Background(), time.Since(start))
	p.log.Info("pipeline: utterance complete",
		"provider", providerName, "formatted", formatted, "chars", len(final))
	return final, nil
}

// runSTT encodes the session and submits it to the active STT provider with
// retry and circuit breaking.
func (p *Pipeline) runSTT(ctx context.Context, samples []int16, rate int) (string, string, error) {
	sttP, name, err := p.reg.CurrentSTT()
	if err != nil {
		return "", "", resilience.NewError(resilience.KindConfig, "registry", err)
	}

	if rate != sttSampleRate {
		samples = audio.Resample(samples, rate, sttSampleRate)
		rate = sttSampleRate
	}
	wav, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		return "", name, resilience.NewError(resilience.KindAudio, name, err)
	}
	if p.cfg.MaxUploadBytes > 0 && len(wav) > p.cfg.MaxUploadBytes {
		return "", name, resilience.NewError(resilience.KindAudio, name,
			fmt.Errorf("session is %d bytes, limit is %d", len(wav), p.cfg.MaxUploadBytes))
	}

	format := audio.Format{SampleRate: rate, Channels: 1, Encoding: audio.PCM16}
	var text string
	sttStart := time.Now()
	err = p.execute(ctx, "stt", name, func(ctx context.Context) error {
		res, err := sttP.Transcribe(ctx, wav, format)
		if err != nil {
			return err
		}
		text = res.Text
		return nil
	})
	p.metrics.RecordSTTDuration(context.Background(), name, time.Since(sttStart))
	if err != nil {
		return "", name, err
	}
	return text, name, nil
}

// runFormatting submits the raw transcript to the LLM provider.
func (p *Pipeline) runFormatting(ctx context.Context, llmP llm.Provider, name, text string) (string, error) {
	p.mu.Lock()
	system := prompt.Combine(p.sections)
	p.mu.Unlock()

	req := llm.CompletionRequest{
		SystemPrompt: system,
		UserText:     text,
		Temperature:  p.cfg.FormatTemperature,
		MaxTokens:    p.cfg.FormatMaxTokens,
	}
	var out string
	llmStart := time.Now()
	err := p.execute(ctx, "llm", name, func(ctx context.Context) error {
		res, err := llmP.Complete(ctx, req)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	p.metrics.RecordLLMDuration(context.Background(), name, time.Since(llmStart))
	if err != nil {
		return "", err
	}
	return out, nil
}

// execute wraps a provider call with error classification, retry, and the
// provider's circuit breaker.
func (p *Pipeline) execute(ctx context.Context, kind, name string, fn func(ctx context.Context) error) error {
	breaker := p.breakerFor(kind + ":" + name)
	p.mu.Lock()
	retry := p.cfg.Retry
	p.mu.Unlock()
	attempts := 0
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, retry, func(ctx context.Context) error {
			attempts++
			if attempts > 1 {
				p.metrics.RecordProviderRetry(context.Background(), name)
			}
			return resilience.Classify(name, fn(ctx))
		})
	})
	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordProviderError(context.Background(), name, resilience.KindOf(err).String())
	}
	p.metrics.RecordProviderRequest(context.Background(), name, kind, status)
	return err
}

// breakerFor returns the circuit breaker for a provider, creating it on
// first use.
func (p *Pipeline) breakerFor(key string) *resilience.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[key]; ok {
		return b
	}
	b := resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: key})
	p.breakers[key] = b
	return b
}

// failSession records a session failure and publishes the error event.
// Provider errors are recoverable; the next start command clears them.
// Returns false when the session was cancelled after gen was captured and
// the failure was discarded.
func (p *Pipeline) failSession(gen uint64, err error) bool {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		p.log.Debug("pipeline: dropping stale error", "error", err)
		return false
	}
	p.lastErr = err
	p.lastErrRec = true
	p.setStateLocked(StateError)
	p.mu.Unlock()
	p.log.Error("pipeline: session failed", "error", err)
	p.bus.Publish(Event{Type: EventError, Error: err.Error(), Recoverable: true})
	return true
}
