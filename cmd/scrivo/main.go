// Command scrivo is the voice dictation daemon. It captures microphone
// audio, segments it with voice activity detection, transcribes it with the
// configured STT provider, optionally cleans it up with an LLM, and serves
// the result over a local WebSocket API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/openscrivo/scrivo/internal/capture"
	"github.com/openscrivo/scrivo/internal/config"
	"github.com/openscrivo/scrivo/internal/health"
	"github.com/openscrivo/scrivo/internal/observe"
	"github.com/openscrivo/scrivo/internal/pipeline"
	"github.com/openscrivo/scrivo/internal/prompt"
	"github.com/openscrivo/scrivo/internal/providers"
	"github.com/openscrivo/scrivo/internal/resilience"
	"github.com/openscrivo/scrivo/internal/server"
	"github.com/openscrivo/scrivo/internal/vad"
	"github.com/openscrivo/scrivo/pkg/provider/llm"
	"github.com/openscrivo/scrivo/pkg/provider/llm/anyllm"
	oaillm "github.com/openscrivo/scrivo/pkg/provider/llm/openai"
	"github.com/openscrivo/scrivo/pkg/provider/stt"
	"github.com/openscrivo/scrivo/pkg/provider/stt/groq"
	oaistt "github.com/openscrivo/scrivo/pkg/provider/stt/openai"
	"github.com/openscrivo/scrivo/pkg/provider/stt/whisper"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "scrivo.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Configuration with hot reload ──────────────────────────────────────
	levelVar := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scrivo: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scrivo: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ─────────────────────────────────────────────────────────────
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("scrivo starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "scrivo",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ──────────────────────────────────────────────────────────
	reg := providers.New()
	if err := buildProviders(cfg, reg); err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Capture ────────────────────────────────────────────────────────────
	src, err := capture.NewPortAudioSource(capture.PortAudioConfig{
		DeviceName:    cfg.Capture.DeviceName,
		SampleRate:    cfg.Capture.SampleRate,
		FrameDuration: cfg.Capture.FrameDuration(),
	})
	if err != nil {
		slog.Error("failed to open audio subsystem", "err", err)
		return 1
	}
	defer src.Close()
	bridge := capture.NewBridge(src,
		capture.WithQueueDepth(cfg.Capture.QueueDepth),
		capture.WithLogger(logger),
	)

	// ── Pipeline ───────────────────────────────────────────────────────────
	sections := promptSections(cfg)
	pipe, err := pipeline.New(bridge, reg, pipelineConfig(cfg),
		pipeline.WithLogger(logger),
		pipeline.WithPromptSections(sections),
		pipeline.WithVocabulary(cfg.Prompt.Vocabulary),
	)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer pipe.Close()

	// ── HTTP / WebSocket server ────────────────────────────────────────────
	healthHandler := health.New(
		func() string { return pipe.State().String() },
		health.Checker{Name: "capture", Check: func(context.Context) error {
			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return errors.New("no capture devices found")
			}
			return nil
		}},
		health.Checker{Name: "stt-provider", Check: func(context.Context) error {
			_, _, err := reg.CurrentSTT()
			return err
		}},
	)
	srv, err := server.New(pipe, reg,
		server.WithLogger(logger),
		server.WithDeviceLister(capture.ListDevices),
		server.WithHealth(healthHandler),
	)
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}
	srv.SetPromptSections(sections)

	// Hot reload: apply the diff of hot-reloadable settings on change.
	reload := func(old, new *config.Config) {
		applyReload(config.Compare(old, new), new, levelVar, reg, pipe, srv)
	}
	watcher.SetOnChange(reload)

	slog.Info("scrivo ready", "listen_addr", cfg.Server.ListenAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, cfg.Server.ListenAddr) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates every provider named in cfg and registers it.
func buildProviders(cfg *config.Config, reg *providers.Registry) error {
	for _, entry := range cfg.Providers.STT {
		p, err := buildSTT(entry)
		if err != nil {
			return fmt.Errorf("stt provider %q: %w", entry.Name, err)
		}
		if p == nil {
			continue
		}
		if err := reg.RegisterSTT(entry.Name, p); err != nil {
			return err
		}
		slog.Info("provider registered", "kind", "stt", "name", entry.Name, "model", entry.Model)
	}
	for _, entry := range cfg.Providers.LLM {
		p, err := buildLLM(entry)
		if err != nil {
			return fmt.Errorf("llm provider %q: %w", entry.Name, err)
		}
		if p == nil {
			continue
		}
		if err := reg.RegisterLLM(entry.Name, p); err != nil {
			return err
		}
		slog.Info("provider registered", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}

	if cfg.Providers.ActiveSTT != "" {
		if err := reg.SetCurrentSTT(cfg.Providers.ActiveSTT); err != nil {
			return err
		}
	}
	if cfg.Providers.ActiveLLM != "" {
		if err := reg.SetCurrentLLM(cfg.Providers.ActiveLLM); err != nil {
			return err
		}
	}
	return nil
}

func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	timeout := time.Duration(entry.TimeoutSec) * time.Second
	switch entry.Name {
	case "openai":
		opts := []oaistt.Option{oaistt.WithTimeout(timeout)}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, oaistt.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	case "groq":
		opts := []groq.Option{groq.WithTimeout(timeout)}
		if entry.Model != "" {
			opts = append(opts, groq.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, groq.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(entry.BaseURL))
		}
		return groq.New(entry.APIKey, opts...)
	case "whisper-native":
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.Model, opts...)
	default:
		// "mock" and friends are for tests; skip them in the daemon.
		slog.Debug("skipping stt provider", "name", entry.Name)
		return nil, nil
	}
}

func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if entry.TimeoutSec > 0 {
			opts = append(opts, oaillm.WithTimeout(time.Duration(entry.TimeoutSec)*time.Second))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	case "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	default:
		slog.Debug("skipping llm provider", "name", entry.Name)
		return nil, nil
	}
}

// ── Config mapping ────────────────────────────────────────────────────────────

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		VAD: vad.Config{
			FrameDuration:   cfg.Capture.FrameDuration(),
			OnsetFrames:     cfg.VAD.OnsetFrames,
			Hangover:        time.Duration(cfg.VAD.HangoverMs) * time.Millisecond,
			PreRoll:         time.Duration(cfg.VAD.PreRollMs) * time.Millisecond,
			EnergyThreshold: cfg.VAD.EnergyThreshold,
		},
		StopMode:           cfg.Session.StopMode,
		MaxSessionDuration: time.Duration(cfg.Session.MaxDurationSec) * time.Second,
		MaxUploadBytes:     cfg.Session.MaxUploadBytes,
		Retry: resilience.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		},
	}
}

func promptSections(cfg *config.Config) prompt.Sections {
	return prompt.Sections{
		MainCustom:        cfg.Prompt.MainCustom,
		AdvancedEnabled:   cfg.Prompt.AdvancedEnabled,
		AdvancedCustom:    cfg.Prompt.AdvancedCustom,
		DictionaryEnabled: cfg.Prompt.DictionaryEnabled,
		DictionaryEntries: cfg.Prompt.Vocabulary,
	}
}

// applyReload pushes changed hot-reloadable settings into the running
// daemon. Capture and server address changes require a restart and are
// ignored here.
func applyReload(diff config.Diff, cfg *config.Config, levelVar *slog.LevelVar, reg *providers.Registry, pipe *pipeline.Pipeline, srv *server.Server) {
	if !diff.Any() {
		return
	}
	if diff.LogLevel {
		levelVar.Set(slogLevel(cfg.Server.LogLevel))
		slog.Info("log level changed", "level", cfg.Server.LogLevel)
	}
	if diff.ActiveSTT && cfg.Providers.ActiveSTT != "" {
		if err := reg.SetCurrentSTT(cfg.Providers.ActiveSTT); err != nil {
			slog.Warn("reload: stt selection", "err", err)
		}
	}
	if diff.ActiveLLM {
		if cfg.Providers.ActiveLLM != "" {
			if err := reg.SetCurrentLLM(cfg.Providers.ActiveLLM); err != nil {
				slog.Warn("reload: llm selection", "err", err)
			}
		}
	}
	if diff.VAD {
		if err := pipe.UpdateVAD(vad.Config{
			FrameDuration:   cfg.Capture.FrameDuration(),
			OnsetFrames:     cfg.VAD.OnsetFrames,
			Hangover:        time.Duration(cfg.VAD.HangoverMs) * time.Millisecond,
			PreRoll:         time.Duration(cfg.VAD.PreRollMs) * time.Millisecond,
			EnergyThreshold: cfg.VAD.EnergyThreshold,
		}); err != nil {
			slog.Warn("reload: vad settings", "err", err)
		}
	}
	if diff.Prompt {
		sections := promptSections(cfg)
		pipe.UpdatePrompt(sections)
		pipe.UpdateVocabulary(cfg.Prompt.Vocabulary)
		srv.SetPromptSections(sections)
	}
	if diff.StopMode {
		pipe.SetStopMode(cfg.Session.StopMode)
	}
	if diff.Retry {
		pipe.SetRetry(resilience.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		})
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func printDevices() int {
	devices, err := capture.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scrivo: %v\n", err)
		return 1
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %3d  %-40s %d ch @ %d Hz\n", marker, d.ID, d.Name, d.Channels, d.SampleRate)
	}
	return 0
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
