package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherReloadsOnChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scrivo.yaml")
	writeConfig(t, path, minimalYAML)

	var mu sync.Mutex
	var calls int
	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		calls++
		mu.Unlock()
		if old.Server.LogLevel != LogInfo || new.Server.LogLevel != LogDebug {
			t.Errorf("onChange levels = %q -> %q, want info -> debug", old.Server.LogLevel, new.Server.LogLevel)
		}
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Fatalf("initial LogLevel = %q, want info", got)
	}

	// An mtime bump alone must not trigger the change callback.
	writeConfig(t, path, minimalYAML)

	writeConfig(t, path, minimalYAML+"server:\n  log_level: debug\n")
	waitFor(t, 2*time.Second, func() bool {
		return w.Current().Server.LogLevel == LogDebug
	})

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("onChange calls = %d, want 1", calls)
	}
}

func TestWatcherKeepsOldConfigOnInvalidReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scrivo.yaml")
	writeConfig(t, path, minimalYAML)

	w, err := NewWatcher(path, func(old, new *Config) {
		t.Error("onChange called for invalid reload")
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "providers:\n  stt:\n    - name: azure\n")
	time.Sleep(150 * time.Millisecond)

	if got := w.Current().Providers.STT[0].Name; got != "openai" {
		t.Errorf("provider after invalid reload = %q, want openai", got)
	}
}

func TestNewWatcherInvalidInitialConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scrivo.yaml")
	writeConfig(t, path, "providers:\n  stt:\n    - name: azure\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher() succeeded with invalid config")
	} else if !strings.Contains(err.Error(), "unknown stt provider") {
		t.Errorf("error = %v, want validation failure", err)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()
	base, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	same := *base
	if d := Compare(base, &same); d.Any() {
		t.Errorf("Compare(identical) = %+v, want no changes", d)
	}

	changed := *base
	changed.Server.LogLevel = LogDebug
	changed.VAD.EnergyThreshold = 900
	changed.Prompt.Vocabulary = []string{"Kubernetes"}
	d := Compare(base, &changed)
	if !d.LogLevel || !d.VAD || !d.Prompt {
		t.Errorf("Compare() = %+v, want LogLevel, VAD, Prompt set", d)
	}
	if d.ActiveSTT || d.StopMode || d.Retry {
		t.Errorf("Compare() = %+v, unexpected changes flagged", d)
	}
}
