package pgflowcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgflow.yaml")
	writeFile(t, path, "host: first.example.com\nslot: s1\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path,
		WithDebounceDelay(20*time.Millisecond),
		WithOnReload(func(c *Config) { reloaded <- c }),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if w.Current().Host != "first.example.com" {
		t.Fatalf("Current().Host = %q, want first.example.com", w.Current().Host)
	}

	writeFile(t, path, "host: second.example.com\nslot: s2\n")

	select {
	case cfg := <-reloaded:
		if cfg.Host != "second.example.com" || cfg.Slot != "s2" {
			t.Errorf("reloaded cfg = %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if w.Current().Host != "second.example.com" {
		t.Errorf("Current().Host = %q, want second.example.com", w.Current().Host)
	}
}

func TestWatcherOnErrorForMalformedReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgflow.yaml")
	writeFile(t, path, "host: good.example.com\n")

	errs := make(chan error, 1)
	w, err := NewWatcher(path,
		WithDebounceDelay(20*time.Millisecond),
		WithOnError(func(e error) { errs <- e }),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// port: [this is not an int] is a YAML parse error, not a missing
	// file, so Load inside reload() should fail and invoke onError.
	writeFile(t, path, "port: [not, an, int\n")

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a non-nil reload error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onError")
	}

	// The watcher keeps serving the last good config.
	if w.Current().Host != "good.example.com" {
		t.Errorf("Current().Host = %q, want good.example.com after a failed reload", w.Current().Host)
	}
}

func TestWatcherCloseStopsGoroutine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgflow.yaml")
	writeFile(t, path, "host: x\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
