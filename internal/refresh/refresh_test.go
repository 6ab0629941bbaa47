package refresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janekbaraniewski/claudeusage/internal/usage"
)

func newRoot(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "projects", "D--code-app")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "a.jsonl")
	line := `{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"id":"m1","usage":{"input_tokens":10,"output_tokens":5}},"requestId":"r1"}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, path
}

func takeDelta(t *testing.T, l *Loop) usage.Delta {
	t.Helper()
	select {
	case d := <-l.Deltas():
		return d
	default:
		t.Fatal("no delta published")
		return usage.Delta{}
	}
}

func TestLoop_FirstCycleIsFullRefresh(t *testing.T) {
	root, _ := newRoot(t)
	l := NewLoop(usage.NewCache(root, usage.NewPricing()), time.Hour)

	l.runCycle()
	d := takeDelta(t, l)
	if !d.HasChanges || !d.FullRefresh {
		t.Fatalf("expected full refresh, got %+v", d)
	}
}

func TestLoop_QuietCycleEmitsHeartbeat(t *testing.T) {
	root, _ := newRoot(t)
	l := NewLoop(usage.NewCache(root, usage.NewPricing()), time.Hour)

	l.runCycle()
	takeDelta(t, l)

	l.runCycle()
	d := takeDelta(t, l)
	if d.HasChanges || d.FullRefresh || d.UpdatedProjects != nil {
		t.Fatalf("expected heartbeat, got %+v", d)
	}
}

func TestLoop_PicksUpFileChanges(t *testing.T) {
	root, path := newRoot(t)
	l := NewLoop(usage.NewCache(root, usage.NewPricing()), time.Hour)

	l.runCycle()
	takeDelta(t, l)

	line := `{"type":"assistant","timestamp":"2025-06-01T10:05:00Z","message":{"id":"m2","usage":{"input_tokens":1,"output_tokens":1}},"requestId":"r2"}` + "\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(line); err != nil {
		t.Fatal(err)
	}
	f.Close()
	future := time.Now().Add(10 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	l.runCycle()
	d := takeDelta(t, l)
	if !d.HasChanges || d.FullRefresh {
		t.Fatalf("expected incremental change, got %+v", d)
	}
	if len(d.UpdatedProjects) != 1 {
		t.Fatalf("updated projects: %+v", d.UpdatedProjects)
	}
}

func TestLoop_NudgeTriggersCycle(t *testing.T) {
	root, _ := newRoot(t)
	l := NewLoop(usage.NewCache(root, usage.NewPricing()), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()

	// The first cycle runs on start.
	select {
	case d := <-l.Deltas():
		if !d.FullRefresh {
			t.Errorf("first delta should be a full refresh: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no startup delta")
	}

	l.Nudge()
	select {
	case d := <-l.Deltas():
		if d.HasChanges {
			t.Errorf("nudged quiet cycle should be a heartbeat: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nudge did not trigger a cycle")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestNewLoop_DefaultInterval(t *testing.T) {
	l := NewLoop(usage.NewCache(t.TempDir(), usage.NewPricing()), 0)
	if l.interval != DefaultInterval {
		t.Fatalf("interval: %v", l.interval)
	}
}
