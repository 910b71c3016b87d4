package core

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestWindowEventsDrain(t *testing.T) {
	e := NewWindowEvents()
	e.Resize(800, 600)
	e.Resize(1280, 720)
	e.RequestShaderReload()

	u := e.Drain()
	if !u.Resized || u.Width != 1280 || u.Height != 720 {
		t.Fatalf("expected latest resize 1280x720, got %+v", u)
	}
	if !u.ReloadShaders {
		t.Fatal("expected shader reload request")
	}

	u = e.Drain()
	if u.Resized || u.ReloadShaders {
		t.Fatalf("second drain should be empty, got %+v", u)
	}
}

func TestWindowEventsQuitLatches(t *testing.T) {
	e := NewWindowEvents()
	e.RequestQuit()
	if !e.Drain().Quit {
		t.Fatal("expected quit")
	}
	if !e.Drain().Quit || !e.QuitRequested() {
		t.Fatal("quit should stay latched")
	}
}

func TestInputDrain(t *testing.T) {
	s := NewInputState()
	s.ProcessMouseMove(10, 10)
	s.ProcessMouseMove(15, 7)
	s.ProcessMouseMove(20, 4)
	s.ProcessKey(KEY_W, true, 0)
	s.ProcessMouseWheel(2)

	snap := s.Drain()
	if snap.MouseDeltaX != 10 || snap.MouseDeltaY != -6 {
		t.Fatalf("unexpected delta %d,%d", snap.MouseDeltaX, snap.MouseDeltaY)
	}
	if !snap.KeyPressed(KEY_W) || snap.Wheel != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	snap = s.Drain()
	if snap.MouseDeltaX != 0 || snap.Wheel != 0 {
		t.Fatal("deltas must reset after drain")
	}
	if !snap.IsKeyDown(KEY_W) || snap.KeyPressed(KEY_W) {
		t.Fatal("held key must not count as pressed twice")
	}
}

func TestKeySetBounds(t *testing.T) {
	var k KeySet
	k.Set(KEY_GRAVE, true)
	k.Set(KEYS_MAX_KEYS, true)
	if !k.Has(KEY_GRAVE) || k.Has(KEYS_MAX_KEYS) {
		t.Fatal("bitset out of range handling is wrong")
	}
	k.Set(KEY_GRAVE, false)
	if k.Has(KEY_GRAVE) {
		t.Fatal("key should be cleared")
	}
}

func TestAssertWrapsSentinel(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded panic, got %v", r)
		}
	}()
	Assert(false, ErrCapacityExceeded, "pool %s full", "materials")
}

func TestAssertLogsMessageVerbatim(t *testing.T) {
	var buf bytes.Buffer
	getLogger().SetOutput(&buf)
	defer getLogger().SetOutput(os.Stderr)

	func() {
		defer func() { _ = recover() }()
		Assert(false, ErrCapacityExceeded, "%s", "stack at 100%d")
	}()
	out := buf.String()
	if !strings.Contains(out, "stack at 100%d") || strings.Contains(out, "%!") {
		t.Fatalf("log line = %q", out)
	}
}

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	if ft := m.FrameTime(); ft < 9.99 || ft > 10.01 {
		t.Fatalf("expected 10ms average, got %f", ft)
	}
}
