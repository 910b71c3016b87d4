package containers

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/directengine/engine/core"
)

func mustPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, target) {
			t.Fatalf("expected %v, got %v", target, r)
		}
	}()
	fn()
}

func TestFixedListCapacityBoundary(t *testing.T) {
	const max = 128
	l := NewFixedList[int]("materials", max)
	for i := 0; i < max; i++ {
		l.Add(i)
	}
	if l.Len() != max || !l.Full() {
		t.Fatalf("expected %d elements, got %d", max, l.Len())
	}

	mustPanic(t, core.ErrCapacityExceeded, func() { l.Add(max) })

	if l.Len() != max {
		t.Fatalf("overflow changed the list length to %d", l.Len())
	}
	if *l.At(max-1) != max-1 {
		t.Fatal("overflow changed the last element")
	}
}

func TestFixedListRemoveKeepsOrder(t *testing.T) {
	l := NewFixedList[string]("entities", 8)
	for _, s := range []string{"a", "b", "c", "b", "d"} {
		l.Add(s)
	}
	if n := l.RemoveFunc(func(s string) bool { return s == "b" }); n != 2 {
		t.Fatalf("expected 2 removals, got %d", n)
	}
	got := l.Items()
	want := []string{"a", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	mustPanic(t, core.ErrInvalidHandle, func() { l.At(3) })
}

func TestFixedListNewElementStable(t *testing.T) {
	l := NewFixedList[[4]float32]("cameras", 4)
	first := l.NewElement()
	first[0] = 1
	l.NewElement()
	l.NewElement()
	if l.At(0)[0] != 1 || first != l.At(0) {
		t.Fatal("element pointer moved")
	}
}

func TestRingQueuePushOverwritesOldest(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	var got []int
	q.Each(func(_ int, v int) { got = append(got, v) })
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("got %v", got)
	}
	if err := q.Enqueue(6); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	v, err := q.Dequeue()
	if err != nil || v != 3 {
		t.Fatalf("dequeue = %d, %v", v, err)
	}
}
