package software

import (
	"context"
	"sync"

	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type Fence struct {
	mu        sync.Mutex
	completed uint64
	// closed and replaced every time completed moves forward
	changed chan struct{}
}

func newFence(initial uint64) *Fence {
	return &Fence{completed: initial, changed: make(chan struct{})}
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	for {
		f.mu.Lock()
		if f.completed >= value {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fence) complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.completed {
		return
	}
	f.completed = value
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fence) Release() {}

type pendingSignal struct {
	fence *Fence
	value uint64
}

/**
 * @brief The only queue of a software device. In automatic mode every
 * signal completes on submission. In manual mode signals stay pending
 * until the device is advanced, which is how tests hold the GPU back.
 */
type Queue struct {
	device *Device
}

func (q *Queue) ExecuteCommandLists(lists ...metadata.CommandList) error {
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return errForeignObject(l)
		}
		if err := q.device.execute(cl); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errForeignObject(fence)
	}
	return q.device.signal(f, value)
}

func (q *Queue) Release() {}
