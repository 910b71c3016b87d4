package renderer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/renderer/software"
)

func mustPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected a panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

func TestDescriptorAllocatorUniqueAndStrided(t *testing.T) {
	dev := software.NewDevice()
	heap, err := dev.CreateDescriptorHeap(metadata.MaxDescriptors)
	if err != nil {
		t.Fatal(err)
	}
	alloc := NewDescriptorAllocator(heap)

	seen := map[uint64]bool{}
	prev := alloc.Allocate()
	seen[prev.CPU] = true
	for i := 1; i < metadata.MaxDescriptors; i++ {
		h := alloc.Allocate()
		if seen[h.CPU] {
			t.Fatalf("slot %d handed out twice", h.Index)
		}
		seen[h.CPU] = true
		if h.CPU-prev.CPU != uint64(heap.Stride()) || h.GPU-prev.GPU != uint64(heap.Stride()) {
			t.Fatalf("slot %d is not one stride after slot %d", h.Index, prev.Index)
		}
		prev = h
	}
	mustPanic(t, core.ErrCapacityExceeded, func() { alloc.Allocate() })
	if alloc.Used() != metadata.MaxDescriptors {
		t.Fatalf("used = %d after a failed allocation", alloc.Used())
	}
}

func TestConstantBufferRoundTripAndSlotIsolation(t *testing.T) {
	dev := software.NewDevice()
	heap, _ := dev.CreateDescriptorHeap(metadata.MaxDescriptors)
	stack := memory.NewResourceStack("test", 8)

	var data metadata.EntityConstantBuffer
	cb, err := NewConstantBuffer(dev, NewDescriptorAllocator(heap), stack, "entity", &data)
	if err != nil {
		t.Fatal(err)
	}
	data.World = math.NewMat4Translation(math.NewVec3(1, 2, 3))
	data.Flags = math.NewVec4(1, 0, 0, 0)
	cb.UploadData(1)

	want := unsafe.Slice((*byte)(unsafe.Pointer(&data)), unsafe.Sizeof(data))
	zero := make([]byte, len(want))
	for i := uint32(0); i < metadata.FrameCount; i++ {
		got, _ := cb.Buffer(i).Map()
		switch i {
		case 1:
			if !bytes.Equal(got, want) {
				t.Fatalf("slot 1 does not hold the uploaded bytes")
			}
		default:
			if !bytes.Equal(got, zero) {
				t.Fatalf("slot %d changed by an upload to slot 1", i)
			}
		}
	}
	if cb.GPUAddress(0) == cb.GPUAddress(1) || cb.GPUAddress(0)%metadata.ConstantBufferAlignment != 0 {
		t.Fatalf("slot addresses must differ and be aligned: %#x %#x", cb.GPUAddress(0), cb.GPUAddress(1))
	}
	if stack.Len() != 1 {
		t.Fatalf("constant buffer not tracked")
	}
}

type unaligned struct {
	values [25]float32
}

func TestConstantBufferRejectsUnalignedLayouts(t *testing.T) {
	dev := software.NewDevice()
	mustPanic(t, core.ErrInvalidAlignment, func() {
		_, _ = NewConstantBuffer[unaligned](dev, nil, nil, "bad", nil)
	})
}

func newSync(t *testing.T, dev *software.Device) (*FrameSync, *software.Swapchain) {
	t.Helper()
	queue, _ := dev.CreateQueue()
	sc, err := dev.CreateSwapchain(queue, 64, 64, metadata.FrameCount)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := NewFrameSync(dev, queue, sc)
	if err != nil {
		t.Fatal(err)
	}
	return fs, sc.(*software.Swapchain)
}

func frame(t *testing.T, fs *FrameSync, sc *software.Swapchain) error {
	t.Helper()
	if _, err := fs.BeginFrame(); err != nil {
		return err
	}
	if err := sc.Present(true); err != nil {
		return err
	}
	return fs.MoveToNextFrame(context.Background())
}

func TestFrameSyncBlocksOnBusySlot(t *testing.T) {
	dev := software.NewDevice(software.WithManualFences())
	fs, sc := newSync(t, dev)

	// the first two frames land on slots nobody used yet
	for i := 0; i < 2; i++ {
		if err := frame(t, fs, sc); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- frame(t, fs, sc) }()

	deadline := time.Now().Add(2 * time.Second)
	for fs.SlotState(0) != SlotWaiting {
		if time.Now().After(deadline) {
			t.Fatalf("slot 0 never started waiting, state %s", fs.SlotState(0))
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("frame returned before the GPU finished slot 0: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	dev.Advance(1)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if fs.FrameIndex() != 0 {
		t.Fatalf("frame index = %d, want 0", fs.FrameIndex())
	}
	if got := fs.Fence().CompletedValue(); got != 1 {
		t.Fatalf("completed = %d, want 1", got)
	}
	if fs.FenceValue(0) != 4 {
		t.Fatalf("slot 0 next value = %d, want 4", fs.FenceValue(0))
	}
	if dev.Pending() != 2 {
		t.Fatalf("pending signals = %d, want 2", dev.Pending())
	}
}

func TestFrameSyncFollowsSwapchainIndex(t *testing.T) {
	dev := software.NewDevice()
	fs, sc := newSync(t, dev)
	sc.SetBackBufferOrder(0, 2, 1)
	fs.ResetAfterResize()

	want := []uint32{2, 1, 0, 2}
	for _, w := range want {
		if err := frame(t, fs, sc); err != nil {
			t.Fatal(err)
		}
		if fs.FrameIndex() != w {
			t.Fatalf("frame index = %d, want %d", fs.FrameIndex(), w)
		}
	}
}

func TestFrameSyncWaitForGpuAndResize(t *testing.T) {
	dev := software.NewDevice()
	fs, sc := newSync(t, dev)
	for i := 0; i < 4; i++ {
		if err := frame(t, fs, sc); err != nil {
			t.Fatal(err)
		}
	}
	before := fs.FenceValue(fs.FrameIndex())
	if err := fs.WaitForGpu(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fs.Fence().CompletedValue() != before || fs.FenceValue(fs.FrameIndex()) != before+1 {
		t.Fatalf("WaitForGpu: completed %d, next %d, signaled %d", fs.Fence().CompletedValue(), fs.FenceValue(fs.FrameIndex()), before)
	}

	if err := sc.ResizeBuffers(128, 32); err != nil {
		t.Fatal(err)
	}
	fs.ResetAfterResize()
	for i := uint32(0); i < metadata.FrameCount; i++ {
		if fs.FenceValue(i) != before+1 {
			t.Fatalf("slot %d value %d after resize, want %d", i, fs.FenceValue(i), before+1)
		}
	}
	if fs.FrameIndex() != 0 {
		t.Fatalf("frame index not re-read after resize")
	}
	if err := frame(t, fs, sc); err != nil {
		t.Fatal(err)
	}
}

func TestFrameSyncDeviceLost(t *testing.T) {
	dev := software.NewDevice()
	fs, _ := newSync(t, dev)
	dev.Lose()
	if _, err := fs.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	err := fs.MoveToNextFrame(context.Background())
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected device lost, got %v", err)
	}
}

func TestFrameSyncWaitHonoursContext(t *testing.T) {
	dev := software.NewDevice(software.WithManualFences())
	fs, _ := newSync(t, dev)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := fs.WaitForGpu(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNextWindowMode(t *testing.T) {
	if NextWindowMode(core.WindowModeWindowed, false) != core.WindowModeFullscreen {
		t.Fatal("windowed should toggle to fullscreen")
	}
	if NextWindowMode(core.WindowModeWindowed, true) != core.WindowModeBorderless {
		t.Fatal("windowed should toggle to borderless")
	}
	if NextWindowMode(core.WindowModeBorderless, true) != core.WindowModeWindowed {
		t.Fatal("borderless should toggle back to windowed")
	}
}

func TestContextUploadReleasesStaging(t *testing.T) {
	dev := software.NewDevice()
	scopes := memory.NewScopes(metadata.MaxComPointers)
	c, err := NewContext(dev, 64, 64, scopes)
	if err != nil {
		t.Fatal(err)
	}
	dst, _ := dev.CreateBuffer(metadata.BufferDesc{Name: "dst", Size: 4, InitialState: metadata.ResourceStateCopyDest})
	err = c.Upload(context.Background(), func(cl metadata.CommandList) error {
		src, err := c.CreateUploadBuffer("staging", []byte{1, 2, 3, 4})
		if err != nil {
			return err
		}
		cl.CopyBufferRegion(dst, 0, src, 0, 4)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst.(*software.Buffer).Bytes(), []byte{1, 2, 3, 4}) {
		t.Fatalf("copy did not land")
	}
	if scopes.Get(memory.ScopeUpload).Len() != 0 {
		t.Fatalf("staging buffers still tracked")
	}
	if errs := dev.ValidationErrors(); len(errs) > 0 {
		t.Fatalf("validation errors: %v", errs)
	}
}

func TestContextSubmitOnLostDevice(t *testing.T) {
	dev := software.NewDevice()
	c, err := NewContext(dev, 64, 64, memory.NewScopes(metadata.MaxComPointers))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	dev.Lose()
	err = c.Submit()
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Submit = %v, want device lost", err)
	}
	if n := strings.Count(err.Error(), "execute"); n != 1 {
		t.Fatalf("%q names the failing call %d times", err, n)
	}

	err = deviceLost(errors.New("hung"), "resize buffers to %dx%d", 8, 8)
	if !errors.Is(err, core.ErrDeviceLost) || err.Error() != "gpu device lost: resize buffers to 8x8: hung" {
		t.Fatalf("untagged backend error = %q", err)
	}
}
