package software

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

func TestFenceWaitReleasedByAdvance(t *testing.T) {
	dev := NewDevice(WithManualFences())
	q, _ := dev.CreateQueue()
	f, _ := dev.CreateFence(0)
	if err := q.Signal(f, 5); err != nil {
		t.Fatal(err)
	}
	if f.CompletedValue() != 0 {
		t.Fatalf("manual signal completed early")
	}

	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background(), 5) }()
	select {
	case <-done:
		t.Fatal("wait returned before the signal completed")
	case <-time.After(20 * time.Millisecond):
	}
	dev.AdvanceAll()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.CompletedValue() != 5 {
		t.Fatalf("completed = %d", f.CompletedValue())
	}
}

func TestCommandListCountsDrawsPerEvent(t *testing.T) {
	dev := NewDevice()
	q, _ := dev.CreateQueue()
	alloc, _ := dev.CreateCommandAllocator()
	cl, _ := dev.CreateCommandList(alloc)
	sc, _ := dev.CreateSwapchain(q, 16, 16, 3)
	pso, err := dev.CreatePipelineState(metadata.PipelineDesc{
		Name:     "flat",
		Bytecode: metadata.ShaderBytecode{Vertex: []byte{1}, Pixel: []byte{1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	bb := sc.BackBuffer(0)
	if err := cl.Reset(alloc); err != nil {
		t.Fatal(err)
	}
	cl.BeginEvent("Main")
	cl.ResourceBarrier(bb, metadata.ResourceStatePresent, metadata.ResourceStateRenderTarget)
	cl.BeginRenderPass(metadata.RenderPassDesc{Name: "main", Colour: []metadata.RenderPassColourTarget{{Texture: bb}}})
	cl.SetPipelineState(pso)
	cl.Draw(6, 1, 0, 0)
	cl.BeginEvent("UI")
	cl.Draw(3, 1, 0, 0)
	cl.EndEvent()
	cl.EndRenderPass()
	cl.ResourceBarrier(bb, metadata.ResourceStateRenderTarget, metadata.ResourceStatePresent)
	cl.EndEvent()
	if err := cl.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.ExecuteCommandLists(cl); err != nil {
		t.Fatal(err)
	}

	if dev.DrawCount("Main") != 1 || dev.DrawCount("UI") != 1 {
		t.Fatalf("draws: main %d ui %d", dev.DrawCount("Main"), dev.DrawCount("UI"))
	}
	if errs := dev.ValidationErrors(); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if err := sc.Present(false); err != nil {
		t.Fatal(err)
	}
	if sc.CurrentBackBufferIndex() != 1 {
		t.Fatalf("back buffer index = %d", sc.CurrentBackBufferIndex())
	}
}

func TestBarrierMismatchIsReported(t *testing.T) {
	dev := NewDevice()
	alloc, _ := dev.CreateCommandAllocator()
	cl, _ := dev.CreateCommandList(alloc)
	tex, _ := dev.CreateTexture(metadata.TextureDesc{Name: "t", Width: 4, Height: 4, InitialState: metadata.ResourceStateCommon})
	_ = cl.Reset(alloc)
	cl.ResourceBarrier(tex, metadata.ResourceStateRenderTarget, metadata.ResourceStatePixelShaderResource)
	_ = cl.Close()
	if len(dev.ValidationErrors()) != 1 {
		t.Fatalf("expected one validation error, got %v", dev.ValidationErrors())
	}
}

func TestRaytracingNeedsSupport(t *testing.T) {
	dev := NewDevice()
	if _, err := dev.CreateAccelerationStructure(metadata.AccelerationStructureDesc{Name: "tlas"}); err == nil {
		t.Fatal("acceleration structures need raytracing")
	}
	rt := NewDevice(WithRaytracing())
	if _, err := rt.CreateAccelerationStructure(metadata.AccelerationStructureDesc{Name: "tlas", Kind: metadata.AccelerationStructureTopLevel}); err != nil {
		t.Fatal(err)
	}
}
