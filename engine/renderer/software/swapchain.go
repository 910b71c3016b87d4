package software

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief An off-screen swapchain. Back buffers are handed out round robin,
 * or in the order set with SetBackBufferOrder.
 */
type Swapchain struct {
	device  *Device
	buffers []*Texture
	current uint32
	width   uint32
	height  uint32
	mode    core.WindowMode
	order   []uint32
	cursor  int

	presents int
	resizes  int
}

func (s *Swapchain) createBuffers() {
	s.buffers = make([]*Texture, len(s.buffers))
	for i := range s.buffers {
		s.buffers[i] = &Texture{
			resource: resource{
				id:    uuid.New(),
				name:  fmt.Sprintf("back buffer %d", i),
				state: metadata.ResourceStatePresent,
			},
			desc: metadata.TextureDesc{
				Name:         fmt.Sprintf("back buffer %d", i),
				Width:        s.width,
				Height:       s.height,
				MipLevels:    1,
				Format:       metadata.BackBufferFormat,
				SampleCount:  1,
				Usage:        metadata.TextureUsageRenderTarget,
				InitialState: metadata.ResourceStatePresent,
			},
		}
	}
}

func (s *Swapchain) BufferCount() uint32 {
	return uint32(len(s.buffers))
}

func (s *Swapchain) CurrentBackBufferIndex() uint32 {
	return s.current
}

func (s *Swapchain) BackBuffer(i uint32) metadata.Texture {
	return s.buffers[i]
}

func (s *Swapchain) Format() metadata.Format {
	return metadata.BackBufferFormat
}

func (s *Swapchain) Width() uint32 {
	return s.width
}

func (s *Swapchain) Height() uint32 {
	return s.height
}

func (s *Swapchain) Present(vsync bool) error {
	if s.device.isLost() {
		return fmt.Errorf("present: %w", core.ErrDeviceLost)
	}
	bb := s.buffers[s.current]
	if bb.state != metadata.ResourceStatePresent {
		s.device.reportf("presenting %s in state %s", bb.name, bb.state)
	}
	s.presents++
	s.current = s.next()
	return nil
}

func (s *Swapchain) next() uint32 {
	if len(s.order) == 0 {
		return (s.current + 1) % uint32(len(s.buffers))
	}
	s.cursor = (s.cursor + 1) % len(s.order)
	return s.order[s.cursor]
}

// SetBackBufferOrder makes the swapchain hand out back buffers in the
// given order instead of round robin.
func (s *Swapchain) SetBackBufferOrder(order ...uint32) {
	s.order = order
	s.cursor = 0
	if len(order) > 0 {
		s.current = order[0]
	}
}

func (s *Swapchain) ResizeBuffers(width, height uint32) error {
	for _, b := range s.buffers {
		b.Release()
	}
	s.width = width
	s.height = height
	s.createBuffers()
	s.current = 0
	s.cursor = 0
	s.resizes++
	return nil
}

func (s *Swapchain) SetWindowMode(mode core.WindowMode) error {
	s.mode = mode
	return nil
}

func (s *Swapchain) WindowMode() core.WindowMode {
	return s.mode
}

func (s *Swapchain) Presents() int {
	return s.presents
}

func (s *Swapchain) Resizes() int {
	return s.resizes
}

func (s *Swapchain) Release() {
	for _, b := range s.buffers {
		b.Release()
	}
}
