package vulkan

import (
	"fmt"
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief The window swapchain.
 *
 * The presentation engine picks which image comes next, so the swapchain
 * exposes frame slots instead: slot i is the i-th of bufferCount frames in
 * round robin and BackBuffer(i) is the image acquired for it. Back buffer
 * textures survive a recreate; only their images and views change.
 */
type Swapchain struct {
	device *Device
	queue  *Queue

	handle      vk.Swapchain
	format      vk.SurfaceFormat
	extent      vk.Extent2D
	bufferCount uint32
	images      []*Texture

	slot      uint32
	slotImage []uint32
	// Index of the image presented next.
	imageIndex uint32

	acquireSems []vk.Semaphore
	renderSems  []vk.Semaphore
	semIndex    int
	// The acquire semaphore has not been waited on yet.
	pendingWait bool
	submitted   bool

	vsync bool
	mode  core.WindowMode
	// Window placement restored when leaving fullscreen.
	windowedX, windowedY int
	windowedW, windowedH int
}

func (d *Device) CreateSwapchain(queue metadata.Queue, width, height, bufferCount uint32) (metadata.Swapchain, error) {
	q, ok := queue.(*Queue)
	if !ok {
		return nil, fmt.Errorf("queue %T does not belong to the vulkan device: %w", queue, core.ErrInvalidHandle)
	}
	s := &Swapchain{
		device:      d,
		queue:       q,
		bufferCount: bufferCount,
		slotImage:   make([]uint32, bufferCount),
		vsync:       true,
	}
	if err := s.recreate(width, height); err != nil {
		s.Release()
		return nil, err
	}
	q.swapchain = s
	return s, nil
}

func (s *Swapchain) presentMode(support VulkanSwapchainSupportInfo) vk.PresentMode {
	if s.vsync {
		return vk.PresentModeFifo
	}
	for _, preferred := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, mode := range support.PresentModes {
			if mode == preferred {
				return mode
			}
		}
	}
	return vk.PresentModeFifo
}

// recreate builds the swapchain at the given size, replacing the previous
// one, and acquires the image of the current slot. The GPU must be idle.
func (s *Swapchain) recreate(width, height uint32) error {
	d := s.device
	support, err := querySwapchainSupport(d.PhysicalDevice, d.inst.surface)
	if err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return fmt.Errorf("surface reports no formats: %w", core.ErrUnsupported)
	}

	s.format = support.Formats[0]
	for _, f := range support.Formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			s.format = f
			break
		}
	}
	s.format.Deref()

	caps := support.Capabilities
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = max(caps.MinImageExtent.Width, min(extent.Width, caps.MaxImageExtent.Width))
	extent.Height = max(caps.MinImageExtent.Height, min(extent.Height, caps.MaxImageExtent.Height))

	imageCount := max(s.bufferCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.inst.surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.format.Format,
		ImageColorSpace:  s.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.presentMode(support),
		Clipped:          vk.True,
		OldSwapchain:     s.handle,
	}
	if d.queueInfo.GraphicsFamilyIndex != d.queueInfo.PresentFamilyIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.queueInfo.GraphicsFamilyIndex, d.queueInfo.PresentFamilyIndex}
	}

	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(d.LogicalDevice, &info, nil, &handle), "vkCreateSwapchain"); err != nil {
		return err
	}
	s.destroyImages()
	if s.handle != nil {
		vk.DestroySwapchain(d.LogicalDevice, s.handle, nil)
	}
	s.handle = handle
	s.extent = extent

	var count uint32
	if err := check(vk.GetSwapchainImages(d.LogicalDevice, s.handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		return err
	}
	images := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.LogicalDevice, s.handle, &count, images), "vkGetSwapchainImages"); err != nil {
		return err
	}
	for i, image := range images {
		if i >= len(s.images) {
			d.mu.Lock()
			d.nextID++
			id := d.nextID
			d.mu.Unlock()
			s.images = append(s.images, &Texture{device: d, id: id, borrowed: true})
		}
		t := s.images[i]
		t.image = image
		t.released = false
		t.desc = metadata.TextureDesc{
			Name:         fmt.Sprintf("back buffer %d", i),
			Width:        extent.Width,
			Height:       extent.Height,
			MipLevels:    1,
			Format:       engineFormat(s.format.Format),
			SampleCount:  1,
			Usage:        metadata.TextureUsageRenderTarget,
			InitialState: metadata.ResourceStatePresent,
		}
		if err := t.createView(s.format.Format); err != nil {
			return err
		}
	}
	s.images = s.images[:count]

	if err := s.createSemaphores(int(count) + 1); err != nil {
		return err
	}
	core.LogInfo("swapchain created: %dx%d, %d images, vsync %t", extent.Width, extent.Height, count, s.vsync)
	return s.acquire()
}

func (s *Swapchain) createSemaphores(n int) error {
	s.destroySemaphores()
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s.acquireSems = make([]vk.Semaphore, n)
	s.renderSems = make([]vk.Semaphore, n)
	for i := 0; i < n; i++ {
		if err := check(vk.CreateSemaphore(s.device.LogicalDevice, &info, nil, &s.acquireSems[i]), "vkCreateSemaphore"); err != nil {
			return err
		}
		if err := check(vk.CreateSemaphore(s.device.LogicalDevice, &info, nil, &s.renderSems[i]), "vkCreateSemaphore"); err != nil {
			return err
		}
	}
	s.semIndex = 0
	s.pendingWait = false
	s.submitted = false
	return nil
}

func (s *Swapchain) destroySemaphores() {
	for i := range s.acquireSems {
		if s.acquireSems[i] != nil {
			vk.DestroySemaphore(s.device.LogicalDevice, s.acquireSems[i], nil)
		}
		if s.renderSems[i] != nil {
			vk.DestroySemaphore(s.device.LogicalDevice, s.renderSems[i], nil)
		}
	}
	s.acquireSems, s.renderSems = nil, nil
}

// destroyImages drops the views of the current images and every
// framebuffer built on them.
func (s *Swapchain) destroyImages() {
	for _, t := range s.images {
		s.device.passes.forget(t.id)
		if t.view != nil {
			vk.DestroyImageView(s.device.LogicalDevice, t.view, nil)
			t.view = nil
		}
		t.image = nil
	}
}

// acquire takes the next image for the current slot.
func (s *Swapchain) acquire() error {
	s.semIndex = (s.semIndex + 1) % len(s.acquireSems)
	var index uint32
	res := vk.AcquireNextImage(s.device.LogicalDevice, s.handle, math.MaxUint64, s.acquireSems[s.semIndex], nil, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return core.ErrSwapchainBooting
	default:
		return check(res, "vkAcquireNextImage")
	}
	s.imageIndex = index
	s.slotImage[s.slot] = index
	s.pendingWait = true
	s.submitted = false
	return nil
}

// takeSemaphores hands the first submission after an acquire the semaphore
// to wait on and the one to signal for presentation.
func (s *Swapchain) takeSemaphores() (wait, signal vk.Semaphore, ok bool) {
	if !s.pendingWait {
		return nil, nil, false
	}
	s.pendingWait = false
	s.submitted = true
	return s.acquireSems[s.semIndex], s.renderSems[s.imageIndex], true
}

func (s *Swapchain) framebufferSize() (uint32, uint32) {
	var w, h int
	s.device.onWindowThread(func() {
		w, h = s.device.window.GetFramebufferSize()
	})
	return uint32(max(w, 0)), uint32(max(h, 0))
}

// rebuild recreates the swapchain at the window size, retrying while the
// window is minimised.
func (s *Swapchain) rebuild() error {
	s.device.WaitIdle()
	w, h := s.framebufferSize()
	if w == 0 || h == 0 {
		w, h = s.extent.Width, s.extent.Height
	}
	err := s.recreate(w, h)
	if err == core.ErrSwapchainBooting {
		core.LogWarn("swapchain still out of date after recreate")
		return nil
	}
	return err
}

func (s *Swapchain) Present(vsync bool) error {
	if !s.submitted && !s.pendingWait {
		// The last recreate could not acquire; try again and drop this frame.
		if err := s.acquire(); err != nil && err != core.ErrSwapchainBooting {
			return err
		}
		return nil
	}
	if !s.submitted {
		// Nothing touched the image: still chain the acquire to the present.
		wait, signal, _ := s.takeSemaphores()
		submit := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   1,
			PWaitSemaphores:      []vk.Semaphore{wait},
			PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{signal},
		}
		if err := s.device.locks.SafeCall(QueueManagement, func() error {
			return check(vk.QueueSubmit(s.device.GraphicsQueue, 1, []vk.SubmitInfo{submit}, nil), "vkQueueSubmit")
		}); err != nil {
			return err
		}
	}

	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.renderSems[s.imageIndex]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{s.imageIndex},
	}
	var res vk.Result
	s.device.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(s.device.PresentQueue, &info)
		return nil
	})

	s.slot = (s.slot + 1) % s.bufferCount
	outdated := res == vk.ErrorOutOfDate || res == vk.Suboptimal
	if !outdated {
		if err := check(res, "vkQueuePresent"); err != nil {
			return err
		}
	}
	if outdated || vsync != s.vsync {
		s.vsync = vsync
		return s.rebuild()
	}
	if err := s.acquire(); err != nil {
		if err == core.ErrSwapchainBooting {
			return s.rebuild()
		}
		return err
	}
	return nil
}

func (s *Swapchain) ResizeBuffers(width, height uint32) error {
	s.device.WaitIdle()
	err := s.recreate(width, height)
	if err == core.ErrSwapchainBooting {
		return s.rebuild()
	}
	return err
}

func (s *Swapchain) SetWindowMode(mode core.WindowMode) error {
	if mode == s.mode {
		return nil
	}
	var err error
	s.device.onWindowThread(func() {
		err = s.applyWindowMode(mode)
	})
	if err != nil {
		return err
	}
	s.mode = mode
	core.LogInfo("window mode set to %s", mode)
	return nil
}

// applyWindowMode moves the window; it must run on the window thread.
func (s *Swapchain) applyWindowMode(mode core.WindowMode) error {
	window := s.device.window
	if s.mode == core.WindowModeWindowed {
		s.windowedX, s.windowedY = window.GetPos()
		s.windowedW, s.windowedH = window.GetSize()
	}
	switch mode {
	case core.WindowModeWindowed:
		window.SetAttrib(glfw.Decorated, glfw.True)
		window.SetMonitor(nil, s.windowedX, s.windowedY, s.windowedW, s.windowedH, 0)
	case core.WindowModeFullscreen, core.WindowModeBorderless:
		monitor := window.GetMonitor()
		if monitor == nil {
			monitor = glfw.GetPrimaryMonitor()
		}
		if monitor == nil {
			return fmt.Errorf("no monitor for %s: %w", mode, core.ErrUnsupported)
		}
		vm := monitor.GetVideoMode()
		if mode == core.WindowModeFullscreen {
			window.SetMonitor(monitor, 0, 0, vm.Width, vm.Height, vm.RefreshRate)
		} else {
			x, y := monitor.GetPos()
			window.SetAttrib(glfw.Decorated, glfw.False)
			window.SetMonitor(nil, x, y, vm.Width, vm.Height, 0)
		}
	default:
		return fmt.Errorf("window mode %d: %w", mode, core.ErrUnsupported)
	}
	return nil
}

func (s *Swapchain) BufferCount() uint32 {
	return s.bufferCount
}

func (s *Swapchain) CurrentBackBufferIndex() uint32 {
	return s.slot
}

func (s *Swapchain) BackBuffer(i uint32) metadata.Texture {
	return s.images[s.slotImage[i%s.bufferCount]]
}

func (s *Swapchain) Format() metadata.Format {
	return engineFormat(s.format.Format)
}

func (s *Swapchain) Width() uint32 {
	return s.extent.Width
}

func (s *Swapchain) Height() uint32 {
	return s.extent.Height
}

func (s *Swapchain) Release() {
	s.device.WaitIdle()
	if s.queue != nil && s.queue.swapchain == s {
		s.queue.swapchain = nil
	}
	s.destroySemaphores()
	s.destroyImages()
	if s.handle != nil {
		vk.DestroySwapchain(s.device.LogicalDevice, s.handle, nil)
		s.handle = nil
	}
}
