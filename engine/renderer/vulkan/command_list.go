package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Root constant buffer sets one allocator can hand out between two resets.
const rootSetsPerAllocator = 8192

func (d *Device) createCommandPool(flags vk.CommandPoolCreateFlagBits) (vk.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: d.queueInfo.GraphicsFamilyIndex,
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.LogicalDevice, &info, nil, &pool), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return pool, nil
}

/**
 * @brief Ends recording, submits to and waits for queue operation and frees
 * a single use command buffer.
 */
func (d *Device) immediate(record func(cmd vk.CommandBuffer)) error {
	cmds := make([]vk.CommandBuffer, 1)
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.immediatePool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	if err := check(vk.AllocateCommandBuffers(d.LogicalDevice, &info, cmds), "vkAllocateCommandBuffers"); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(d.LogicalDevice, d.immediatePool, 1, cmds)

	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmds[0], &begin), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	record(cmds[0])
	if err := check(vk.EndCommandBuffer(cmds[0]), "vkEndCommandBuffer"); err != nil {
		return err
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		if err := check(vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submit}, nil), "vkQueueSubmit"); err != nil {
			return err
		}
		return check(vk.QueueWaitIdle(d.GraphicsQueue), "vkQueueWaitIdle")
	})
}

/**
 * @brief A command pool plus the transient descriptor pool the root constant
 * buffer sets of its lists come from. Both are recycled together.
 */
type CommandAllocator struct {
	device   *Device
	pool     vk.CommandPool
	descPool vk.DescriptorPool
}

func (d *Device) CreateCommandAllocator() (metadata.CommandAllocator, error) {
	pool, err := d.createCommandPool(vk.CommandPoolCreateResetCommandBufferBit)
	if err != nil {
		return nil, err
	}
	a := &CommandAllocator{device: d, pool: pool}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       rootSetsPerAllocator,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: rootSetsPerAllocator * rootBindingCount},
		},
	}
	if err := check(vk.CreateDescriptorPool(d.LogicalDevice, &info, nil, &a.descPool), "vkCreateDescriptorPool"); err != nil {
		vk.DestroyCommandPool(d.LogicalDevice, pool, nil)
		return nil, err
	}
	return a, nil
}

func (a *CommandAllocator) Reset() error {
	if err := check(vk.ResetCommandPool(a.device.LogicalDevice, a.pool, 0), "vkResetCommandPool"); err != nil {
		return err
	}
	return check(vk.ResetDescriptorPool(a.device.LogicalDevice, a.descPool, 0), "vkResetDescriptorPool")
}

func (a *CommandAllocator) Release() {
	if a.pool == nil {
		return
	}
	vk.DestroyDescriptorPool(a.device.LogicalDevice, a.descPool, nil)
	vk.DestroyCommandPool(a.device.LogicalDevice, a.pool, nil)
	a.pool, a.descPool = nil, nil
}

/**
 * @brief Records into one command buffer per allocator it was reset against.
 *
 * Root bindings are collected on the CPU and flushed right before each draw
 * or dispatch: constant buffers go through a freshly allocated set 1 and the
 * descriptor table bases and root constants through push constants.
 */
type CommandList struct {
	device  *Device
	alloc   *CommandAllocator
	buffers map[*CommandAllocator]vk.CommandBuffer

	handle    vk.CommandBuffer
	recording bool
	events    []string

	pipeline *PipelineState
	heap     *DescriptorHeap

	rootCBs   [rootBindingCount]uint64
	rootDirty bool
	push      [pushWords]uint32
	pushDirty bool

	// Set when a swapchain image is written, which makes the submission
	// wait for the acquire.
	touchesBackBuffer bool
	warnedRaytracing  bool
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator) (metadata.CommandList, error) {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, fmt.Errorf("command allocator %T does not belong to the vulkan device: %w", alloc, core.ErrInvalidHandle)
	}
	cl := &CommandList{
		device:  d,
		buffers: make(map[*CommandAllocator]vk.CommandBuffer),
	}
	if _, err := cl.bufferFor(a); err != nil {
		return nil, err
	}
	return cl, nil
}

func (cl *CommandList) bufferFor(a *CommandAllocator) (vk.CommandBuffer, error) {
	if cmd, ok := cl.buffers[a]; ok {
		return cmd, nil
	}
	cmds := make([]vk.CommandBuffer, 1)
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	if err := check(vk.AllocateCommandBuffers(cl.device.LogicalDevice, &info, cmds), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	cl.buffers[a] = cmds[0]
	return cmds[0], nil
}

func (cl *CommandList) Reset(alloc metadata.CommandAllocator) error {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return fmt.Errorf("command allocator %T does not belong to the vulkan device: %w", alloc, core.ErrInvalidHandle)
	}
	if cl.recording {
		return fmt.Errorf("command list reset while recording: %w", core.ErrInvalidHandle)
	}
	cmd, err := cl.bufferFor(a)
	if err != nil {
		return err
	}
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmd, &begin), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	cl.alloc = a
	cl.handle = cmd
	cl.recording = true
	cl.events = cl.events[:0]
	cl.pipeline = nil
	cl.rootCBs = [rootBindingCount]uint64{}
	cl.rootDirty = false
	cl.push = [pushWords]uint32{}
	cl.pushDirty = false
	cl.touchesBackBuffer = false
	return nil
}

func (cl *CommandList) Close() error {
	if !cl.recording {
		return fmt.Errorf("command list closed twice: %w", core.ErrInvalidHandle)
	}
	cl.recording = false
	if len(cl.events) > 0 {
		core.LogWarn("command list closed inside event %q", cl.events[len(cl.events)-1])
		cl.events = cl.events[:0]
	}
	return check(vk.EndCommandBuffer(cl.handle), "vkEndCommandBuffer")
}

func (cl *CommandList) BeginEvent(name string) {
	cl.events = append(cl.events, name)
}

func (cl *CommandList) EndEvent() {
	if n := len(cl.events); n > 0 {
		cl.events = cl.events[:n-1]
	}
}

func (cl *CommandList) ResourceBarrier(res metadata.Resource, before, after metadata.ResourceState) {
	switch r := res.(type) {
	case *Texture:
		from := imageState(before)
		if r.borrowed {
			cl.touchesBackBuffer = true
			// A presented image is never read back.
			if before == metadata.ResourceStatePresent {
				from.layout = vk.ImageLayoutUndefined
			}
		}
		transition(cl.handle, r, from, imageState(after))
	case *Buffer:
		barrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		}
		vk.CmdPipelineBarrier(cl.handle,
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), 0,
			1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	default:
		core.LogWarn("barrier on %T ignored", res)
	}
}

func (cl *CommandList) BeginRenderPass(desc metadata.RenderPassDesc) {
	rp, key, err := cl.device.passes.pass(desc)
	if err != nil {
		core.LogError("render pass %q: %s", desc.Name, err)
		return
	}
	fb, width, height, err := cl.device.passes.framebuffer(rp, key, desc)
	if err != nil {
		core.LogError("render pass %q: %s", desc.Name, err)
		return
	}

	clearValues := make([]vk.ClearValue, 0, len(desc.Colour)+1)
	for _, t := range desc.Colour {
		if tex, ok := t.Texture.(*Texture); ok && tex.borrowed {
			cl.touchesBackBuffer = true
		}
		var cv vk.ClearValue
		cv.SetColor(t.ClearColour[:])
		clearValues = append(clearValues, cv)
	}
	if desc.Depth != nil {
		var cv vk.ClearValue
		cv.SetDepthStencil(desc.Depth.ClearDepth, 0)
		clearValues = append(clearValues, cv)
	}

	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cl.handle, &info, vk.SubpassContentsInline)
}

func (cl *CommandList) EndRenderPass() {
	vk.CmdEndRenderPass(cl.handle)
}

func (cl *CommandList) SetPipelineState(pso metadata.PipelineState) {
	p, ok := pso.(*PipelineState)
	if !ok || p.handle == nil {
		core.LogError("pipeline %T cannot be bound", pso)
		return
	}
	rebind := cl.pipeline == nil || cl.pipeline.bindPoint != p.bindPoint
	cl.pipeline = p
	vk.CmdBindPipeline(cl.handle, p.bindPoint, p.handle)
	if rebind {
		cl.bindHeap()
		cl.rootDirty = true
		cl.pushDirty = true
	}
}

func (cl *CommandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {
	h, ok := heap.(*DescriptorHeap)
	if !ok {
		core.LogError("descriptor heap %T does not belong to the vulkan device", heap)
		return
	}
	cl.heap = h
	if cl.pipeline != nil {
		cl.bindHeap()
	}
}

func (cl *CommandList) bindHeap() {
	if cl.heap == nil || cl.pipeline == nil {
		return
	}
	vk.CmdBindDescriptorSets(cl.handle, cl.pipeline.bindPoint, cl.device.pipelineLayout,
		0, 1, []vk.DescriptorSet{cl.heap.set}, 0, nil)
}

// SetViewport flips the viewport so clip space keeps y up.
func (cl *CommandList) SetViewport(vp metadata.Viewport, scissor metadata.ScissorRect) {
	vk.CmdSetViewport(cl.handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y + vp.Height,
		Width:    vp.Width,
		Height:   -vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
	vk.CmdSetScissor(cl.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Left, Y: scissor.Top},
		Extent: vk.Extent2D{
			Width:  uint32(max(scissor.Right-scissor.Left, 0)),
			Height: uint32(max(scissor.Bottom-scissor.Top, 0)),
		},
	}})
}

func (cl *CommandList) SetRootConstantBuffer(slot uint32, gpuAddress uint64) {
	binding, ok := rootBinding(slot)
	if !ok {
		core.LogWarn("root slot %d does not take a constant buffer", slot)
		return
	}
	if cl.rootCBs[binding] != gpuAddress {
		cl.rootCBs[binding] = gpuAddress
		cl.rootDirty = true
	}
}

func (cl *CommandList) SetRootDescriptorTable(slot uint32, handle metadata.DescriptorHandle) {
	switch slot {
	case metadata.RootSlotMaterialTextures:
		cl.push[pushTableMaterial] = handle.Index
	case metadata.RootSlotPassTextures:
		cl.push[pushTablePass] = handle.Index
	default:
		core.LogWarn("root slot %d does not take a descriptor table", slot)
		return
	}
	cl.pushDirty = true
}

func (cl *CommandList) SetRootConstants(slot uint32, values []uint32) {
	if slot != metadata.RootSlotMaterialConstants {
		core.LogWarn("root slot %d does not take root constants", slot)
		return
	}
	copy(cl.push[pushConstantsBase:], values)
	cl.pushDirty = true
}

func (cl *CommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	b, ok := view.Buffer.(*Buffer)
	if !ok {
		core.LogError("vertex buffer %T does not belong to the vulkan device", view.Buffer)
		return
	}
	vk.CmdBindVertexBuffers(cl.handle, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{vk.DeviceSize(view.Offset)})
}

// Topology is baked into the pipeline.
func (cl *CommandList) SetPrimitiveTopology(topology metadata.Topology) {}

// flush writes the pending root bindings before a draw or dispatch.
func (cl *CommandList) flush() bool {
	if cl.pipeline == nil {
		core.LogError("draw without a pipeline")
		return false
	}
	if cl.rootDirty {
		set, err := cl.rootSet()
		if err != nil {
			core.LogError("root constant buffers: %s", err)
			return false
		}
		vk.CmdBindDescriptorSets(cl.handle, cl.pipeline.bindPoint, cl.device.pipelineLayout,
			1, 1, []vk.DescriptorSet{set}, 0, nil)
		cl.rootDirty = false
	}
	if cl.pushDirty {
		vk.CmdPushConstants(cl.handle, cl.device.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageAll),
			0, cl.device.pushSize, unsafe.Pointer(&cl.push[0]))
		cl.pushDirty = false
	}
	return true
}

func (cl *CommandList) rootSet() (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     cl.alloc.descPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{cl.device.rootLayout},
	}
	if err := check(vk.AllocateDescriptorSets(cl.device.LogicalDevice, &info, &set), "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}

	maxRange := uint64(cl.device.Properties.Limits.MaxUniformBufferRange)
	writes := make([]vk.WriteDescriptorSet, 0, rootBindingCount)
	for binding, address := range cl.rootCBs {
		if address == 0 {
			continue
		}
		b, offset, ok := cl.device.bufferAt(address)
		if !ok {
			return nil, fmt.Errorf("root binding %d points at a released buffer: %w", binding, core.ErrInvalidHandle)
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(binding),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.handle,
				Offset: vk.DeviceSize(offset),
				Range:  vk.DeviceSize(min(b.desc.Size-offset, maxRange)),
			}},
		})
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(cl.device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return set, nil
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !cl.flush() {
		return
	}
	vk.CmdDraw(cl.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	if !cl.flush() {
		return
	}
	vk.CmdDispatch(cl.handle, x, y, z)
}

func (cl *CommandList) DispatchRays(desc metadata.DispatchRaysDesc) {
	cl.warnRaytracing()
}

func (cl *CommandList) BuildAccelerationStructure(desc metadata.BuildAccelerationStructureDesc) {
	cl.warnRaytracing()
}

func (cl *CommandList) warnRaytracing() {
	if !cl.warnedRaytracing {
		core.LogWarn("ray tracing commands ignored: %s", core.ErrUnsupported)
		cl.warnedRaytracing = true
	}
}

func (cl *CommandList) CopyBufferRegion(dst metadata.Buffer, dstOffset uint64, src metadata.Buffer, srcOffset, size uint64) {
	d, ok1 := dst.(*Buffer)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		core.LogError("buffer copy between foreign buffers ignored")
		return
	}
	vk.CmdCopyBuffer(cl.handle, s.handle, d.handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (cl *CommandList) CopyBufferToTexture(dst metadata.Texture, src metadata.Buffer, srcOffset uint64, footprint metadata.TextureCopyFootprint) {
	t, ok1 := dst.(*Texture)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		core.LogError("texture upload between foreign resources ignored")
		return
	}
	// Row length is given in texels; compressed rows hold four texel rows.
	var rowLength uint32
	if block := t.desc.Format.BlockSize(); block > 0 {
		rowLength = uint32(footprint.RowPitch/uint64(block)) * 4
	} else if texel := texelSize(t.desc.Format); texel > 0 {
		rowLength = uint32(footprint.RowPitch / uint64(texel))
	}
	vk.CmdCopyBufferToImage(cl.handle, s.handle, t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset:    vk.DeviceSize(srcOffset),
		BufferRowLength: rowLength,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(t.aspect()),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: footprint.Width, Height: footprint.Height, Depth: 1},
	}})
}

func (cl *CommandList) ResolveTexture(dst, src metadata.Texture) {
	d, ok1 := dst.(*Texture)
	s, ok2 := src.(*Texture)
	if !ok1 || !ok2 {
		core.LogError("resolve between foreign textures ignored")
		return
	}
	if d.borrowed {
		cl.touchesBackBuffer = true
	}
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	vk.CmdResolveImage(cl.handle,
		s.image, vk.ImageLayoutTransferSrcOptimal,
		d.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageResolve{{
			SrcSubresource: layers,
			DstSubresource: layers,
			Extent:         vk.Extent3D{Width: d.desc.Width, Height: d.desc.Height, Depth: 1},
		}})
}

func (cl *CommandList) Release() {
	for a, cmd := range cl.buffers {
		if a.pool != nil {
			vk.FreeCommandBuffers(cl.device.LogicalDevice, a.pool, 1, []vk.CommandBuffer{cmd})
		}
	}
	clear(cl.buffers)
	cl.handle = nil
}
