package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Buffer addresses are synthetic: the buffer id in the high bits keeps them
// unique and aligned, and lets a root binding find its buffer again.
const bufferAddressShift = 32

type Buffer struct {
	device  *Device
	id      uint64
	desc    metadata.BufferDesc
	handle  vk.Buffer
	memory  vk.DeviceMemory
	mapped  []byte
	release bool
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size: %w", desc.Name, core.ErrInvalidHandle)
	}
	usage := vk.BufferUsageTransferDstBit
	if desc.Usage&metadata.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if desc.Usage&metadata.BufferUsageConstant != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if desc.Usage&metadata.BufferUsageCopySource != 0 || desc.Heap == metadata.HeapTypeUpload {
		usage |= vk.BufferUsageTransferSrcBit
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b := &Buffer{device: d, desc: desc}
	if err := check(vk.CreateBuffer(d.LogicalDevice, &info, nil, &b.handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, b.handle, &req)
	flags := vk.MemoryPropertyDeviceLocalBit
	if desc.Heap == metadata.HeapTypeUpload {
		flags = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	mem, err := d.allocate(req, flags)
	if err != nil {
		vk.DestroyBuffer(d.LogicalDevice, b.handle, nil)
		return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}
	b.memory = mem
	vk.BindBufferMemory(d.LogicalDevice, b.handle, b.memory, 0)

	if desc.Heap == metadata.HeapTypeUpload {
		var data unsafe.Pointer
		if err := check(vk.MapMemory(d.LogicalDevice, b.memory, 0, vk.DeviceSize(desc.Size), 0, &data), "vkMapMemory"); err != nil {
			b.Release()
			return nil, err
		}
		b.mapped = unsafe.Slice((*byte)(data), desc.Size)
	}

	d.mu.Lock()
	d.nextID++
	b.id = d.nextID
	d.buffers[b.id] = b
	d.mu.Unlock()
	return b, nil
}

// bufferAt resolves a root binding address back to its buffer and offset.
func (d *Device) bufferAt(address uint64) (*Buffer, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[address>>bufferAddressShift]
	return b, address & (1<<bufferAddressShift - 1), ok
}

func (b *Buffer) Name() string {
	return b.desc.Name
}

func (b *Buffer) Desc() metadata.BufferDesc {
	return b.desc
}

func (b *Buffer) GPUAddress() uint64 {
	return b.id << bufferAddressShift
}

func (b *Buffer) Map() ([]byte, error) {
	if b.mapped == nil {
		return nil, fmt.Errorf("buffer %q is not in the upload heap: %w", b.desc.Name, core.ErrUnsupported)
	}
	return b.mapped, nil
}

// Unmap is a no-op: upload buffers stay mapped until released.
func (b *Buffer) Unmap() {}

func (b *Buffer) Release() {
	if b.release {
		return
	}
	b.release = true
	d := b.device
	d.mu.Lock()
	delete(d.buffers, b.id)
	d.mu.Unlock()
	if b.mapped != nil {
		vk.UnmapMemory(d.LogicalDevice, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(d.LogicalDevice, b.handle, nil)
	vk.FreeMemory(d.LogicalDevice, b.memory, nil)
}

/**
 * @brief An image, its memory and the view used both as an attachment and
 * for sampling. Back buffers borrow their image from the swapchain.
 */
type Texture struct {
	device *Device
	id     uint64
	desc   metadata.TextureDesc
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	// Image owned by the swapchain.
	borrowed bool
	released bool
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (metadata.Texture, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	format := vulkanFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("texture %q: format %d: %w", desc.Name, desc.Format, core.ErrUnsupported)
	}

	var usage vk.ImageUsageFlagBits
	if desc.Usage&metadata.TextureUsageShaderResource != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	if desc.Usage&metadata.TextureUsageRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit
	}
	if desc.Usage&metadata.TextureUsageDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if desc.Usage&metadata.TextureUsageUnorderedAccess != 0 {
		usage |= vk.ImageUsageStorageBit
	}
	if desc.Usage&metadata.TextureUsageCopyDest != 0 {
		usage |= vk.ImageUsageTransferDstBit
	}

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   1,
		Samples:       sampleCount(desc.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	t := &Texture{device: d, desc: desc}
	if err := check(vk.CreateImage(d.LogicalDevice, &info, nil, &t.image), "vkCreateImage"); err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, t.image, &req)
	mem, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.LogicalDevice, t.image, nil)
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}
	t.memory = mem
	vk.BindImageMemory(d.LogicalDevice, t.image, t.memory, 0)

	if err := t.createView(format); err != nil {
		t.Release()
		return nil, err
	}

	// Images start undefined; move them to the state the caller expects.
	target := imageState(desc.InitialState)
	if err := d.immediate(func(cmd vk.CommandBuffer) {
		transition(cmd, t, stateInfo{layout: vk.ImageLayoutUndefined, stage: vk.PipelineStageTopOfPipeBit}, target)
	}); err != nil {
		t.Release()
		return nil, err
	}

	d.mu.Lock()
	d.nextID++
	t.id = d.nextID
	d.mu.Unlock()
	return t, nil
}

func (t *Texture) aspect() vk.ImageAspectFlagBits {
	if t.desc.Format.IsDepth() {
		return vk.ImageAspectDepthBit
	}
	return vk.ImageAspectColorBit
}

func (t *Texture) createView(format vk.Format) error {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(t.aspect()),
			LevelCount: t.desc.MipLevels,
			LayerCount: 1,
		},
	}
	return check(vk.CreateImageView(t.device.LogicalDevice, &info, nil, &t.view), "vkCreateImageView")
}

func (t *Texture) Name() string {
	return t.desc.Name
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

func (t *Texture) Release() {
	if t.released {
		return
	}
	t.released = true
	d := t.device
	if d.passes != nil {
		d.passes.forget(t.id)
	}
	if t.view != nil {
		vk.DestroyImageView(d.LogicalDevice, t.view, nil)
		t.view = nil
	}
	if t.borrowed {
		return
	}
	vk.DestroyImage(d.LogicalDevice, t.image, nil)
	vk.FreeMemory(d.LogicalDevice, t.memory, nil)
}

// transition records a layout change of every subresource of t.
func transition(cmd vk.CommandBuffer, t *Texture, from, to stateInfo) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(from.access),
		DstAccessMask:       vk.AccessFlags(to.access),
		OldLayout:           from.layout,
		NewLayout:           to.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(t.aspect()),
			LevelCount: t.desc.MipLevels,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(from.stage), vk.PipelineStageFlags(to.stage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
