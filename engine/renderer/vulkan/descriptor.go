package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Bindings of the heap set.
const (
	heapBindingTextures uint32 = iota
	heapBindingConstants
)

// rootBinding maps a root constant buffer slot onto its binding in set 1.
func rootBinding(slot uint32) (uint32, bool) {
	switch slot {
	case metadata.RootSlotScene:
		return 0, true
	case metadata.RootSlotCamera:
		return 1, true
	case metadata.RootSlotEntity:
		return 2, true
	case metadata.RootSlotBones:
		return 3, true
	}
	return 0, false
}

const rootBindingCount = 4

// Push constant block: two descriptor table bases, then the root constants.
const (
	pushTableMaterial = 0
	pushTablePass     = 1
	pushConstantsBase = 2
	pushWords         = pushConstantsBase + metadata.MaxRootConstantsPerMaterial
)

/**
 * @brief The shader visible heap: one descriptor set holding an array of
 * sampled textures and an array of constant buffers, both indexed by the
 * handle index.
 */
type DescriptorHeap struct {
	device   *Device
	capacity uint32
	pool     vk.DescriptorPool
	set      vk.DescriptorSet
}

func (d *Device) CreateDescriptorHeap(capacity uint32) (metadata.DescriptorHeap, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("descriptor heap with zero capacity: %w", core.ErrInvalidHandle)
	}
	if err := d.createLayouts(capacity); err != nil {
		return nil, err
	}
	h := &DescriptorHeap{device: d, capacity: capacity}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 2,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: capacity},
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: capacity},
		},
	}
	if err := check(vk.CreateDescriptorPool(d.LogicalDevice, &poolInfo, nil, &h.pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     h.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.heapLayout},
	}
	if err := check(vk.AllocateDescriptorSets(d.LogicalDevice, &allocInfo, &h.set), "vkAllocateDescriptorSets"); err != nil {
		vk.DestroyDescriptorPool(d.LogicalDevice, h.pool, nil)
		return nil, err
	}
	core.LogDebug("descriptor heap created with %d slots", capacity)
	return h, nil
}

// createLayouts builds the set layouts and the pipeline layout every
// pipeline shares. The heap capacity is fixed by the first heap.
func (d *Device) createLayouts(capacity uint32) error {
	if d.pipelineLayout != nil {
		return nil
	}
	stages := vk.ShaderStageFlags(vk.ShaderStageAll)
	heapInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 2,
		PBindings: []vk.DescriptorSetLayoutBinding{
			{Binding: heapBindingTextures, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: capacity, StageFlags: stages},
			{Binding: heapBindingConstants, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: capacity, StageFlags: stages},
		},
	}
	if err := check(vk.CreateDescriptorSetLayout(d.LogicalDevice, &heapInfo, nil, &d.heapLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return err
	}

	rootBindings := make([]vk.DescriptorSetLayoutBinding, rootBindingCount)
	for i := range rootBindings {
		rootBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      stages,
		}
	}
	rootInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: rootBindingCount,
		PBindings:    rootBindings,
	}
	if err := check(vk.CreateDescriptorSetLayout(d.LogicalDevice, &rootInfo, nil, &d.rootLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return err
	}

	d.Properties.Limits.Deref()
	d.pushSize = min(uint32(pushWords*4), d.Properties.Limits.MaxPushConstantsSize)
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         2,
		PSetLayouts:            []vk.DescriptorSetLayout{d.heapLayout, d.rootLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{
			{StageFlags: stages, Offset: 0, Size: d.pushSize},
		},
	}
	return d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreatePipelineLayout(d.LogicalDevice, &layoutInfo, nil, &d.pipelineLayout), "vkCreatePipelineLayout")
	})
}

func (h *DescriptorHeap) Capacity() uint32 {
	return h.capacity
}

// Handles are plain indices into the set's arrays.
func (h *DescriptorHeap) Stride() uint32 {
	return 1
}

func (h *DescriptorHeap) CPUStart() uint64 {
	return 0
}

func (h *DescriptorHeap) GPUStart() uint64 {
	return 0
}

func (h *DescriptorHeap) write(w vk.WriteDescriptorSet) {
	h.device.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(h.device.LogicalDevice, 1, []vk.WriteDescriptorSet{w}, 0, nil)
		return nil
	})
}

func (h *DescriptorHeap) CreateConstantBufferView(handle metadata.DescriptorHandle, buf metadata.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || handle.Index >= h.capacity {
		core.LogError("invalid constant buffer view at slot %d", handle.Index)
		return
	}
	h.write(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.set,
		DstBinding:      heapBindingConstants,
		DstArrayElement: handle.Index,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{
			{Buffer: b.handle, Offset: 0, Range: vk.DeviceSize(b.desc.Size)},
		},
	})
}

func (h *DescriptorHeap) CreateShaderResourceView(handle metadata.DescriptorHandle, tex metadata.Texture) {
	t, ok := tex.(*Texture)
	if !ok || handle.Index >= h.capacity {
		core.LogError("invalid shader resource view at slot %d", handle.Index)
		return
	}
	h.write(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.set,
		DstBinding:      heapBindingTextures,
		DstArrayElement: handle.Index,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{
			{Sampler: h.device.sampler, ImageView: t.view, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal},
		},
	})
}

func (h *DescriptorHeap) CreateAccelerationStructureView(handle metadata.DescriptorHandle, as metadata.AccelerationStructure) {
	core.LogWarn("acceleration structure view at slot %d ignored: %s", handle.Index, core.ErrUnsupported)
}

func (h *DescriptorHeap) Release() {
	if h.pool != nil {
		vk.DestroyDescriptorPool(h.device.LogicalDevice, h.pool, nil)
		h.pool = nil
	}
}
