package vulkan

import (
	"fmt"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief A compiled pipeline. Every pipeline shares the device layout, so
 * binding one never invalidates the descriptor sets.
 */
type PipelineState struct {
	device    *Device
	id        uuid.UUID
	name      string
	kind      metadata.ShaderKind
	handle    vk.Pipeline
	bindPoint vk.PipelineBindPoint
}

func (d *Device) CreatePipelineState(desc metadata.PipelineDesc) (metadata.PipelineState, error) {
	if d.pipelineLayout == nil {
		return nil, fmt.Errorf("pipeline %q created before the descriptor heap: %w", desc.Name, core.ErrInvalidHandle)
	}
	switch desc.Kind {
	case metadata.ShaderKindRaster:
		return d.createGraphicsPipeline(desc)
	case metadata.ShaderKindCompute:
		return d.createComputePipeline(desc)
	}
	return nil, fmt.Errorf("pipeline %q: %s shaders: %w", desc.Name, desc.Kind, core.ErrUnsupported)
}

func (d *Device) createShaderModule(name string, code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader %q has %d bytes of SPIR-V: %w", name, len(code), core.ErrShaderCompile)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    bytesToWords(code),
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.LogicalDevice, &info, nil, &module), "vkCreateShaderModule"); err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	return module, nil
}

func (d *Device) createGraphicsPipeline(desc metadata.PipelineDesc) (*PipelineState, error) {
	vertex, err := d.createShaderModule(desc.Name, desc.Bytecode.Vertex)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.LogicalDevice, vertex, nil)
	pixel, err := d.createShaderModule(desc.Name, desc.Bytecode.Pixel)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.LogicalDevice, pixel, nil)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertex,
			PName:  VulkanSafeString(metadata.VertexShaderEntry),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: pixel,
			PName:  VulkanSafeString(metadata.PixelShaderEntry),
		},
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		FrontFace:   vk.FrontFaceClockwise,
	}
	if desc.Wireframe {
		rasterizer.PolygonMode = vk.PolygonModeLine
	}
	switch desc.CullMode {
	case metadata.FaceCullModeNone:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: sampleCount(max(desc.SampleCount, 1)),
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLessOrEqual,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blends := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColourFormats))
	for i := range blends {
		blends[i] = vk.PipelineColorBlendAttachmentState{ColorWriteMask: writeMask}
		if desc.AlphaBlend {
			blends[i].BlendEnable = vk.True
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].ColorBlendOp = vk.BlendOpAdd
			blends[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colourBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexLayout))
	for i, a := range desc.VertexLayout {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   vertexFormat(a),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	if desc.VertexStride > 0 {
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{
			{Binding: 0, Stride: desc.VertexStride, InputRate: vk.VertexInputRateVertex},
		}
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	if desc.Topology == metadata.TopologyLineList {
		inputAssembly.Topology = vk.PrimitiveTopologyLineList
	}

	renderPass, err := d.passes.compatible(desc.ColourFormats, desc.DepthFormat, desc.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Name, err)
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colourBlend,
		PDynamicState:       &dynamicState,
		Layout:              d.pipelineLayout,
		RenderPass:          renderPass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Name, err)
	}
	core.LogDebug("graphics pipeline %q created", desc.Name)
	return &PipelineState{
		device:    d,
		id:        uuid.New(),
		name:      desc.Name,
		kind:      desc.Kind,
		handle:    pipelines[0],
		bindPoint: vk.PipelineBindPointGraphics,
	}, nil
}

func (d *Device) createComputePipeline(desc metadata.PipelineDesc) (*PipelineState, error) {
	module, err := d.createShaderModule(desc.Name, desc.Bytecode.Compute)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.LogicalDevice, module, nil)

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  VulkanSafeString(metadata.ComputeShaderEntry),
		},
		Layout:             d.pipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateComputePipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines), "vkCreateComputePipelines")
	}); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Name, err)
	}
	core.LogDebug("compute pipeline %q created", desc.Name)
	return &PipelineState{
		device:    d,
		id:        uuid.New(),
		name:      desc.Name,
		kind:      desc.Kind,
		handle:    pipelines[0],
		bindPoint: vk.PipelineBindPointCompute,
	}, nil
}

func (p *PipelineState) ID() uuid.UUID {
	return p.id
}

func (p *PipelineState) Name() string {
	return p.name
}

func (p *PipelineState) Kind() metadata.ShaderKind {
	return p.kind
}

func (p *PipelineState) Release() {
	if p.handle == nil {
		return
	}
	p.device.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(p.device.LogicalDevice, p.handle, nil)
		p.handle = nil
		return nil
	})
}
