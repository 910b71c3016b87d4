package vulkan

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type DeviceConfig struct {
	AppName string
	Window  *glfw.Window
	/** @brief Enables the validation layer and routes its reports to the log. */
	Debug bool
	/** @brief Skip integrated GPUs. Ignored on darwin. */
	DiscreteGPU bool
	/** @brief Runs window calls on the window thread. Called inline when nil. */
	WindowThread func(fn func())
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex uint32
	PresentFamilyIndex  uint32
	hasGraphics         bool
	hasPresent          bool
}

/**
 * @brief A goki/vulkan implementation of the engine GPU model on a glfw
 * window surface.
 *
 * Every pipeline shares one layout: set 0 is the shader visible descriptor
 * heap, set 1 holds the root constant buffers and the push constant block
 * carries the descriptor table bases followed by the root constants.
 */
type Device struct {
	inst         *instance
	window       *glfw.Window
	windowThread func(fn func())

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Properties     vk.PhysicalDeviceProperties
	Memory         vk.PhysicalDeviceMemoryProperties
	queueInfo      VulkanPhysicalDeviceQueueFamilyInfo

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	locks   *VulkanLockPool
	sampler vk.Sampler

	// Pool of the single use buffers recorded by immediate.
	immediatePool vk.CommandPool

	heapLayout     vk.DescriptorSetLayout
	rootLayout     vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	pushSize       uint32

	passes *renderPassCache

	mu      sync.Mutex
	nextID  uint64
	buffers map[uint64]*Buffer
	name    string
}

func NewDevice(config DeviceConfig) (*Device, error) {
	inst, err := createInstance(config.AppName, config.Window, config.Debug)
	if err != nil {
		return nil, err
	}
	d := &Device{
		inst:         inst,
		window:       config.Window,
		windowThread: config.WindowThread,
		locks:   NewVulkanLockPool(),
		buffers: make(map[uint64]*Buffer),
	}
	if err := d.selectPhysicalDevice(config.DiscreteGPU && runtime.GOOS != "darwin"); err != nil {
		inst.destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		inst.destroy()
		return nil, err
	}
	if err := d.createSampler(); err != nil {
		d.Release()
		return nil, err
	}
	pool, err := d.createCommandPool(vk.CommandPoolCreateTransientBit)
	if err != nil {
		d.Release()
		return nil, err
	}
	d.immediatePool = pool
	d.passes = newRenderPassCache(d)
	return d, nil
}

func (d *Device) onWindowThread(fn func()) {
	if d.windowThread == nil {
		fn()
		return
	}
	d.windowThread(fn)
}

func (d *Device) Name() string {
	return d.name
}

// Ray tracing pipelines are not wired on this backend; the renderer falls
// back to the rasterized shadow pass.
func (d *Device) SupportsRaytracing() bool {
	return false
}

func (d *Device) selectPhysicalDevice(discrete bool) error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(d.inst.handle, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNotFound)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(d.inst.handle, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	for _, pd := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()

		queueInfo, ok := d.meetsRequirements(pd, &properties, discrete)
		if !ok {
			continue
		}

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()

		d.PhysicalDevice = pd
		d.Properties = properties
		d.Memory = memory
		d.queueInfo = queueInfo
		end := FindFirstZeroInByteArray(properties.DeviceName[:])
		d.name = string(properties.DeviceName[:end])

		core.LogInfo("selected device: '%s'", d.name)
		core.LogInfo("vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch())
		for j := uint32(0); j < memory.MemoryHeapCount; j++ {
			memory.MemoryHeaps[j].Deref()
			gib := float64(memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
			if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				core.LogInfo("local GPU memory: %.2f GiB", gib)
			} else {
				core.LogInfo("shared system memory: %.2f GiB", gib)
			}
		}
		return nil
	}
	return fmt.Errorf("no physical device meets the requirements: %w", core.ErrNotFound)
}

func (d *Device) meetsRequirements(pd vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, discrete bool) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	var info VulkanPhysicalDeviceQueueFamilyInfo
	if discrete && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("device is not a discrete GPU, and one is required, skipping")
		return info, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	for i := range families {
		families[i].Deref()
		graphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.inst.surface, &present)

		// Prefer one family for both so presentation needs no ownership transfer.
		if graphics && present == vk.True {
			info.GraphicsFamilyIndex, info.PresentFamilyIndex = uint32(i), uint32(i)
			info.hasGraphics, info.hasPresent = true, true
			break
		}
		if graphics && !info.hasGraphics {
			info.GraphicsFamilyIndex, info.hasGraphics = uint32(i), true
		}
		if present == vk.True && !info.hasPresent {
			info.PresentFamilyIndex, info.hasPresent = uint32(i), true
		}
	}
	if !info.hasGraphics || !info.hasPresent {
		core.LogDebug("device lacks a graphics or present queue, skipping")
		return info, false
	}

	support, err := querySwapchainSupport(pd, d.inst.surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogDebug("required swapchain support not present, skipping device")
		return info, false
	}
	if !hasDeviceExtension(pd, vk.KhrSwapchainExtensionName) {
		core.LogDebug("required extension not found: '%s', skipping device", vk.KhrSwapchainExtensionName)
		return info, false
	}
	return info, true
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, extensions) != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		end := FindFirstZeroInByteArray(extensions[i].ExtensionName[:])
		if string(extensions[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	indices := []uint32{d.queueInfo.GraphicsFamilyIndex}
	if d.queueInfo.PresentFamilyIndex != d.queueInfo.GraphicsFamilyIndex {
		indices = append(indices, d.queueInfo.PresentFamilyIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("adding required extension 'VK_KHR_portability_subset'")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	features := vk.PhysicalDeviceFeatures{
		FillModeNonSolid: vk.True,
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	var device vk.Device
	if err := check(vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, nil, &device), "vkCreateDevice"); err != nil {
		return err
	}
	d.LogicalDevice = device

	vk.GetDeviceQueue(d.LogicalDevice, d.queueInfo.GraphicsFamilyIndex, 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(d.LogicalDevice, d.queueInfo.PresentFamilyIndex, 0, &d.PresentQueue)
	core.LogInfo("logical device created")
	return nil
}

func (d *Device) createSampler() error {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       16,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}
	return check(vk.CreateSampler(d.LogicalDevice, &info, nil, &d.sampler), "vkCreateSampler")
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var info VulkanSwapchainSupportInfo
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &info.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return info, err
	}
	info.Formats = make([]vk.SurfaceFormat, formatCount)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, info.Formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return info, err
	}
	for i := range info.Formats {
		info.Formats[i].Deref()
	}

	var modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return info, err
	}
	info.PresentModes = make([]vk.PresentMode, modeCount)
	err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, info.PresentModes), "vkGetPhysicalDeviceSurfacePresentModes")
	return info, err
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag.
func (d *Device) FindMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		d.Memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && vk.MemoryPropertyFlagBits(d.Memory.MemoryTypes[i].PropertyFlags)&flags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unable to find a suitable memory type: %w", core.ErrUnsupported)
}

func (d *Device) allocate(req vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	req.Deref()
	index, err := d.FindMemoryIndex(req.MemoryTypeBits, flags)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.LogicalDevice, &info, nil, &mem), "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return mem, nil
}

func (d *Device) CreateQueue() (metadata.Queue, error) {
	return &Queue{device: d}, nil
}

func (d *Device) CreateFence(initial uint64) (metadata.Fence, error) {
	return &Fence{device: d, completed: initial}, nil
}

func (d *Device) CreateAccelerationStructure(desc metadata.AccelerationStructureDesc) (metadata.AccelerationStructure, error) {
	return nil, fmt.Errorf("acceleration structure %q: %w", desc.Name, core.ErrUnsupported)
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() {
	if d.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.LogicalDevice)
	}
}

func (d *Device) Release() {
	d.WaitIdle()
	if d.passes != nil {
		d.passes.destroy()
	}
	if d.pipelineLayout != nil {
		vk.DestroyPipelineLayout(d.LogicalDevice, d.pipelineLayout, nil)
		d.pipelineLayout = nil
	}
	if d.rootLayout != nil {
		vk.DestroyDescriptorSetLayout(d.LogicalDevice, d.rootLayout, nil)
		d.rootLayout = nil
	}
	if d.heapLayout != nil {
		vk.DestroyDescriptorSetLayout(d.LogicalDevice, d.heapLayout, nil)
		d.heapLayout = nil
	}
	if d.immediatePool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.immediatePool, nil)
		d.immediatePool = nil
	}
	if d.sampler != nil {
		vk.DestroySampler(d.LogicalDevice, d.sampler, nil)
		d.sampler = nil
	}
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, nil)
		d.LogicalDevice = nil
	}
	d.inst.destroy()
	core.LogInfo("vulkan device released")
}
