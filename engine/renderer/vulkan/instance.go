package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

/**
 * @brief The instance level objects: the instance itself, the debug report
 * callback of validation builds and the window surface.
 */
type instance struct {
	handle   vk.Instance
	surface  vk.Surface
	debugCB  vk.DebugReportCallback
	debug    bool
	hasDebug bool
}

func createInstance(appName string, window *glfw.Window, debug bool) (*instance, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Direct Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	var layers []string
	if debug {
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("validation layer %s is missing, continuing without it", validationLayer)
			debug = false
		}
	}
	core.LogDebug("vulkan instance extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	inst := &instance{debug: debug}
	if err := check(vk.CreateInstance(&createInfo, nil, &inst.handle), "vkCreateInstance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		vk.DestroyInstance(inst.handle, nil)
		return nil, err
	}

	if debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check(vk.CreateDebugReportCallback(inst.handle, &debugCreateInfo, nil, &inst.debugCB), "vkCreateDebugReportCallback"); err != nil {
			core.LogWarn("%s", err)
		} else {
			inst.hasDebug = true
		}
	}

	surface, err := window.CreateWindowSurface(inst.handle, nil)
	if err != nil {
		inst.destroy()
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	inst.surface = vk.SurfaceFromPointer(surface)
	core.LogInfo("vulkan instance created (validation: %t)", debug)
	return inst, nil
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		end := FindFirstZeroInByteArray(layers[i].LayerName[:])
		if string(layers[i].LayerName[:end]) == name {
			return true
		}
	}
	return false
}

func (i *instance) destroy() {
	if i.surface != nil {
		vk.DestroySurface(i.handle, i.surface, nil)
		i.surface = nil
	}
	if i.hasDebug {
		vk.DestroyDebugReportCallback(i.handle, i.debugCB, nil)
		i.hasDebug = false
	}
	vk.DestroyInstance(i.handle, nil)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
