package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

func VulkanResultString(result vk.Result) string {
	switch result {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// check turns a failed call into an error. Device loss wraps core.ErrDeviceLost.
func check(result vk.Result, call string) error {
	switch result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", call, core.ErrDeviceLost)
	}
	return fmt.Errorf("%s failed with %s", call, VulkanResultString(result))
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the length of a NUL terminated name.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

func bytesToWords(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
}

func vulkanFormat(f metadata.Format) vk.Format {
	switch f {
	case metadata.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatRGBA8UnormSRGB:
		return vk.FormatR8g8b8a8Srgb
	case metadata.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatR32Float:
		return vk.FormatR32Sfloat
	case metadata.FormatD32Float:
		return vk.FormatD32Sfloat
	case metadata.FormatBC1UnormSRGB:
		return vk.FormatBc1RgbaSrgbBlock
	case metadata.FormatBC5Unorm:
		return vk.FormatBc5UnormBlock
	}
	return vk.FormatUndefined
}

func engineFormat(f vk.Format) metadata.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FormatRGBA8Unorm
	case vk.FormatR8g8b8a8Srgb:
		return metadata.FormatRGBA8UnormSRGB
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FormatBGRA8Unorm
	}
	return metadata.FormatUnknown
}

// Bytes per texel of uncompressed formats.
func texelSize(f metadata.Format) uint32 {
	switch f {
	case metadata.FormatRGBA16Float:
		return 8
	case metadata.FormatRGBA32Float:
		return 16
	}
	return 4
}

func vertexFormat(a metadata.VertexAttribute) vk.Format {
	switch a.Components {
	case 1:
		return vk.FormatR32Sfloat
	case 2:
		return vk.FormatR32g32Sfloat
	case 3:
		return vk.FormatR32g32b32Sfloat
	}
	if a.Format == metadata.FormatRGBA8Unorm {
		return vk.FormatR8g8b8a8Unorm
	}
	return vk.FormatR32g32b32a32Sfloat
}

func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

/**
 * @brief How a resource state maps onto an image layout, the accesses that
 * must be made visible and the stages that perform them.
 */
type stateInfo struct {
	layout vk.ImageLayout
	access vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

func imageState(s metadata.ResourceState) stateInfo {
	switch s {
	case metadata.ResourceStateRenderTarget:
		return stateInfo{vk.ImageLayoutColorAttachmentOptimal, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit}
	case metadata.ResourceStateDepthWrite:
		return stateInfo{vk.ImageLayoutDepthStencilAttachmentOptimal, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit}
	case metadata.ResourceStatePixelShaderResource:
		return stateInfo{vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit}
	case metadata.ResourceStateUnorderedAccess:
		return stateInfo{vk.ImageLayoutGeneral, vk.AccessShaderReadBit | vk.AccessShaderWriteBit, vk.PipelineStageComputeShaderBit}
	case metadata.ResourceStatePresent:
		return stateInfo{vk.ImageLayoutPresentSrc, 0, vk.PipelineStageBottomOfPipeBit}
	case metadata.ResourceStateCopySource, metadata.ResourceStateResolveSource:
		return stateInfo{vk.ImageLayoutTransferSrcOptimal, vk.AccessTransferReadBit, vk.PipelineStageTransferBit}
	case metadata.ResourceStateCopyDest, metadata.ResourceStateResolveDest:
		return stateInfo{vk.ImageLayoutTransferDstOptimal, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit}
	}
	return stateInfo{vk.ImageLayoutGeneral, vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit, vk.PipelineStageAllCommandsBit}
}
