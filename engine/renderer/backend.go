package renderer

import (
	"fmt"
	"strings"
)

/** @brief The GPU backend the engine drives. */
type BackendType uint8

const (
	/** @brief goki/vulkan on a glfw surface. */
	BackendVulkan BackendType = iota
	/** @brief The software device: no window, no GPU. */
	BackendHeadless
)

func (b BackendType) String() string {
	switch b {
	case BackendHeadless:
		return "headless"
	default:
		return "vulkan"
	}
}

func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(s) {
	case "", "vulkan":
		return BackendVulkan, nil
	case "headless", "software":
		return BackendHeadless, nil
	}
	return BackendVulkan, fmt.Errorf("unknown renderer backend %q", s)
}
