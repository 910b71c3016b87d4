package vulkan

import "sync"

type LockGroup string

const (
	// Queue submission and presentation.
	QueueManagement LockGroup = "queue_management"
	// The render pass and framebuffer caches.
	RenderpassManagement LockGroup = "renderpass_management"
	PipelineManagement   LockGroup = "pipeline_management"
	// Descriptor writes into the shared heap set.
	DescriptorManagement LockGroup = "descriptor_management"
)

// VulkanLockPool hands out one mutex per group of externally synchronized
// Vulkan objects.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	vs.mu.Unlock()
	l.Lock()
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	defer l.Unlock()
	return fn()
}
