package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Attachments enter and leave every pass in their attachment layout; the
// frame core moves them around with explicit barriers.
type attachmentKey struct {
	format  metadata.Format
	samples uint32
	load    metadata.LoadOp
}

/**
 * @brief Render passes and framebuffers built on demand from the targets of
 * a RenderPassDesc and cached by their attachments.
 */
type renderPassCache struct {
	device       *Device
	passes       map[string]vk.RenderPass
	framebuffers map[string]vk.Framebuffer
	// Framebuffer keys that reference a texture id.
	byTexture map[uint64][]string
}

func newRenderPassCache(d *Device) *renderPassCache {
	return &renderPassCache{
		device:       d,
		passes:       make(map[string]vk.RenderPass),
		framebuffers: make(map[string]vk.Framebuffer),
		byTexture:    make(map[uint64][]string),
	}
}

func passKey(colour []attachmentKey, depth *attachmentKey) string {
	var b strings.Builder
	for _, c := range colour {
		fmt.Fprintf(&b, "c%d:%d:%d;", c.format, c.samples, c.load)
	}
	if depth != nil {
		fmt.Fprintf(&b, "d%d:%d:%d;", depth.format, depth.samples, depth.load)
	}
	return b.String()
}

func loadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

// pass returns the render pass matching the targets of desc.
func (c *renderPassCache) pass(desc metadata.RenderPassDesc) (vk.RenderPass, string, error) {
	colour := make([]attachmentKey, len(desc.Colour))
	for i, t := range desc.Colour {
		td := t.Texture.Desc()
		colour[i] = attachmentKey{format: td.Format, samples: max(td.SampleCount, 1), load: t.Load}
	}
	var depth *attachmentKey
	if desc.Depth != nil {
		td := desc.Depth.Texture.Desc()
		depth = &attachmentKey{format: td.Format, samples: max(td.SampleCount, 1), load: desc.Depth.Load}
	}
	return c.get(colour, depth)
}

// compatible returns a render pass a pipeline with these formats can be built
// against. Load operations do not affect compatibility.
func (c *renderPassCache) compatible(colourFormats []metadata.Format, depthFormat metadata.Format, samples uint32) (vk.RenderPass, error) {
	samples = max(samples, 1)
	colour := make([]attachmentKey, len(colourFormats))
	for i, f := range colourFormats {
		colour[i] = attachmentKey{format: f, samples: samples, load: metadata.LoadOpLoad}
	}
	var depth *attachmentKey
	if depthFormat != metadata.FormatUnknown {
		depth = &attachmentKey{format: depthFormat, samples: samples, load: metadata.LoadOpLoad}
	}
	rp, _, err := c.get(colour, depth)
	return rp, err
}

func (c *renderPassCache) get(colour []attachmentKey, depth *attachmentKey) (vk.RenderPass, string, error) {
	key := passKey(colour, depth)
	var out vk.RenderPass
	err := c.device.locks.SafeCall(RenderpassManagement, func() error {
		if rp, ok := c.passes[key]; ok {
			out = rp
			return nil
		}
		rp, err := c.create(colour, depth)
		if err != nil {
			return err
		}
		c.passes[key] = rp
		out = rp
		return nil
	})
	return out, key, err
}

func (c *renderPassCache) create(colour []attachmentKey, depth *attachmentKey) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(colour)+1)
	colourRefs := make([]vk.AttachmentReference, 0, len(colour))
	for _, a := range colour {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vulkanFormat(a.format),
			Samples:        sampleCount(a.samples),
			LoadOp:         loadOp(a.load),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colourRefs = append(colourRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colourRefs)),
		PColorAttachments:    colourRefs,
	}
	if depth != nil {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vulkanFormat(depth.format),
			Samples:        sampleCount(depth.samples),
			LoadOp:         loadOp(depth.load),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := check(vk.CreateRenderPass(c.device.LogicalDevice, &info, nil, &rp), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	core.LogDebug("render pass created for %d colour attachments (depth: %t)", len(colour), depth != nil)
	return rp, nil
}

// framebuffer returns the framebuffer binding the targets of desc to rp.
func (c *renderPassCache) framebuffer(rp vk.RenderPass, passKey string, desc metadata.RenderPassDesc) (vk.Framebuffer, uint32, uint32, error) {
	targets := make([]*Texture, 0, len(desc.Colour)+1)
	for _, t := range desc.Colour {
		tex, ok := t.Texture.(*Texture)
		if !ok {
			return nil, 0, 0, fmt.Errorf("render target %T does not belong to the vulkan device: %w", t.Texture, core.ErrInvalidHandle)
		}
		targets = append(targets, tex)
	}
	if desc.Depth != nil {
		tex, ok := desc.Depth.Texture.(*Texture)
		if !ok {
			return nil, 0, 0, fmt.Errorf("depth target %T does not belong to the vulkan device: %w", desc.Depth.Texture, core.ErrInvalidHandle)
		}
		targets = append(targets, tex)
	}
	if len(targets) == 0 {
		return nil, 0, 0, fmt.Errorf("render pass %q has no targets: %w", desc.Name, core.ErrInvalidHandle)
	}

	width, height := targets[0].desc.Width, targets[0].desc.Height
	var b strings.Builder
	b.WriteString(passKey)
	views := make([]vk.ImageView, len(targets))
	for i, t := range targets {
		fmt.Fprintf(&b, "#%d", t.id)
		views[i] = t.view
	}
	key := b.String()

	var out vk.Framebuffer
	err := c.device.locks.SafeCall(RenderpassManagement, func() error {
		if fb, ok := c.framebuffers[key]; ok {
			out = fb
			return nil
		}
		info := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      rp,
			AttachmentCount: uint32(len(views)),
			PAttachments:    views,
			Width:           width,
			Height:          height,
			Layers:          1,
		}
		var fb vk.Framebuffer
		if err := check(vk.CreateFramebuffer(c.device.LogicalDevice, &info, nil, &fb), "vkCreateFramebuffer"); err != nil {
			return err
		}
		c.framebuffers[key] = fb
		for _, t := range targets {
			c.byTexture[t.id] = append(c.byTexture[t.id], key)
		}
		out = fb
		return nil
	})
	return out, width, height, err
}

// forget destroys every framebuffer that references the texture.
func (c *renderPassCache) forget(texID uint64) {
	c.device.locks.SafeCall(RenderpassManagement, func() error {
		for _, key := range c.byTexture[texID] {
			if fb, ok := c.framebuffers[key]; ok {
				vk.DestroyFramebuffer(c.device.LogicalDevice, fb, nil)
				delete(c.framebuffers, key)
			}
		}
		delete(c.byTexture, texID)
		return nil
	})
}

func (c *renderPassCache) destroy() {
	c.device.locks.SafeCall(RenderpassManagement, func() error {
		for key, fb := range c.framebuffers {
			vk.DestroyFramebuffer(c.device.LogicalDevice, fb, nil)
			delete(c.framebuffers, key)
		}
		for key, rp := range c.passes {
			vk.DestroyRenderPass(c.device.LogicalDevice, rp, nil)
			delete(c.passes, key)
		}
		clear(c.byTexture)
		return nil
	})
}
