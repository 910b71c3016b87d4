package metadata

/**
 * @brief A texture referenced by materials. Textures are deduplicated by
 * the hash of their path.
 */
type TextureAsset struct {
	/** @brief The path as written in the materials file. */
	Path string
	/** @brief Hash of Path, used for deduplication. */
	Hash uint64
	/** @brief Diffuse textures are sampled as sRGB. */
	SRGB   bool
	Width  uint32
	Height uint32
	Format Format
	/** @brief The GPU texture. Nil until the upload has been recorded. */
	Resource Texture
	/** @brief Shader resource view in the shared heap. */
	View DescriptorHandle
	/** @brief Set when the texture is the output of a render texture pass. */
	RenderTexture *RenderTexture
	Loaded        bool
}

/**
 * @brief An off-screen target rendered by its own camera, for example the
 * view through a portal.
 */
type RenderTexture struct {
	Name   string
	Width  uint32
	Height uint32
	Camera *Camera
	/** @brief Multisampled colour target. Nil without MSAA. */
	MultisampledColour Texture
	/** @brief The texture materials sample. */
	Colour Texture
	Depth  Texture
	/** @brief The asset materials reference to sample this target. */
	Asset *TextureAsset
}

func (rt *RenderTexture) SampleCount() uint32 {
	if rt.MultisampledColour != nil {
		return rt.MultisampledColour.Desc().SampleCount
	}
	return 1
}

// RenderTarget is the texture the pass draws into.
func (rt *RenderTexture) RenderTarget() Texture {
	if rt.MultisampledColour != nil {
		return rt.MultisampledColour
	}
	return rt.Colour
}
