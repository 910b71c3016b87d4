package loaders

/** @brief The kind of file a loader produces. */
type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	/** @brief WGSL shader source, compiled at runtime when hot reload is on. */
	ResourceTypeShader
	/** @brief Precompiled SPIR-V. */
	ResourceTypeBytecode
	/** @brief DDS texture. */
	ResourceTypeTexture
	/** @brief The materials description file. */
	ResourceTypeMaterial
	/** @brief Raw vertex arrays. */
	ResourceTypeModel
	/** @brief AngelCode bitmap font. */
	ResourceTypeBitmapFont
	/** @brief TrueType/OpenType font. */
	ResourceTypeSystemFont
	/** @brief Any other binary blob. */
	ResourceTypeBinary
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeBytecode:
		return "bytecode"
	case ResourceTypeTexture:
		return "texture"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeModel:
		return "model"
	case ResourceTypeBitmapFont:
		return "bitmap-font"
	case ResourceTypeSystemFont:
		return "system-font"
	case ResourceTypeBinary:
		return "binary"
	}
	return "none"
}

/**
 * @brief The result of a loader. Data holds the loader specific payload.
 */
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     interface{}
}
