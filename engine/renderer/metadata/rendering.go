package metadata

import "fmt"

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = iota
	/** @brief Only front faces are culled. */
	FaceCullModeFront
	/** @brief No faces are culled. */
	FaceCullModeNone
)

func ParseFaceCullMode(s string) (FaceCullMode, error) {
	switch s {
	case "back":
		return FaceCullModeBack, nil
	case "front":
		return FaceCullModeFront, nil
	case "none":
		return FaceCullModeNone, nil
	}
	return FaceCullModeBack, fmt.Errorf("unknown cull mode %q", s)
}

/** @brief The kind of program a shader declares. */
type ShaderKind int

const (
	ShaderKindRaster ShaderKind = iota
	ShaderKindCompute
	ShaderKindRaytrace
)

func (k ShaderKind) String() string {
	switch k {
	case ShaderKindCompute:
		return "compute"
	case ShaderKindRaytrace:
		return "raytrace"
	default:
		return "raster"
	}
}

func ParseShaderKind(s string) (ShaderKind, error) {
	switch s {
	case "raster":
		return ShaderKindRaster, nil
	case "compute":
		return ShaderKindCompute, nil
	case "raytrace":
		return ShaderKindRaytrace, nil
	}
	return ShaderKindRaster, fmt.Errorf("unknown shader kind %q", s)
}

/** @brief Variant of a material pipeline, one per pass it takes part in. */
type PipelineVariant int

const (
	PipelineVariantMain PipelineVariant = iota
	PipelineVariantGBuffer
	PipelineVariantShadow
	PipelineVariantWireframe
	// Multisampled main variant, built only when render textures use MSAA.
	PipelineVariantRenderTexture
	pipelineVariantCount
)

const PipelineVariantCount = int(pipelineVariantCount)

func (v PipelineVariant) String() string {
	switch v {
	case PipelineVariantGBuffer:
		return "gbuffer"
	case PipelineVariantShadow:
		return "shadow"
	case PipelineVariantWireframe:
		return "wireframe"
	case PipelineVariantRenderTexture:
		return "render_texture"
	default:
		return "main"
	}
}

/**
 * @brief A pipeline as the passes see it. The shader system swaps State
 * when a reload succeeds, so holders of the pointer pick up the new state
 * on their next bind.
 */
type Pipeline struct {
	Name   string
	Shader string
	Kind   ShaderKind
	State  PipelineState
}

// Ready reports whether the pipeline has a state to bind.
func (p *Pipeline) Ready() bool {
	return p != nil && p.State != nil
}
