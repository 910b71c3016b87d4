package metadata

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/directengine/engine/containers"
	"github.com/spaghettifunk/directengine/engine/math"
)

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

type RootConstantKind int

const (
	RootConstantFloat RootConstantKind = iota
	RootConstantUint
)

/** @brief A named 32 bit value bound at RootSlotMaterialConstants. */
type RootConstant struct {
	Name string
	Kind RootConstantKind
	Bits uint32
}

func NewFloatRootConstant(name string, v float32) RootConstant {
	return RootConstant{Name: name, Kind: RootConstantFloat, Bits: stdmath.Float32bits(v)}
}

func NewUintRootConstant(name string, v uint32) RootConstant {
	return RootConstant{Name: name, Kind: RootConstantUint, Bits: v}
}

func (c RootConstant) Float() float32 {
	return stdmath.Float32frombits(c.Bits)
}

/** @brief A preprocessor define passed to the shader compiler. */
type ShaderDefine struct {
	Name  string
	Value string
}

func (d ShaderDefine) String() string {
	return fmt.Sprintf("%s=%s", d.Name, d.Value)
}

/**
 * @brief A declared shader program. Materials reference shaders by name.
 */
type ShaderRecord struct {
	Name string
	Kind ShaderKind
}

/**
 * @brief A material, which binds a shader with its textures, root constants
 * and defines, and owns the list of entities drawn with it.
 */
type Material struct {
	/** @brief Creation order index. */
	Index      int
	Name       string
	ShaderName string
	Kind       ShaderKind
	/** @brief The diffuse colour. */
	DiffuseColour math.Vec4
	CullMode      FaceCullMode
	/** @brief One pipeline per pass variant. Nil variants skip the pass. */
	Pipelines     [PipelineVariantCount]*Pipeline
	Textures      *containers.FixedList[*TextureAsset]
	RootConstants *containers.FixedList[RootConstant]
	Defines       *containers.FixedList[ShaderDefine]
	Entities      *containers.FixedList[*Entity]
	/** @brief First slot of the contiguous texture table. */
	TextureTable DescriptorHandle
}

func NewMaterial(name, shaderName string) *Material {
	return &Material{
		Name:          name,
		ShaderName:    shaderName,
		DiffuseColour: math.NewVec4One(),
		CullMode:      FaceCullModeBack,
		Textures:      containers.NewFixedList[*TextureAsset]("material textures", MaxTexturesPerMaterial),
		RootConstants: containers.NewFixedList[RootConstant]("material root constants", MaxRootConstantsPerMaterial),
		Defines:       containers.NewFixedList[ShaderDefine]("material defines", MaxDefinesPerMaterial),
		Entities:      containers.NewFixedList[*Entity]("material entities", MaxEntitiesPerMaterial),
	}
}

// AddDefine adds name=value unless the define is already present.
func (m *Material) AddDefine(name, value string) {
	if m.Defines.IndexFunc(func(d ShaderDefine) bool { return d.Name == name }) >= 0 {
		return
	}
	m.Defines.Add(ShaderDefine{Name: name, Value: value})
}

func (m *Material) HasDefine(name string) bool {
	return m.Defines.IndexFunc(func(d ShaderDefine) bool { return d.Name == name }) >= 0
}

// RootConstantValues returns the raw values in declaration order.
func (m *Material) RootConstantValues() []uint32 {
	values := make([]uint32, 0, m.RootConstants.Len())
	for _, c := range m.RootConstants.Items() {
		values = append(values, c.Bits)
	}
	return values
}

func (m *Material) SetRootConstant(name string, bits uint32) bool {
	i := m.RootConstants.IndexFunc(func(c RootConstant) bool { return c.Name == name })
	if i < 0 {
		return false
	}
	m.RootConstants.At(i).Bits = bits
	return true
}

// Pipeline returns the pipeline of variant, falling back to the main
// pipeline for the render texture variant.
func (m *Material) Pipeline(variant PipelineVariant) *Pipeline {
	p := m.Pipelines[variant]
	if p == nil && variant == PipelineVariantRenderTexture {
		return m.Pipelines[PipelineVariantMain]
	}
	return p
}

// Samples reports whether the material reads the given render texture.
func (m *Material) Samples(rt *RenderTexture) bool {
	if rt == nil {
		return false
	}
	return m.Textures.IndexFunc(func(t *TextureAsset) bool { return t.RenderTexture == rt }) >= 0
}
