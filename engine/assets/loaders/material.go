package loaders

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/** @brief A texture referenced from the materials file. */
type TextureFile struct {
	Path string
	Hash uint64
	SRGB bool
}

/** @brief A shader declared on its own, outside any material. */
type ShaderFile struct {
	Name string
	Kind metadata.ShaderKind
}

/** @brief One `material` block of the materials file. */
type MaterialFile struct {
	Name          string
	ShaderName    string
	DiffuseColour math.Vec4
	CullMode      metadata.FaceCullMode
	// In directive order, shared with MaterialsFile.Textures.
	Textures      []*TextureFile
	Defines       []metadata.ShaderDefine
	RootConstants []metadata.RootConstant
}

func (m *MaterialFile) addDefine(name string) {
	for _, d := range m.Defines {
		if d.Name == name {
			return
		}
	}
	m.Defines = append(m.Defines, metadata.ShaderDefine{Name: name, Value: "1"})
}

type MaterialsFile struct {
	Materials []*MaterialFile
	Shaders   []ShaderFile
	// Deduplicated by path hash, in first use order.
	Textures []*TextureFile
	// Number of malformed lines that were skipped.
	Skipped int
}

// HashPath is the key textures are deduplicated by.
func HashPath(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, params interface{}) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mf, err := ParseMaterials(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     "materials",
		FullPath: path,
		Type:     ResourceTypeMaterial,
		DataSize: uint64(len(mf.Materials)),
		Data:     mf,
	}, nil
}

func (ml *MaterialLoader) Unload(r *Resource) error {
	r.Data = nil
	return nil
}

/**
 * @brief Parses the line oriented materials description. One directive per
 * line, whitespace separated, # starts a comment line. Malformed lines are
 * logged and skipped.
 */
func ParseMaterials(r io.Reader) (*MaterialsFile, error) {
	out := &MaterialsFile{}
	textures := map[uint64]*TextureFile{}
	var current *MaterialFile

	skip := func(lineNo int, line, reason string) {
		core.LogWarn("materials line %d skipped (%s): %s", lineNo, reason, line)
		out.Skipped++
	}

	addTexture := func(lineNo int, line string, tokens []string, srgb bool) *TextureFile {
		if len(tokens) != 2 {
			skip(lineNo, line, "expected "+tokens[0]+" <path>")
			return nil
		}
		hash := HashPath(tokens[1])
		t, ok := textures[hash]
		if !ok {
			t = &TextureFile{Path: tokens[1], Hash: hash}
			textures[hash] = t
			out.Textures = append(out.Textures, t)
		}
		t.SRGB = t.SRGB || srgb
		current.Textures = append(current.Textures, t)
		return t
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)

		switch tokens[0] {
		case "shader":
			if len(tokens) != 3 {
				skip(lineNo, line, "expected shader <name> <raster|compute|raytrace>")
				continue
			}
			kind, err := metadata.ParseShaderKind(tokens[2])
			if err != nil {
				skip(lineNo, line, err.Error())
				continue
			}
			out.Shaders = append(out.Shaders, ShaderFile{Name: tokens[1], Kind: kind})
			continue
		case "material":
			if len(tokens) != 3 {
				skip(lineNo, line, "expected material <name> <shader>")
				continue
			}
			current = &MaterialFile{
				Name:          tokens[1],
				ShaderName:    tokens[2],
				DiffuseColour: math.NewVec4One(),
				CullMode:      metadata.FaceCullModeBack,
			}
			out.Materials = append(out.Materials, current)
			continue
		}

		if current == nil {
			skip(lineNo, line, "no material to apply it to")
			continue
		}

		switch tokens[0] {
		case "diffuse":
			if addTexture(lineNo, line, tokens, true) != nil {
				current.addDefine("DIFFUSE_TEXTURE")
			}
		case "diffuse_clip":
			if addTexture(lineNo, line, tokens, false) != nil {
				current.addDefine("DIFFUSE_TEXTURE")
				current.addDefine("ALPHA_CLIP")
			}
		case "normal":
			if addTexture(lineNo, line, tokens, false) != nil {
				current.addDefine("NORMAL_TEXTURE")
			}
		case "metallic_roughness":
			if addTexture(lineNo, line, tokens, false) != nil {
				current.addDefine("METALLIC_ROUGHNESS_TEXTURE")
			}
		case "color":
			if len(tokens) != 5 {
				skip(lineNo, line, "expected color <r> <g> <b> <a>")
				continue
			}
			var c [4]float32
			ok := true
			for i := range c {
				v, err := strconv.ParseFloat(tokens[i+1], 32)
				if err != nil {
					ok = false
					break
				}
				c[i] = float32(v)
			}
			if !ok {
				skip(lineNo, line, "invalid colour component")
				continue
			}
			current.DiffuseColour = math.NewVec4(c[0], c[1], c[2], c[3])
		case "cullmode":
			if len(tokens) != 2 {
				skip(lineNo, line, "expected cullmode <front|back|none>")
				continue
			}
			mode, err := metadata.ParseFaceCullMode(tokens[1])
			if err != nil {
				skip(lineNo, line, err.Error())
				continue
			}
			current.CullMode = mode
		case "rootconstant":
			if len(tokens) != 4 {
				skip(lineNo, line, "expected rootconstant <name> <float|uint> <value>")
				continue
			}
			rc, err := parseRootConstant(tokens[1], tokens[2], tokens[3])
			if err != nil {
				skip(lineNo, line, err.Error())
				continue
			}
			current.RootConstants = append(current.RootConstants, rc)
		default:
			skip(lineNo, line, "unknown directive")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRootConstant(name, kind, value string) (metadata.RootConstant, error) {
	switch kind {
	case "float":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return metadata.RootConstant{}, fmt.Errorf("invalid float %q", value)
		}
		return metadata.NewFloatRootConstant(name, float32(v)), nil
	case "uint":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			return metadata.NewUintRootConstant(name, uint32(v)), nil
		}
		// written as a float, e.g. 1.0
		v, err := strconv.ParseFloat(value, 32)
		if err != nil || v < 0 {
			return metadata.RootConstant{}, fmt.Errorf("invalid uint %q", value)
		}
		return metadata.NewUintRootConstant(name, uint32(v)), nil
	}
	return metadata.RootConstant{}, fmt.Errorf("unknown root constant type %q", kind)
}
