package loaders

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font/basicfont"

	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

func TestParseMaterialsExample(t *testing.T) {
	mf, err := ParseMaterials(strings.NewReader("material Foo bar\ndiffuse textures/x.dds\ncolor 1 0 0 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(mf.Materials) != 1 {
		t.Fatalf("materials = %d, want 1", len(mf.Materials))
	}
	m := mf.Materials[0]
	if m.Name != "Foo" || m.ShaderName != "bar" {
		t.Fatalf("got material %q with shader %q", m.Name, m.ShaderName)
	}
	if len(mf.Textures) != 1 || mf.Textures[0].Path != "textures/x.dds" || !mf.Textures[0].SRGB {
		t.Fatalf("unexpected textures %+v", mf.Textures)
	}
	if m.DiffuseColour != math.NewVec4(1, 0, 0, 1) {
		t.Fatalf("colour = %+v", m.DiffuseColour)
	}
	if len(m.Defines) != 1 || m.Defines[0].String() != "DIFFUSE_TEXTURE=1" {
		t.Fatalf("defines = %v", m.Defines)
	}
}

func TestParseMaterialsDirectives(t *testing.T) {
	src := `# comment
shader sky raster
shader shadows raytrace
material Wall lit
diffuse_clip textures/leaves.dds
normal textures/leaves_n.dds
metallic_roughness textures/leaves_mr.dds
cullmode none
rootconstant roughness float 0.5
rootconstant layer uint 3
material Floor lit
diffuse textures/leaves.dds
`
	mf, err := ParseMaterials(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if mf.Skipped != 0 {
		t.Fatalf("skipped %d lines", mf.Skipped)
	}
	if len(mf.Shaders) != 2 || mf.Shaders[1].Kind != metadata.ShaderKindRaytrace {
		t.Fatalf("shaders = %+v", mf.Shaders)
	}
	wall := mf.Materials[0]
	want := []string{"DIFFUSE_TEXTURE=1", "ALPHA_CLIP=1", "NORMAL_TEXTURE=1", "METALLIC_ROUGHNESS_TEXTURE=1"}
	if len(wall.Defines) != len(want) {
		t.Fatalf("defines = %v", wall.Defines)
	}
	for i, d := range wall.Defines {
		if d.String() != want[i] {
			t.Fatalf("define %d = %s, want %s", i, d, want[i])
		}
	}
	if wall.CullMode != metadata.FaceCullModeNone {
		t.Fatalf("cull mode = %d", wall.CullMode)
	}
	if len(wall.RootConstants) != 2 || wall.RootConstants[0].Float() != 0.5 || wall.RootConstants[1].Bits != 3 {
		t.Fatalf("root constants = %+v", wall.RootConstants)
	}

	// leaves.dds is shared; the Floor reference makes it sRGB
	if len(mf.Textures) != 3 {
		t.Fatalf("textures not deduplicated: %d", len(mf.Textures))
	}
	if mf.Materials[1].Textures[0] != wall.Textures[0] || !wall.Textures[0].SRGB {
		t.Fatalf("shared texture not shared")
	}
}

func TestParseMaterialsSkipsMalformedLines(t *testing.T) {
	src := `diffuse orphan.dds
material A s
color 1 0
cullmode sideways
rootconstant x double 1
frobnicate
material
diffuse ok.dds
`
	mf, err := ParseMaterials(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if mf.Skipped != 6 {
		t.Fatalf("skipped = %d, want 6", mf.Skipped)
	}
	if len(mf.Materials) != 1 || len(mf.Materials[0].Textures) != 1 || mf.Materials[0].Textures[0].Path != "ok.dds" {
		t.Fatalf("parse did not continue past bad lines: %+v", mf.Materials)
	}
}

func ddsFile(fourCC string, dxgi uint32, width, height uint32, payload int) []byte {
	size := 128 + payload
	if fourCC == "DX10" {
		size += 20
	}
	b := make([]byte, size)
	copy(b, "DDS ")
	binary.LittleEndian.PutUint32(b[4:], 124)
	binary.LittleEndian.PutUint32(b[12:], height)
	binary.LittleEndian.PutUint32(b[16:], width)
	binary.LittleEndian.PutUint32(b[28:], 1)
	binary.LittleEndian.PutUint32(b[80:], ddsFourCCFlag)
	copy(b[84:], fourCC)
	if fourCC == "DX10" {
		binary.LittleEndian.PutUint32(b[128:], dxgi)
	}
	return b
}

func TestParseDDS(t *testing.T) {
	cases := []struct {
		name      string
		file      []byte
		format    metadata.Format
		rowPitch  uint64
		offset    uint64
		wantError bool
	}{
		{"dxt1", ddsFile("DXT1", 0, 256, 128, 64), metadata.FormatBC1UnormSRGB, 64 * 8, 128, false},
		{"dx10 bc5", ddsFile("DX10", dxgiBC5Unorm, 6, 6, 32), metadata.FormatBC5Unorm, 2 * 16, 148, false},
		{"dx10 bc1", ddsFile("DX10", dxgiBC1UnormSRGB, 2, 2, 8), metadata.FormatBC1UnormSRGB, 8, 148, false},
		{"unsupported dxgi", ddsFile("DX10", 28, 4, 4, 0), 0, 0, 0, true},
		{"unsupported fourcc", ddsFile("DXT5", 0, 4, 4, 0), 0, 0, 0, true},
		{"bad magic", []byte("PNG..."), 0, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tex, err := ParseDDS(tc.file)
			if tc.wantError {
				if !errors.Is(err, ErrInvalidDDS) {
					t.Fatalf("expected ErrInvalidDDS, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tex.Format != tc.format || tex.RowPitch != tc.rowPitch || tex.DataOffset != tc.offset {
				t.Fatalf("got format %d row pitch %d offset %d", tex.Format, tex.RowPitch, tex.DataOffset)
			}
			if tex.SlicePitch != tex.RowPitch*uint64(tex.Height) {
				t.Fatalf("slice pitch %d", tex.SlicePitch)
			}
			if uint64(len(tex.Data)) != uint64(len(tc.file))-tc.offset {
				t.Fatalf("payload is %d bytes", len(tex.Data))
			}
		})
	}
}

func TestBytesToWords(t *testing.T) {
	words, err := BytesToWords([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if words[0] != 0x07230203 || words[1] != 1 {
		t.Fatalf("words = %#x", words)
	}
	if _, err := BytesToWords([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a partial word")
	}
}

func TestVertexArrayFile(t *testing.T) {
	in := []math.Vertex3D{
		{Position: math.NewVec3(1, 2, 3), Texcoord: math.NewVec2(0, 1)},
		{Position: math.NewVec3(-1, 0, 0), BoneIndices: [4]uint32{1, 2, 0, 0}},
	}
	b, err := EncodeVertices(in)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "quad.vtx")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&ModelLoader{}).Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := res.Data.([]math.Vertex3D)
	if len(out) != 2 || out[0].Position != in[0].Position || out[1].BoneIndices != in[1].BoneIndices {
		t.Fatalf("vertices = %+v", out)
	}
}

func TestRasterizeBasicFont(t *testing.T) {
	data := RasterizeFace(basicfont.Face7x13, "basic", 13)
	if len(data.Glyphs) != lastPrintable-firstPrintable+1 {
		t.Fatalf("glyphs = %d", len(data.Glyphs))
	}
	g, ok := data.Glyph('A')
	if !ok || g.XAdvance != 7 {
		t.Fatalf("glyph A = %+v", g)
	}
	if data.LineHeight != 13 || data.Atlas == nil {
		t.Fatalf("line height %d", data.LineHeight)
	}
}

func TestWaitForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.wgsl")
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("fn main() {}"), 0o644)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := WaitForFile(ctx, path, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WaitForFile(ctx, filepath.Join(t.TempDir(), "missing.wgsl"), 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBytecodePath(t *testing.T) {
	if got := BytecodePath("shaders/bin", "lit", StagePixel); got != filepath.Join("shaders/bin", "lit.ps.spv") {
		t.Fatalf("got %s", got)
	}
}
