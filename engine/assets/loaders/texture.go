package loaders

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

const (
	ddsMagic         = "DDS "
	ddsFourCCFlag    = 0x4
	ddsHeaderEnd     = 128
	ddsDX10End       = ddsHeaderEnd + 20
	dxgiBC1UnormSRGB = 72
	dxgiBC5Unorm     = 83
)

var ErrInvalidDDS = errors.New("invalid dds file")

type ddsPixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      [4]byte
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

type ddsHeader struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       ddsPixelFormat
	Caps              [4]uint32
	Reserved2         uint32
}

type ddsHeaderDX10 struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

/**
 * @brief A block compressed texture: header metadata plus the payload of
 * the top mip level and everything after it.
 */
type TextureData struct {
	Width       uint32
	Height      uint32
	MipMapCount uint32
	Format      metadata.Format
	BlockSize   uint32
	RowPitch    uint64
	SlicePitch  uint64
	// Offset of the payload in the file.
	DataOffset uint64
	Data       []byte
}

// Footprint describes the copy of the top mip level.
func (t *TextureData) Footprint() metadata.TextureCopyFootprint {
	return metadata.TextureCopyFootprint{
		Width:      t.Width,
		Height:     t.Height,
		RowPitch:   t.RowPitch,
		SlicePitch: t.SlicePitch,
	}
}

// ParseDDS reads the header of a BC1 (sRGB) or BC5 texture and slices out
// its payload.
func ParseDDS(data []byte) (*TextureData, error) {
	if len(data) < ddsHeaderEnd || string(data[:4]) != ddsMagic {
		return nil, fmt.Errorf("%w: missing magic", ErrInvalidDDS)
	}
	var header ddsHeader
	if err := binary.Read(bytes.NewReader(data[4:ddsHeaderEnd]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDDS, err)
	}
	if header.PixelFormat.Flags&ddsFourCCFlag == 0 {
		return nil, fmt.Errorf("%w: only fourcc formats are supported", ErrInvalidDDS)
	}

	t := &TextureData{
		Width:       header.Width,
		Height:      header.Height,
		MipMapCount: max(header.MipMapCount, 1),
		DataOffset:  ddsHeaderEnd,
	}
	switch string(header.PixelFormat.FourCC[:]) {
	case "DXT1":
		t.Format = metadata.FormatBC1UnormSRGB
	case "DX10":
		if len(data) < ddsDX10End {
			return nil, fmt.Errorf("%w: truncated dx10 header", ErrInvalidDDS)
		}
		var dx10 ddsHeaderDX10
		if err := binary.Read(bytes.NewReader(data[ddsHeaderEnd:ddsDX10End]), binary.LittleEndian, &dx10); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDDS, err)
		}
		switch dx10.DXGIFormat {
		case dxgiBC1UnormSRGB:
			t.Format = metadata.FormatBC1UnormSRGB
		case dxgiBC5Unorm:
			t.Format = metadata.FormatBC5Unorm
		default:
			return nil, fmt.Errorf("%w: unsupported dxgi format %d", ErrInvalidDDS, dx10.DXGIFormat)
		}
		t.DataOffset = ddsDX10End
	default:
		return nil, fmt.Errorf("%w: unsupported fourcc %q", ErrInvalidDDS, header.PixelFormat.FourCC[:])
	}

	t.BlockSize = t.Format.BlockSize()
	t.RowPitch = uint64(max(1, (t.Width+3)/4)) * uint64(t.BlockSize)
	t.SlicePitch = t.RowPitch * uint64(t.Height)
	t.Data = data[t.DataOffset:]
	return t, nil
}

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseDDS(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     path,
		FullPath: path,
		Type:     ResourceTypeTexture,
		DataSize: uint64(len(t.Data)),
		Data:     t,
	}, nil
}

func (tl *TextureLoader) Unload(r *Resource) error {
	r.Data = nil
	r.DataSize = 0
	return nil
}
