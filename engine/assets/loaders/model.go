package loaders

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spaghettifunk/directengine/engine/math"
)

// Raw vertex arrays: "VTX1", a little endian uint32 count, then count
// math.Vertex3D records.
const modelMagic = "VTX1"

type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vertices, err := ParseVertices(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     path,
		FullPath: path,
		Type:     ResourceTypeModel,
		DataSize: uint64(len(vertices)),
		Data:     vertices,
	}, nil
}

func (ml *ModelLoader) Unload(r *Resource) error {
	r.Data = nil
	return nil
}

func ParseVertices(data []byte) ([]math.Vertex3D, error) {
	if len(data) < 8 || string(data[:4]) != modelMagic {
		return nil, fmt.Errorf("not a vertex array file")
	}
	count := binary.LittleEndian.Uint32(data[4:8])
	vertices := make([]math.Vertex3D, count)
	if err := binary.Read(bytes.NewReader(data[8:]), binary.LittleEndian, vertices); err != nil {
		return nil, fmt.Errorf("reading %d vertices: %w", count, err)
	}
	return vertices, nil
}

// EncodeVertices is the inverse of ParseVertices.
func EncodeVertices(vertices []math.Vertex3D) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(modelMagic)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(vertices))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, vertices); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
