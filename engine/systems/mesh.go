package systems

import (
	"fmt"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type MeshSystemConfig struct {
	MaxMeshCount int
}

/**
 * @brief Owns every mesh of the level. Meshes are ranges of the shared
 * geometry buffer.
 */
type MeshSystem struct {
	Config *MeshSystemConfig
	meshes *memory.TypedArena[metadata.Mesh]
	lookup map[string]memory.Handle

	geometrySystem *GeometrySystem
	assetManager   *assets.AssetManager
}

func NewMeshSystem(config *MeshSystemConfig, gs *GeometrySystem, am *assets.AssetManager) (*MeshSystem, error) {
	if config.MaxMeshCount <= 0 {
		err := fmt.Errorf("func NewMeshSystem - config.MaxMeshCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	return &MeshSystem{
		Config:         config,
		meshes:         memory.NewTypedArena[metadata.Mesh]("meshes", config.MaxMeshCount),
		lookup:         make(map[string]memory.Handle, config.MaxMeshCount),
		geometrySystem: gs,
		assetManager:   am,
	}, nil
}

func (ms *MeshSystem) Shutdown() error {
	ms.Reset()
	return nil
}

/**
 * @brief Creates a mesh from a vertex array. Three vertices per triangle.
 * Panics when the mesh pool or the geometry buffer is full.
 */
func (ms *MeshSystem) CreateMesh(name string, vertices []math.Vertex3D) *metadata.Mesh {
	h, mesh := ms.meshes.Alloc()
	view, first := ms.geometrySystem.Append(vertices)

	mesh.Name = name
	mesh.Vertices = view
	mesh.FirstVertex = first
	mesh.VertexCount = uint32(len(vertices))
	mesh.Bounds = boundsOf(vertices)
	mesh.GeometryDirty = true

	ms.lookup[name] = h
	core.LogDebug("mesh %s created with %d vertices", name, len(vertices))
	return mesh
}

// CreateQuad creates a width x height quad in the XY plane, facing +Z.
func (ms *MeshSystem) CreateQuad(name string, width, height float32) *metadata.Mesh {
	return ms.CreateMesh(name, QuadVertices(width, height))
}

// LoadMesh reads a vertex array file through the asset manager.
func (ms *MeshSystem) LoadMesh(name, path string) (*metadata.Mesh, error) {
	res, err := ms.assetManager.LoadAsset(path, loaders.ResourceTypeModel, nil)
	if err != nil {
		core.LogError("failed to load mesh %s: %s", name, err)
		return nil, err
	}
	defer func() {
		if err := ms.assetManager.UnloadAsset(res); err != nil {
			core.LogWarn("failed to unload %s: %s", path, err)
		}
	}()
	vertices, ok := res.Data.([]math.Vertex3D)
	if !ok {
		return nil, fmt.Errorf("mesh %s: unexpected resource data %T", name, res.Data)
	}
	return ms.CreateMesh(name, vertices), nil
}

func (ms *MeshSystem) Get(name string) (*metadata.Mesh, bool) {
	h, ok := ms.lookup[name]
	if !ok || !ms.meshes.Valid(h) {
		return nil, false
	}
	return ms.meshes.Get(h), true
}

// Each visits the meshes in creation order.
func (ms *MeshSystem) Each(fn func(m *metadata.Mesh)) {
	ms.meshes.Each(func(_ memory.Handle, m *metadata.Mesh) {
		fn(m)
	})
}

func (ms *MeshSystem) Len() int {
	return ms.meshes.Len()
}

// Reset drops every mesh and the vertices behind them.
func (ms *MeshSystem) Reset() {
	ms.meshes.Reset()
	clear(ms.lookup)
	ms.geometrySystem.Reset()
}

// QuadVertices returns the two triangles of a quad centred on the origin.
func QuadVertices(width, height float32) []math.Vertex3D {
	hw, hh := width*0.5, height*0.5
	normal := math.NewVec3(0, 0, 1)
	tangent := math.NewVec4(1, 0, 0, 1)
	v := func(x, y, u, t float32) math.Vertex3D {
		return math.Vertex3D{
			Position: math.NewVec3(x, y, 0),
			Normal:   normal,
			Texcoord: math.NewVec2(u, t),
			Tangent:  tangent,
		}
	}
	return []math.Vertex3D{
		v(-hw, -hh, 0, 1), v(hw, -hh, 1, 1), v(hw, hh, 1, 0),
		v(-hw, -hh, 0, 1), v(hw, hh, 1, 0), v(-hw, hh, 0, 0),
	}
}

func boundsOf(vertices []math.Vertex3D) math.Extents3D {
	if len(vertices) == 0 {
		return math.Extents3D{}
	}
	e := math.Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		p := v.Position
		e.Min = math.NewVec3(min(e.Min.X, p.X), min(e.Min.Y, p.Y), min(e.Min.Z, p.Z))
		e.Max = math.NewVec3(max(e.Max.X, p.X), max(e.Max.Y, p.Y), max(e.Max.Z, p.Z))
	}
	return e
}
