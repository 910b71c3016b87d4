package metadata

// Engine wide capacities. Exceeding any of them is a programming error.
const (
	FrameCount                  = 3
	MaxDescriptors              = 1024
	MaxComPointers              = 1024
	MaxTextures                 = 128
	MaxMaterials                = 128
	MaxCameras                  = 8
	MaxRenderTextures           = 4
	MaxEntitiesPerScene         = 1024
	MaxEntitiesPerMaterial      = 128
	MaxTexturesPerMaterial      = 32
	MaxRootConstantsPerMaterial = 32
	MaxDefinesPerMaterial       = 32
	MaxDebugLineVertices        = 1024
	MaxVertices                 = 65536
	MaxMeshes                   = 1024
	MaxBones                    = 128
	MaxAnimations               = 128
	MaxChildren                 = 32
	MaxUIVertices               = 8192
	ShadowMapSize               = 4096

	// Hardware constant buffer alignment.
	ConstantBufferAlignment = 256
)

// Root signature layout shared by every pipeline.
const (
	RootSlotScene uint32 = iota
	RootSlotCamera
	RootSlotEntity
	RootSlotMaterialConstants
	RootSlotMaterialTextures
	RootSlotPassTextures
	RootSlotBones
)

// Shader entry points.
const (
	VertexShaderEntry   = "VSMain"
	PixelShaderEntry    = "PSMain"
	RaytraceShaderEntry = "RTMain"
	ComputeShaderEntry  = "CSMain"
)

// Back buffer and intermediate target formats.
const (
	BackBufferFormat = FormatBGRA8Unorm
	GBufferFormat    = FormatRGBA16Float
	DepthFormat      = FormatD32Float
	ShadowFormat     = FormatR32Float
)
