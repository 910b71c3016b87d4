package assets

import "github.com/spaghettifunk/directengine/engine/assets/loaders"

type Loader interface {
	Load(path string, params interface{}) (*loaders.Resource, error)
	Unload(*loaders.Resource) error
}
