package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// ChangeHandler is invoked from the watcher goroutine for every created or
// written asset. It must not block.
type ChangeHandler func(path string, assetType loaders.ResourceType)

/**
 * @brief Indexes the asset directory, dispatches loads by asset type and,
 * when watching, reports changed files so shaders and materials can be
 * reloaded.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	onChange ChangeHandler
}

func NewAssetManager(resourcePath string) (*AssetManager, error) {
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[loaders.ResourceType]Loader),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(loaders.ResourceTypeBytecode, &loaders.BytecodeLoader{})
	am.registerLoader(loaders.ResourceTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(loaders.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(loaders.ResourceTypeModel, &loaders.ModelLoader{})
	am.registerLoader(loaders.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{ResourcePath: resourcePath})
	am.registerLoader(loaders.ResourceTypeSystemFont, &loaders.SystemFontLoader{})
	am.registerLoader(loaders.ResourceTypeBinary, &loaders.BinaryLoader{})
	return am, nil
}

// Watch indexes every directory and starts reporting changes to onChange.
func (am *AssetManager) Watch(onChange ChangeHandler, dirs ...string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	am.onChange = onChange

	for _, dir := range dirs {
		if err := am.watchRecursive(dir, false); err != nil {
			_ = fsWatch.Close()
			am.fsnotify = nil
			return err
		}
	}
	go am.start()
	core.LogDebug("watching %d asset directories", len(dirs))
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Loader returns the loader registered for assetType.
func (am *AssetManager) Loader(assetType loaders.ResourceType) (Loader, bool) {
	l, ok := am.loaders[assetType]
	return l, ok
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(path string, resourceType loaders.ResourceType, params interface{}) (*loaders.Resource, error) {
	loader, loaderExists := am.loaders[resourceType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}
	res, err := loader.Load(path, params)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *loaders.Resource) error {
	if asset == nil {
		return nil
	}
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Unload(asset)
}

// Assets returns a snapshot of the index.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	out := make([]AssetInfo, 0, len(am.assets))
	for _, a := range am.assets {
		out = append(out, a)
	}
	return out
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	if am.fsnotify == nil {
		return nil
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if t := am.handleFileEvent(e.Name); t != loaders.ResourceTypeNone && am.onChange != nil {
					am.onChange(e.Name, t)
				}
			}
			// Can't stat a deleted directory, so just drop it from the index and the watch list.
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) loaders.ResourceType {
	assetType := DetermineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return assetType
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return assetType
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func DetermineAssetType(path string) loaders.ResourceType {
	switch filepath.Ext(path) {
	case ".wgsl":
		return loaders.ResourceTypeShader
	case ".spv":
		return loaders.ResourceTypeBytecode
	case ".dds":
		return loaders.ResourceTypeTexture
	case ".txt":
		if strings.HasPrefix(filepath.Base(path), "materials") {
			return loaders.ResourceTypeMaterial
		}
		return loaders.ResourceTypeNone
	case ".vtx":
		return loaders.ResourceTypeModel
	case ".fnt":
		return loaders.ResourceTypeBitmapFont
	case ".ttf", ".otf":
		return loaders.ResourceTypeSystemFont
	case ".conf", ".bin":
		return loaders.ResourceTypeBinary
	default:
		return loaders.ResourceTypeNone
	}
}
