package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spaghettifunk/hellodog/engine/assets/loaders"
	"github.com/spaghettifunk/hellodog/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeModel
	AssetTypeTexture
	AssetTypeShader
	AssetTypeShaderSource
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeModel:
		return "model"
	case AssetTypeTexture:
		return "texture"
	case AssetTypeShader:
		return "shader"
	case AssetTypeShaderSource:
		return "shader source"
	default:
		return "none"
	}
}

// Resource tree layout, relative to the root.
const (
	ModelsDir          = "models"
	TexturesDir        = "textures"
	ShadersDir         = "shaders"
	GeneratedShaderDir = "shaders/generated"
)

type AssetInfo struct {
	ID      uuid.UUID
	Path    string // relative to the root, slash separated
	Type    AssetType
	ModTime time.Time
}

// AssetEvent reports a change below the root after Initialize.
type AssetEvent struct {
	Asset AssetInfo
	Op    fsnotify.Op
}

type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	events   chan AssetEvent
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		// Events are dropped when nobody keeps up.
		events: make(chan AssetEvent, 64),
	}
	am.registerLoader(AssetTypeModel, &loaders.ModelLoader{})
	am.registerLoader(AssetTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(AssetTypeShader, &loaders.BinaryLoader{})
	return am, nil
}

// Initialize checks that root has the expected layout, indexes every asset
// below it and starts watching it for changes.
func (am *AssetManager) Initialize(root string) error {
	if am.isClosed {
		return errors.New("asset manager already shut down")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", root)
	}
	for _, dir := range []string{ModelsDir, TexturesDir, GeneratedShaderDir} {
		info, err := os.Stat(filepath.Join(abs, dir))
		if err != nil || !info.IsDir() {
			return errors.Wrapf(core.ErrAssetNotFound, "resource directory %s/%s is missing", root, dir)
		}
	}
	am.root = abs

	if err := am.watchRecursive(abs); err != nil {
		return err
	}
	am.started = true
	go am.start()

	core.LogInfo("Asset manager indexed %d assets under %s.", am.Count(), abs)
	return nil
}

func (am *AssetManager) Root() string {
	return am.root
}

// Changes delivers asset changes seen after Initialize. It is closed by
// Shutdown.
func (am *AssetManager) Changes() <-chan AssetEvent {
	return am.events
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Lookup returns the indexed asset at a root relative path.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	asset, ok := am.assets[filepath.ToSlash(path)]
	return asset, ok
}

// Assets lists every indexed asset of a type, sorted by path.
func (am *AssetManager) Assets(assetType AssetType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, a := range am.assets {
		if a.Type == assetType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) load(assetType AssetType, path string) (any, error) {
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, errors.Newf("no loader registered for %s assets", assetType)
	}
	return loader.Load(filepath.Join(am.root, filepath.FromSlash(path)))
}

// LoadModel loads models/<name>.obj.
func (am *AssetManager) LoadModel(name string) (*loaders.Mesh, error) {
	res, err := am.load(AssetTypeModel, ModelsDir+"/"+name+".obj")
	if err != nil {
		return nil, err
	}
	return res.(*loaders.Mesh), nil
}

// LoadTexture loads textures/<name>: an image file with that base name or a
// directory of that name holding one.
func (am *AssetManager) LoadTexture(name string) (*loaders.Texture, error) {
	path, err := am.resolveTexture(name)
	if err != nil {
		return nil, err
	}
	res, err := am.load(AssetTypeTexture, path)
	if err != nil {
		return nil, err
	}
	texture := res.(*loaders.Texture)
	texture.Name = name
	return texture, nil
}

func (am *AssetManager) resolveTexture(name string) (string, error) {
	base := TexturesDir + "/" + name
	if info, err := os.Stat(filepath.Join(am.root, filepath.FromSlash(base))); err == nil && info.IsDir() {
		return base, nil
	}
	for _, ext := range loaders.ImageExtensions {
		if _, err := os.Stat(filepath.Join(am.root, filepath.FromSlash(base+ext))); err == nil {
			return base + ext, nil
		}
	}
	return "", errors.Wrapf(core.ErrAssetNotFound, "texture %s", name)
}

// LoadShader loads the compiled SPIR-V of one stage of a shader.
func (am *AssetManager) LoadShader(name string, stage loaders.ShaderStage) ([]uint32, error) {
	res, err := am.load(AssetTypeShader, loaders.ShaderFile(GeneratedShaderDir, name, stage))
	if err != nil {
		return nil, err
	}
	return res.([]uint32), nil
}

// Shutdown stops watching and closes Changes. Later calls do nothing.
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	if !am.started {
		close(am.events)
		return am.fsnotify.Close()
	}
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
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogWarn("closing asset watcher: %s", err)
			}
			close(am.events)
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("watching %s: %s", e.Name, err)
			}
			return
		}
	}

	var asset AssetInfo
	var ok bool
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		asset, ok = am.handleFileEvent(e.Name)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		asset, ok = am.removeAsset(e.Name)
	}
	if !ok {
		return
	}

	select {
	case am.events <- AssetEvent{Asset: asset, Op: e.Op}:
	default:
		core.LogDebug("asset change for %s dropped", asset.Path)
	}
}

// watchRecursive adds path and every directory below it to the watch list
// and indexes the files it finds.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return errors.Wrapf(am.fsnotify.Add(walkPath), "watching %s", walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	rel, ok := am.relative(path)
	if !ok {
		return AssetInfo{}, false
	}
	assetType := determineAssetType(rel)
	if assetType == AssetTypeNone {
		return AssetInfo{}, false
	}

	var modTime time.Time
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()

	asset, exists := am.assets[rel]
	if !exists {
		asset = AssetInfo{ID: uuid.New(), Path: rel, Type: assetType}
	}
	asset.ModTime = modTime
	am.assets[rel] = asset
	return asset, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	rel, ok := am.relative(path)
	if !ok {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()

	asset, exists := am.assets[rel]
	if exists {
		delete(am.assets, rel)
	}
	return asset, exists
}

// determineAssetType classifies a root relative, slash separated path by
// where it lives and its extension.
func determineAssetType(path string) AssetType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case strings.HasPrefix(path, ModelsDir+"/") && ext == ".obj":
		return AssetTypeModel
	case strings.HasPrefix(path, TexturesDir+"/") && loaders.IsImageFile(path):
		return AssetTypeTexture
	case strings.HasPrefix(path, GeneratedShaderDir+"/") && ext == ".spv":
		return AssetTypeShader
	case strings.HasPrefix(path, ShadersDir+"/") && (ext == ".vert" || ext == ".frag"):
		return AssetTypeShaderSource
	default:
		return AssetTypeNone
	}
}
