package serializers

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-assets/engine/assets"
)

// Scene is a flat list of entities; hierarchy is expressed through
// Entity.Parent.
type Scene struct {
	assets.BaseAsset
	Name     string
	Entities []Entity
}

func NewScene(name string) *Scene {
	return &Scene{Name: name}
}

func (s *Scene) Kind() assets.AssetKind {
	return assets.AssetKindScene
}

// AddEntity appends e and returns its ID.
func (s *Scene) AddEntity(e Entity) uint64 {
	s.Entities = append(s.Entities, e)
	return e.ID
}

func (s *Scene) FindEntity(id uint64) (*Entity, bool) {
	for i := range s.Entities {
		if s.Entities[i].ID == id {
			return &s.Entities[i], true
		}
	}
	return nil, false
}

// Children returns the entities whose parent is id.
func (s *Scene) Children(id uint64) []*Entity {
	var children []*Entity
	for i := range s.Entities {
		if s.Entities[i].Parent == id {
			children = append(children, &s.Entities[i])
		}
	}
	return children
}

// Dependencies returns every asset handle referenced by the scene, once.
func (s *Scene) Dependencies() []assets.AssetHandle {
	seen := make(map[assets.AssetHandle]struct{})
	var deps []assets.AssetHandle
	for i := range s.Entities {
		for _, h := range s.Entities[i].Dependencies() {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			deps = append(deps, h)
		}
	}
	return deps
}

type sceneDocument struct {
	Scene    string   `yaml:"Scene"`
	Entities []Entity `yaml:"Entities"`
}

// SceneSerializer reads and writes .ascene files as YAML.
type SceneSerializer struct {
	fileSerializer
}

func (ss *SceneSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ss.read(meta)
	if err != nil {
		return nil, err
	}
	var doc sceneDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	scene := &Scene{Name: doc.Scene, Entities: doc.Entities}
	if err := validateEntities(scene.Entities); err != nil {
		return scene, fmt.Errorf("scene '%s': %w", scene.Name, err)
	}
	return scene, nil
}

func (ss *SceneSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	scene, err := cast[*Scene](asset)
	if err != nil {
		return err
	}
	if err := validateEntities(scene.Entities); err != nil {
		return fmt.Errorf("scene '%s': %w", scene.Name, err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&sceneDocument{Scene: scene.Name, Entities: scene.Entities}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return ss.write(meta, buf.Bytes())
}
