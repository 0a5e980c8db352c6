package serializers

import (
	"fmt"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
	"github.com/spaghettifunk/anima-assets/engine/math"
)

/**
 * @brief An object placed in a scene or a prefab. Assets are referenced
 * by handle so the entity survives renames of the files it uses.
 */
type Entity struct {
	/** @brief Unique within the owning scene or prefab. */
	ID uint64 `yaml:"id" cbor:"id"`
	/** @brief The entity name. */
	Name string `yaml:"name" cbor:"name"`
	/** @brief The ID of the parent entity, 0 for a root entity. */
	Parent uint64 `yaml:"parent,omitempty" cbor:"parent,omitempty"`
	/** @brief The local transform. */
	Transform math.Transform `yaml:"transform" cbor:"transform"`

	Mesh     assets.AssetHandle `yaml:"mesh,omitempty" cbor:"mesh,omitempty"`
	Material assets.AssetHandle `yaml:"material,omitempty" cbor:"material,omitempty"`
	Script   assets.AssetHandle `yaml:"script,omitempty" cbor:"script,omitempty"`
}

func NewEntity(name string) Entity {
	return Entity{
		ID:        core.NewIdentifier(),
		Name:      name,
		Transform: math.TransformCreate(),
	}
}

// Dependencies returns the asset handles the entity references.
func (e *Entity) Dependencies() []assets.AssetHandle {
	var deps []assets.AssetHandle
	for _, h := range []assets.AssetHandle{e.Mesh, e.Material, e.Script} {
		if h.IsValid() {
			deps = append(deps, h)
		}
	}
	return deps
}

func (e *Entity) ResolveMesh(rm *assets.ResourceManager) (*Mesh, error) {
	return resolve[*Mesh](rm, e, e.Mesh, "mesh")
}

func (e *Entity) ResolveMaterial(rm *assets.ResourceManager) (*Material, error) {
	return resolve[*Material](rm, e, e.Material, "material")
}

func (e *Entity) ResolveScript(rm *assets.ResourceManager) (*Script, error) {
	return resolve[*Script](rm, e, e.Script, "script")
}

func resolve[T assets.Asset](rm *assets.ResourceManager, e *Entity, h assets.AssetHandle, what string) (T, error) {
	if !h.IsValid() {
		var zero T
		return zero, fmt.Errorf("%w: entity '%s' has no %s", core.ErrNotFound, e.Name, what)
	}
	asset, err := assets.GetAsset[T](rm, h)
	if err != nil {
		return asset, fmt.Errorf("entity '%s' %s: %w", e.Name, what, err)
	}
	return asset, nil
}

// validateEntities checks that IDs are unique and non-zero and that every
// parent exists.
func validateEntities(entities []Entity) error {
	ids := make(map[uint64]struct{}, len(entities))
	for _, e := range entities {
		if e.ID == 0 {
			return fmt.Errorf("entity '%s' has no id", e.Name)
		}
		if _, ok := ids[e.ID]; ok {
			return fmt.Errorf("duplicate entity id %d", e.ID)
		}
		ids[e.ID] = struct{}{}
	}
	for _, e := range entities {
		if e.Parent == 0 {
			continue
		}
		if e.Parent == e.ID {
			return fmt.Errorf("entity '%s' is its own parent", e.Name)
		}
		if _, ok := ids[e.Parent]; !ok {
			return fmt.Errorf("entity '%s' has unknown parent %d", e.Name, e.Parent)
		}
	}
	return nil
}
