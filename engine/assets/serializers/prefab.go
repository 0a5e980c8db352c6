package serializers

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
	"github.com/spaghettifunk/anima-assets/engine/math"
)

/** @brief A magic number indicating the file as an anima binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/** @brief The current prefab format version. */
const PrefabVersion uint8 = 1

// prefabHeaderSize is magic (4) + kind (1) + version (1) + reserved (2).
const prefabHeaderSize = 8

// Prefab is a reusable group of entities that can be stamped into scenes.
type Prefab struct {
	assets.BaseAsset
	Name     string
	Entities []Entity
}

func NewPrefab(name string, entities ...Entity) *Prefab {
	return &Prefab{Name: name, Entities: entities}
}

func (p *Prefab) Kind() assets.AssetKind {
	return assets.AssetKindPrefab
}

// Instantiate copies the prefab entities into scene with fresh IDs. Root
// entities are placed at transform. The IDs of the created entities are
// returned in prefab order.
func (p *Prefab) Instantiate(scene *Scene, transform math.Transform) []uint64 {
	remap := make(map[uint64]uint64, len(p.Entities))
	for _, e := range p.Entities {
		remap[e.ID] = core.NewIdentifier()
	}
	ids := make([]uint64, 0, len(p.Entities))
	for _, e := range p.Entities {
		e.ID = remap[e.ID]
		if parent, ok := remap[e.Parent]; ok {
			e.Parent = parent
		} else {
			e.Parent = 0
			e.Transform.Translate(transform.Position)
			e.Transform.Rotate(transform.Rotation)
			e.Transform.ScaleIt(transform.Scale)
		}
		ids = append(ids, scene.AddEntity(e))
	}
	return ids
}

type prefabDocument struct {
	Name     string   `cbor:"name"`
	Entities []Entity `cbor:"entities"`
}

var (
	prefabEncMode cbor.EncMode
	prefabDecMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	prefabEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("serializers: CBOR encoder initialization failed: " + err.Error())
	}
	prefabDecMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("serializers: CBOR decoder initialization failed: " + err.Error())
	}
}

// PrefabSerializer stores prefabs as CBOR behind the anima binary resource
// header.
type PrefabSerializer struct {
	fileSerializer
}

func (ps *PrefabSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ps.read(meta)
	if err != nil {
		return nil, err
	}
	if len(data) < prefabHeaderSize {
		return nil, fmt.Errorf("prefab file is truncated")
	}
	if magic := binary.LittleEndian.Uint32(data); magic != ResourceMagic {
		return nil, fmt.Errorf("not an anima binary file (magic %#x)", magic)
	}
	if kind := assets.AssetKind(data[4]); kind != assets.AssetKindPrefab {
		return nil, fmt.Errorf("%w: binary file holds %s", core.ErrTypeMismatch, kind)
	}
	if version := data[5]; version > PrefabVersion {
		return nil, fmt.Errorf("unsupported prefab version %d", version)
	}

	var doc prefabDocument
	if err := prefabDecMode.Unmarshal(data[prefabHeaderSize:], &doc); err != nil {
		return nil, fmt.Errorf("decoding prefab: %w", err)
	}
	prefab := &Prefab{Name: doc.Name, Entities: doc.Entities}
	if err := validateEntities(prefab.Entities); err != nil {
		return prefab, fmt.Errorf("prefab '%s': %w", prefab.Name, err)
	}
	return prefab, nil
}

func (ps *PrefabSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	prefab, err := cast[*Prefab](asset)
	if err != nil {
		return err
	}
	if err := validateEntities(prefab.Entities); err != nil {
		return fmt.Errorf("prefab '%s': %w", prefab.Name, err)
	}
	body, err := prefabEncMode.Marshal(&prefabDocument{Name: prefab.Name, Entities: prefab.Entities})
	if err != nil {
		return err
	}
	header := make([]byte, prefabHeaderSize, prefabHeaderSize+len(body))
	binary.LittleEndian.PutUint32(header, ResourceMagic)
	header[4] = byte(assets.AssetKindPrefab)
	header[5] = PrefabVersion
	return ps.write(meta, append(header, body...))
}
