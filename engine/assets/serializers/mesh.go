package serializers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/math"
)

// Mesh is a triangle list. Primitives of a glTF file are merged into one
// vertex and index buffer.
type Mesh struct {
	assets.BaseAsset
	Name     string
	Vertices []math.Vertex3D
	Indices  []uint32
	Extents  math.Extents3D
}

func NewMesh(name string, vertices []math.Vertex3D, indices []uint32) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		Extents:  math.GeometryExtents(vertices),
	}
}

func (m *Mesh) Kind() assets.AssetKind {
	return assets.AssetKindMesh
}

// MeshSerializer reads .gltf and .glb files. A .gltf is written with its
// buffer embedded as a data URI, a .glb as a single binary chunk.
type MeshSerializer struct {
	fileSerializer
}

func (ms *MeshSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	if meta.FilePath == "" {
		return nil, fmt.Errorf("mesh %s has no file", meta.Handle)
	}
	doc, err := gltf.Open(ms.path(meta))
	if err != nil {
		return nil, fmt.Errorf("parsing glTF: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, fmt.Errorf("unsupported glTF version %q", doc.Asset.Version)
	}

	name := strings.TrimSuffix(filepath.Base(meta.FilePath), filepath.Ext(meta.FilePath))
	if len(doc.Meshes) > 0 && doc.Meshes[0] != nil && doc.Meshes[0].Name != "" {
		name = doc.Meshes[0].Name
	}
	mesh := &Mesh{Name: name}

	for mi, m := range doc.Meshes {
		if m == nil {
			continue
		}
		for pi, prim := range m.Primitives {
			if prim == nil {
				continue
			}
			if prim.Mode != gltf.PrimitiveTriangles {
				return mesh, fmt.Errorf("mesh %d primitive %d: only triangle lists are supported", mi, pi)
			}
			if err := appendPrimitive(mesh, doc, prim); err != nil {
				return mesh, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
		}
	}
	mesh.Extents = math.GeometryExtents(mesh.Vertices)
	return mesh, nil
}

func appendPrimitive(mesh *Mesh, doc *gltf.Document, prim *gltf.Primitive) error {
	posIndex, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return fmt.Errorf("missing POSITION attribute")
	}
	acc, err := checkAccessor(doc, posIndex)
	if err != nil {
		return fmt.Errorf("POSITION: %w", err)
	}
	positions, err := modeler.ReadPosition(doc, acc, nil)
	if err != nil {
		return fmt.Errorf("POSITION: %w", err)
	}
	count := len(positions)
	base := uint32(len(mesh.Vertices))

	vertices := make([]math.Vertex3D, count)
	for i, p := range positions {
		vertices[i].Position = math.NewVec3(p[0], p[1], p[2])
	}

	hasNormals := false
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		acc, err := checkAccessor(doc, idx)
		if err != nil {
			return fmt.Errorf("NORMAL: %w", err)
		}
		normals, err := modeler.ReadNormal(doc, acc, nil)
		if err != nil {
			return fmt.Errorf("NORMAL: %w", err)
		}
		if len(normals) != count {
			return fmt.Errorf("NORMAL count does not match POSITION")
		}
		for i, n := range normals {
			vertices[i].Normal = math.NewVec3(n[0], n[1], n[2])
		}
		hasNormals = true
	}
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		acc, err := checkAccessor(doc, idx)
		if err != nil {
			return fmt.Errorf("TEXCOORD_0: %w", err)
		}
		uvs, err := modeler.ReadTextureCoord(doc, acc, nil)
		if err != nil {
			return fmt.Errorf("TEXCOORD_0: %w", err)
		}
		if len(uvs) != count {
			return fmt.Errorf("TEXCOORD_0 count does not match POSITION")
		}
		for i, uv := range uvs {
			vertices[i].Texcoord = math.NewVec2(uv[0], uv[1])
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		acc, err := checkAccessor(doc, *prim.Indices)
		if err != nil {
			return fmt.Errorf("indices: %w", err)
		}
		indices, err = modeler.ReadIndices(doc, acc, nil)
		if err != nil {
			return fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, count)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	for _, idx := range indices {
		if int(idx) >= count {
			return fmt.Errorf("index %d out of range (%d vertices)", idx, count)
		}
	}

	if !hasNormals {
		math.GeometryGenerateNormals(vertices, indices)
	}
	for _, idx := range indices {
		mesh.Indices = append(mesh.Indices, base+idx)
	}
	mesh.Vertices = append(mesh.Vertices, vertices...)
	return nil
}

// checkAccessor makes sure every byte an accessor reads lies inside its
// buffer view and buffer. Offsets, lengths and counts come straight from
// the file and may be negative or huge.
func checkAccessor(doc *gltf.Document, index int) (*gltf.Accessor, error) {
	if index < 0 || index >= len(doc.Accessors) || doc.Accessors[index] == nil {
		return nil, fmt.Errorf("accessor %d out of range", index)
	}
	acc := doc.Accessors[index]
	if acc.Sparse != nil || acc.BufferView == nil {
		return nil, fmt.Errorf("sparse or empty accessors are not supported")
	}
	if *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) || doc.BufferViews[*acc.BufferView] == nil {
		return nil, fmt.Errorf("buffer view %d out of range", *acc.BufferView)
	}
	view := doc.BufferViews[*acc.BufferView]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) || doc.Buffers[view.Buffer] == nil {
		return nil, fmt.Errorf("buffer %d out of range", view.Buffer)
	}
	data := doc.Buffers[view.Buffer].Data

	if view.ByteOffset < 0 || view.ByteLength < 0 || view.ByteStride < 0 {
		return nil, fmt.Errorf("buffer view has a negative offset, length or stride")
	}
	if view.ByteOffset > len(data) || view.ByteLength > len(data)-view.ByteOffset {
		return nil, fmt.Errorf("buffer view exceeds buffer")
	}
	if acc.ByteOffset < 0 || acc.Count < 0 {
		return nil, fmt.Errorf("accessor has a negative offset or count")
	}

	elem := acc.ComponentType.ByteSize() * acc.Type.Components()
	if elem <= 0 {
		return nil, fmt.Errorf("accessor has an unknown element type")
	}
	stride := view.ByteStride
	if stride == 0 {
		stride = elem
	}
	if acc.Count > 0 {
		if acc.ByteOffset > view.ByteLength-elem {
			return nil, fmt.Errorf("accessor exceeds buffer view")
		}
		if acc.Count-1 > (view.ByteLength-acc.ByteOffset-elem)/stride {
			return nil, fmt.Errorf("accessor exceeds buffer view")
		}
	}
	return acc, nil
}

func (ms *MeshSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	m, err := cast[*Mesh](asset)
	if err != nil {
		return err
	}
	data, err := encodeGLTF(m, strings.EqualFold(filepath.Ext(meta.FilePath), ".glb"))
	if err != nil {
		return err
	}
	return ms.write(meta, data)
}

func encodeGLTF(m *Mesh, binary bool) ([]byte, error) {
	if len(m.Vertices) == 0 {
		return nil, fmt.Errorf("mesh %q has no vertices", m.Name)
	}

	positions := make([][3]float32, len(m.Vertices))
	normals := make([][3]float32, len(m.Vertices))
	uvs := make([][2]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = [3]float32{v.Position.X, v.Position.Y, v.Position.Z}
		normals[i] = [3]float32{v.Normal.X, v.Normal.Y, v.Normal.Z}
		uvs[i] = [2]float32{v.Texcoord.X, v.Texcoord.Y}
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "anima"
	prim := &gltf.Primitive{
		Mode: gltf.PrimitiveTriangles,
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
		},
	}
	if len(m.Indices) > 0 {
		prim.Indices = gltf.Index(modeler.WriteIndices(doc, m.Indices))
	}
	doc.Meshes = []*gltf.Mesh{{Name: m.Name, Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: m.Name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	if !binary {
		for _, b := range doc.Buffers {
			b.EmbeddedResource()
		}
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = binary
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
