package serializers

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	stdmath "math"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
	"github.com/spaghettifunk/anima-assets/engine/math"
)

func newProject(t *testing.T) (*assets.ResourceManager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Assets")
	registry := assets.NewSerializerRegistry()
	require.NoError(t, RegisterDefaults(registry, root))

	rm, err := assets.NewResourceManager(assets.ResourceManagerConfig{AssetDirectory: root}, registry, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Init())
	return rm, root
}

// reload forces the next GetAsset to read the file again.
func reload[T assets.Asset](t *testing.T, rm *assets.ResourceManager, h assets.AssetHandle) T {
	t.Helper()
	rm.UnloadAsset(h)
	asset, err := assets.GetAsset[T](rm, h)
	require.NoError(t, err)
	require.False(t, asset.IsErrored())
	return asset
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRegisterDefaultsCoversEveryKind(t *testing.T) {
	registry := assets.NewSerializerRegistry()
	require.NoError(t, RegisterDefaults(registry, t.TempDir()))
	require.Equal(t, []assets.AssetKind{
		assets.AssetKindScene,
		assets.AssetKindTexture,
		assets.AssetKindMesh,
		assets.AssetKindMaterial,
		assets.AssetKindPrefab,
		assets.AssetKindScript,
		assets.AssetKindShader,
		assets.AssetKindFont,
		assets.AssetKindSystemFont,
	}, registry.Kinds())
	require.Error(t, RegisterDefaults(registry, t.TempDir()))
}

func TestTextureRoundTrip(t *testing.T) {
	rm, _ := newProject(t)

	translucent := []uint8{
		255, 0, 0, 255, 0, 255, 0, 128,
		0, 0, 255, 0, 255, 255, 255, 255,
	}
	opaque := []uint8{
		10, 20, 30, 255, 40, 50, 60, 255,
		70, 80, 90, 255, 100, 110, 120, 255,
	}

	for _, tc := range []struct {
		name   string
		pixels []uint8
	}{
		{"checker.png", translucent},
		{"opaque.png", opaque},
		{"opaque.tiff", opaque},
		{"opaque.bmp", opaque},
	} {
		t.Run(tc.name, func(t *testing.T) {
			created, err := assets.CreateAsset(rm, "textures", tc.name, NewTexture(2, 2, append([]uint8(nil), tc.pixels...)))
			require.NoError(t, err)

			tex := reload[*Texture](t, rm, created.Handle())
			require.Equal(t, uint32(2), tex.Width)
			require.Equal(t, uint32(2), tex.Height)
			require.Equal(t, uint8(4), tex.ChannelCount)
			require.Equal(t, tc.pixels, tex.Pixels)
			require.Equal(t, hasTransparency(tc.pixels), tex.HasTransparency)
		})
	}

	_, err := assets.CreateAsset(rm, "textures", "short", NewTexture(4, 4, make([]uint8, 3)))
	require.Error(t, err)
}

func TestTextureDecodeFailureIsFlagged(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "bad.png", []byte("not a png"))
	h := rm.ImportAsset("bad.png")

	require.False(t, rm.LoadAsset(h))
	_, err := assets.GetAsset[*Texture](rm, h)
	require.ErrorIs(t, err, core.ErrDeserialize)
}

func quad() *Mesh {
	return NewMesh("quad", []math.Vertex3D{
		{Position: math.NewVec3(-1, -1, 0), Normal: math.NewVec3(0, 0, 1), Texcoord: math.NewVec2(0, 0)},
		{Position: math.NewVec3(1, -1, 0), Normal: math.NewVec3(0, 0, 1), Texcoord: math.NewVec2(1, 0)},
		{Position: math.NewVec3(1, 1, 0), Normal: math.NewVec3(0, 0, 1), Texcoord: math.NewVec2(1, 1)},
		{Position: math.NewVec3(-1, 1, 0.5), Normal: math.NewVec3(0, 0, 1), Texcoord: math.NewVec2(0, 1)},
	}, []uint32{0, 1, 2, 2, 3, 0})
}

func TestMeshRoundTrip(t *testing.T) {
	rm, root := newProject(t)
	created, err := assets.CreateAsset(rm, "meshes", "quad", quad())
	require.NoError(t, err)

	meta, ok := rm.GetMetadata(created.Handle())
	require.True(t, ok)
	require.Equal(t, "meshes/quad.gltf", meta.FilePath)
	doc, err := gltf.Open(filepath.Join(root, "meshes", "quad.gltf"))
	require.NoError(t, err)
	require.Equal(t, "2.0", doc.Asset.Version)
	require.Len(t, doc.Buffers, 1)
	require.True(t, doc.Buffers[0].IsEmbeddedResource())

	mesh := reload[*Mesh](t, rm, created.Handle())
	want := quad()
	require.Equal(t, "quad", mesh.Name)
	require.Equal(t, want.Vertices, mesh.Vertices)
	require.Equal(t, want.Indices, mesh.Indices)
	require.Equal(t, math.NewVec3(-1, -1, 0), mesh.Extents.Min)
	require.Equal(t, math.NewVec3(1, 1, 0.5), mesh.Extents.Max)

	_, err = assets.CreateAsset(rm, "meshes", "empty", NewMesh("empty", nil, nil))
	require.Error(t, err)
}

func TestMeshBinaryRoundTrip(t *testing.T) {
	rm, root := newProject(t)
	created, err := assets.CreateAsset(rm, "meshes", "quad.glb", quad())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "meshes", "quad.glb"))
	require.NoError(t, err)
	require.Equal(t, []byte("glTF"), data[:4])

	mesh := reload[*Mesh](t, rm, created.Handle())
	require.Equal(t, quad().Vertices, mesh.Vertices)
	require.Equal(t, quad().Indices, mesh.Indices)
}

// handWrittenGLTF is a single triangle with 16-bit indices and no normals.
func handWrittenGLTF() []byte {
	var buf []byte
	for _, f := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		buf = binary.LittleEndian.AppendUint32(buf, stdmath.Float32bits(f))
	}
	for _, i := range []uint16{0, 1, 2, 0} { // padded to 4 bytes
		buf = binary.LittleEndian.AppendUint16(buf, i)
	}
	return []byte(fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6}
  ],
  "buffers": [{"byteLength": %d, "uri": "data:application/gltf-buffer;base64,%s"}]
}`, len(buf), base64.StdEncoding.EncodeToString(buf)))
}

func TestMeshImportGeneratesNormals(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "tri.gltf", handWrittenGLTF())
	h := rm.ImportAsset("tri.gltf")

	mesh, err := assets.GetAsset[*Mesh](rm, h)
	require.NoError(t, err)
	require.False(t, mesh.IsErrored())
	require.Equal(t, "tri", mesh.Name)
	require.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
	require.Len(t, mesh.Vertices, 3)
	for _, v := range mesh.Vertices {
		require.True(t, v.Normal.Compare(math.NewVec3(0, 0, 1), math.K_FLOAT_EPSILON))
	}
}

func TestMeshRejectsOutOfRangeIndices(t *testing.T) {
	rm, root := newProject(t)
	data := bytes.Replace(handWrittenGLTF(), []byte(`"count": 3, "type": "VEC3"`), []byte(`"count": 2, "type": "VEC3"`), 1)
	writeFile(t, root, "bad.gltf", data)
	h := rm.ImportAsset("bad.gltf")

	require.False(t, rm.LoadAsset(h))
	mesh, err := assets.GetAsset[*Mesh](rm, h)
	require.NoError(t, err)
	require.True(t, mesh.HasFlag(assets.AssetFlagInvalid))
}

func prefabHeader(kind assets.AssetKind, version uint8) []byte {
	header := binary.LittleEndian.AppendUint32(nil, ResourceMagic)
	return append(header, byte(kind), version, 0, 0)
}

func TestMalformedFilesAreFlagged(t *testing.T) {
	gltfWith := func(old, new string) []byte {
		data := handWrittenGLTF()
		require.True(t, bytes.Contains(data, []byte(old)), old)
		return bytes.Replace(data, []byte(old), []byte(new), 1)
	}

	cases := []struct {
		name string
		file string
		data []byte
	}{
		{"gltf negative view offset", "neg_view.gltf", gltfWith(`"byteOffset": 0, "byteLength": 36`, `"byteOffset": -4, "byteLength": 36`)},
		{"gltf negative view length", "neg_length.gltf", gltfWith(`"byteOffset": 0, "byteLength": 36`, `"byteOffset": 0, "byteLength": -36`)},
		{"gltf view past buffer", "long_view.gltf", gltfWith(`"byteOffset": 0, "byteLength": 36`, `"byteOffset": 0, "byteLength": 4096`)},
		{"gltf negative count", "neg_count.gltf", gltfWith(`"count": 3, "type": "VEC3"`, `"count": -1, "type": "VEC3"`)},
		{"gltf huge count", "huge_count.gltf", gltfWith(`"count": 3, "type": "VEC3"`, `"count": 9223372036854775807, "type": "VEC3"`)},
		{"gltf negative accessor offset", "neg_acc.gltf", gltfWith(`{"bufferView": 0, "componentType"`, `{"bufferView": 0, "byteOffset": -12, "componentType"`)},
		{"gltf huge accessor offset", "huge_acc.gltf", gltfWith(`{"bufferView": 0, "componentType"`, `{"bufferView": 0, "byteOffset": 9223372036854775807, "componentType"`)},
		{"gltf dangling buffer view", "dangling.gltf", gltfWith(`{"bufferView": 1, "componentType"`, `{"bufferView": 7, "componentType"`)},
		{"gltf not json", "garbage.gltf", []byte("{\"asset\": ")},
		{"glb garbage", "garbage.glb", []byte("glTF but not really")},
		{"prefab truncated header", "short.aprefab", prefabHeader(assets.AssetKindPrefab, PrefabVersion)[:5]},
		{"prefab foreign kind", "scene.aprefab", prefabHeader(assets.AssetKindScene, PrefabVersion)},
		{"prefab future version", "future.aprefab", prefabHeader(assets.AssetKindPrefab, PrefabVersion+1)},
		{"prefab corrupt body", "corrupt.aprefab", append(prefabHeader(assets.AssetKindPrefab, PrefabVersion), 0xff, 0x00, 0x13)},
		{"spirv unaligned", "odd.spv", []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00}},
		{"spirv wrong magic", "magic.spv", []byte{1, 2, 3, 4}},
		{"spirv empty", "empty.spv", nil},
		{"texture garbage", "noise.png", []byte("not an image")},
		{"material not toml", "broken.amat", []byte("name = [")},
		{"scene not yaml", "broken.ascene", []byte("Scene: [\n  - {")},
		{"system font garbage", "broken.ttf", []byte("OTTO and nothing else")},
	}

	rm, root := newProject(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writeFile(t, root, tc.file, tc.data)
			h := rm.ImportAsset(tc.file)
			require.True(t, h.IsValid())

			require.NotPanics(t, func() { require.False(t, rm.LoadAsset(h)) })
			asset, err := rm.GetAsset(h)
			require.ErrorIs(t, err, core.ErrDeserialize)
			require.NotNil(t, asset)
			require.True(t, asset.IsErrored())
		})
	}
}

func TestMaterialRoundTrip(t *testing.T) {
	rm, root := newProject(t)
	tex, err := assets.CreateAsset(rm, "textures", "wood", NewTexture(1, 1, []uint8{1, 2, 3, 255}))
	require.NoError(t, err)

	m := NewMaterial("wood", "Builtin.MaterialShader")
	m.DiffuseColour = math.NewVec4(0.5, 0.25, 1, 1)
	m.Shininess = 8
	m.DiffuseMap = tex.Handle()
	created, err := assets.CreateAsset(rm, "materials", "wood", m)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "materials", "wood.amat"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Builtin.MaterialShader")
	require.Contains(t, string(data), tex.Handle().String())

	loaded := reload[*Material](t, rm, created.Handle())
	require.Equal(t, "wood", loaded.Name)
	require.Equal(t, "Builtin.MaterialShader", loaded.ShaderName)
	require.Equal(t, m.DiffuseColour, loaded.DiffuseColour)
	require.Equal(t, float32(8), loaded.Shininess)
	require.Equal(t, tex.Handle(), loaded.DiffuseMap)
	require.False(t, loaded.NormalMap.IsValid())

	diffuse, err := assets.GetAsset[*Texture](rm, loaded.DiffuseMap)
	require.NoError(t, err)
	require.Same(t, tex, diffuse)
}

func TestMaterialValidation(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "bright.amat", []byte("shader = 'Builtin.MaterialShader'\ndiffuse_colour = [2.0, 0.5, -1.0, 1.0]\nshininess = -3.0\n"))
	writeFile(t, root, "noshader.amat", []byte("name = 'lonely'\n"))

	bright, err := assets.GetAsset[*Material](rm, rm.ImportAsset("bright.amat"))
	require.NoError(t, err)
	require.False(t, bright.IsErrored())
	require.Equal(t, "bright", bright.Name)
	require.Equal(t, math.NewVec4(1, 0.5, 0, 1), bright.DiffuseColour)
	require.Equal(t, float32(0), bright.Shininess)

	h := rm.ImportAsset("noshader.amat")
	require.False(t, rm.LoadAsset(h))
	partial, err := assets.GetAsset[*Material](rm, h)
	require.NoError(t, err)
	require.True(t, partial.IsErrored())
	require.Equal(t, "lonely", partial.Name)
}

func TestSceneRoundTripAndResolve(t *testing.T) {
	rm, root := newProject(t)
	mesh, err := assets.CreateAsset(rm, "meshes", "quad", quad())
	require.NoError(t, err)
	mat, err := assets.CreateAsset(rm, "materials", "plain", NewMaterial("plain", "Builtin.MaterialShader"))
	require.NoError(t, err)

	scene := NewScene("level one")
	parent := NewEntity("floor")
	parent.Mesh = mesh.Handle()
	parent.Material = mat.Handle()
	parent.Transform = math.TransformFromPosition(math.NewVec3(0, -1, 0))
	child := NewEntity("decal")
	child.Parent = parent.ID
	child.Mesh = mesh.Handle()
	scene.AddEntity(parent)
	scene.AddEntity(child)

	created, err := assets.CreateAsset(rm, "", "level", scene)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "level.ascene"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Scene: level one")

	loaded := reload[*Scene](t, rm, created.Handle())
	require.Equal(t, scene.Name, loaded.Name)
	require.Equal(t, scene.Entities, loaded.Entities)
	require.ElementsMatch(t, []assets.AssetHandle{mesh.Handle(), mat.Handle()}, loaded.Dependencies())
	require.Len(t, loaded.Children(parent.ID), 1)

	floor, ok := loaded.FindEntity(parent.ID)
	require.True(t, ok)
	resolvedMesh, err := floor.ResolveMesh(rm)
	require.NoError(t, err)
	require.Same(t, mesh, resolvedMesh)
	resolvedMat, err := floor.ResolveMaterial(rm)
	require.NoError(t, err)
	require.Same(t, mat, resolvedMat)
	_, err = floor.ResolveScript(rm)
	require.ErrorIs(t, err, core.ErrNotFound)

	// A material handle used as a mesh reference is a type mismatch.
	floor.Mesh = mat.Handle()
	_, err = floor.ResolveMesh(rm)
	require.ErrorIs(t, err, core.ErrTypeMismatch)
}

func TestSceneRejectsBrokenHierarchy(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "broken.ascene", []byte("Scene: broken\nEntities:\n  - id: 1\n    name: a\n    parent: 99\n"))
	h := rm.ImportAsset("broken.ascene")
	require.False(t, rm.LoadAsset(h))

	scene := NewScene("dupes")
	e := NewEntity("twin")
	scene.AddEntity(e)
	scene.AddEntity(e)
	_, err := assets.CreateAsset(rm, "", "dupes", scene)
	require.Error(t, err)
}

func TestPrefabRoundTripAndInstantiate(t *testing.T) {
	rm, root := newProject(t)
	script, err := assets.CreateAsset(rm, "scripts", "spin", NewScript("function update() end"))
	require.NoError(t, err)

	body := NewEntity("body")
	body.Transform = math.TransformFromPosition(math.NewVec3(0, 1, 0))
	body.Script = script.Handle()
	wheel := NewEntity("wheel")
	wheel.Parent = body.ID
	created, err := assets.CreateAsset(rm, "prefabs", "cart", NewPrefab("cart", body, wheel))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "prefabs", "cart.aprefab"))
	require.NoError(t, err)
	require.Equal(t, ResourceMagic, binary.LittleEndian.Uint32(data))
	require.Equal(t, byte(assets.AssetKindPrefab), data[4])
	require.Equal(t, PrefabVersion, data[5])

	prefab := reload[*Prefab](t, rm, created.Handle())
	require.Equal(t, "cart", prefab.Name)
	require.Equal(t, []Entity{body, wheel}, prefab.Entities)

	scene := NewScene("yard")
	ids := prefab.Instantiate(scene, math.TransformFromPosition(math.NewVec3(5, 0, 0)))
	require.Len(t, ids, 2)
	require.Len(t, scene.Entities, 2)
	require.NotEqual(t, body.ID, ids[0])

	placedBody, ok := scene.FindEntity(ids[0])
	require.True(t, ok)
	require.Zero(t, placedBody.Parent)
	require.Equal(t, math.NewVec3(5, 1, 0), placedBody.Transform.Position)
	placedWheel, ok := scene.FindEntity(ids[1])
	require.True(t, ok)
	require.Equal(t, ids[0], placedWheel.Parent)

	resolved, err := placedBody.ResolveScript(rm)
	require.NoError(t, err)
	require.Same(t, script, resolved)
}

func TestPrefabRejectsForeignFiles(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "junk.aprefab", []byte("definitely not cbor"))
	writeFile(t, root, "tiny.aprefab", []byte{1, 2})

	require.False(t, rm.LoadAsset(rm.ImportAsset("junk.aprefab")))
	require.False(t, rm.LoadAsset(rm.ImportAsset("tiny.aprefab")))
}

func TestScriptRoundTrip(t *testing.T) {
	rm, root := newProject(t)
	created, err := assets.CreateAsset(rm, "scripts", "Player", NewScript("return {}"))
	require.NoError(t, err)
	require.Equal(t, "Player", created.ClassName)

	loaded := reload[*Script](t, rm, created.Handle())
	require.Equal(t, "Player", loaded.ClassName)
	require.Equal(t, "return {}", loaded.Source)

	writeFile(t, root, "binary.lua", []byte{0xff, 0xfe, 0x00})
	require.False(t, rm.LoadAsset(rm.ImportAsset("binary.lua")))
}

func TestShaderRoundTrip(t *testing.T) {
	rm, root := newProject(t)
	bytecode := []uint32{SPIRVMagic, 0x00010000, 0, 4, 0}
	created, err := assets.CreateAsset(rm, "shaders", "Builtin.MaterialShader.frag.spv", NewShader(ShaderStageFragment, bytecode))
	require.NoError(t, err)

	loaded := reload[*Shader](t, rm, created.Handle())
	require.Equal(t, "Builtin.MaterialShader", loaded.Name)
	require.Equal(t, ShaderStageFragment, loaded.Stage)
	require.Equal(t, bytecode, loaded.Bytecode)

	data, err := os.ReadFile(filepath.Join(root, "shaders", "Builtin.MaterialShader.frag.spv"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x03, 0x02, 0x23, 0x07}, data[:4])

	_, err = assets.CreateAsset(rm, "shaders", "bogus", NewShader(ShaderStageVertex, []uint32{1, 2}))
	require.Error(t, err)

	name, stage := shaderNameAndStage("plain.spv")
	require.Equal(t, "plain", name)
	require.Equal(t, ShaderStageUnknown, stage)
}

func TestSystemFontImport(t *testing.T) {
	rm, root := newProject(t)
	writeFile(t, root, "fonts/go.ttf", goregular.TTF)
	h := rm.ImportAsset("fonts/go.ttf")

	font, err := assets.GetAsset[*SystemFont](rm, h)
	require.NoError(t, err)
	require.Equal(t, []string{"Go"}, font.Faces)
	face, err := font.Face("Go")
	require.NoError(t, err)
	require.NotNil(t, face)
	_, err = font.Face("Comic Sans")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.False(t, rm.SaveAsset(h), "system fonts are read-only")
	require.ErrorIs(t, (&SystemFontSerializer{}).Serialize(font, assets.AssetMetaData{Kind: assets.AssetKindSystemFont}), core.ErrReadOnly)
}

func TestBitmapFontIsReadOnly(t *testing.T) {
	err := (&FontSerializer{}).Serialize(&Font{}, assets.AssetMetaData{Kind: assets.AssetKindFont})
	require.ErrorIs(t, err, core.ErrReadOnly)

	f := &Font{Glyphs: []FontGlyph{{Codepoint: 'A', Width: 8}, {Codepoint: 'B', Width: 9}}}
	g, ok := f.Glyph('B')
	require.True(t, ok)
	require.Equal(t, uint16(9), g.Width)
	_, ok = f.Glyph('Z')
	require.False(t, ok)
}
