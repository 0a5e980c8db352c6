package serializers

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-assets/engine/assets"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

type ShaderStage int

const (
	ShaderStageUnknown ShaderStage = iota
	ShaderStageVertex
	ShaderStageGeometry
	ShaderStageFragment
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageGeometry:
		return "geometry"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "unknown"
}

// Shader is a compiled SPIR-V module.
type Shader struct {
	assets.BaseAsset
	Name     string
	Stage    ShaderStage
	Bytecode []uint32
}

func NewShader(stage ShaderStage, bytecode []uint32) *Shader {
	return &Shader{Stage: stage, Bytecode: bytecode}
}

func (s *Shader) Kind() assets.AssetKind {
	return assets.AssetKindShader
}

// shaderNameAndStage splits "Builtin.MaterialShader.vert.spv" into the
// shader name and its stage.
func shaderNameAndStage(path string) (string, ShaderStage) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ext := strings.ToLower(filepath.Ext(name))
	stage := ShaderStageUnknown
	switch ext {
	case ".vert":
		stage = ShaderStageVertex
	case ".geom":
		stage = ShaderStageGeometry
	case ".frag":
		stage = ShaderStageFragment
	case ".comp":
		stage = ShaderStageCompute
	default:
		return name, stage
	}
	return strings.TrimSuffix(name, filepath.Ext(name)), stage
}

type ShaderSerializer struct {
	fileSerializer
}

func (ss *ShaderSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ss.read(meta)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(data))
	}
	bytecode := bytesToBytecode(data)
	if bytecode[0] != SPIRVMagic {
		return nil, fmt.Errorf("not a SPIR-V module (magic %#x)", bytecode[0])
	}
	name, stage := shaderNameAndStage(meta.FilePath)
	return &Shader{Name: name, Stage: stage, Bytecode: bytecode}, nil
}

func (ss *ShaderSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	s, err := cast[*Shader](asset)
	if err != nil {
		return err
	}
	if len(s.Bytecode) == 0 || s.Bytecode[0] != SPIRVMagic {
		return fmt.Errorf("shader '%s' is not a SPIR-V module", s.Name)
	}
	data := make([]byte, 0, len(s.Bytecode)*4)
	for _, word := range s.Bytecode {
		data = binary.LittleEndian.AppendUint32(data, word)
	}
	return ss.write(meta, data)
}

// bytesToBytecode reads little-endian SPIR-V words.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}
