package program

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/errors"
)

// Spec is the YAML description of an image.
type Spec struct {
	Symbols     map[uint64]string `yaml:"symbols,omitempty"`
	Segments    []SegmentSpec     `yaml:"segments"`
	Functions   []FunctionSpec    `yaml:"functions,omitempty"`
	PointerSize int               `yaml:"pointer_size,omitempty"`
}

// SegmentSpec describes one segment. Words are pointer-sized little-endian
// values stored from Start onwards.
type SegmentSpec struct {
	Name  string   `yaml:"name"`
	Perm  string   `yaml:"perm"`
	Words []uint64 `yaml:"words,omitempty"`
	Start uint64   `yaml:"start"`
	Size  uint64   `yaml:"size"`
}

// FunctionSpec describes one defined function.
type FunctionSpec struct {
	Locals    map[string]string `yaml:"locals,omitempty"`
	Name      string            `yaml:"name"`
	Signature string            `yaml:"signature,omitempty"`
	Entry     uint64            `yaml:"entry"`
	Size      uint64            `yaml:"size,omitempty"`
}

// Build creates the image described by s. ptrSize is used when s does not
// set its own pointer size.
func (s *Spec) Build(ptrSize int) (*Image, error) {
	if s.PointerSize != 0 {
		ptrSize = s.PointerSize
	}
	if ptrSize != 4 && ptrSize != 8 {
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Value(ptrSize).
			Detail("pointer size %d", ptrSize).
			Build()
	}
	img := New(ptrSize)

	for i, seg := range s.Segments {
		perm, err := ParsePerm(seg.Perm)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Path("segments", seg.Name).
				Cause(err).
				Build()
		}
		size := seg.Size
		if words := uint64(len(seg.Words) * ptrSize); words > size {
			size = words
		}
		if size == 0 {
			return nil, errors.InvalidData(errors.PhaseLoad, []string{"segments", seg.Name},
				"segment has no size")
		}
		name := seg.Name
		if name == "" {
			name = fmt.Sprintf("seg%d", i)
		}
		img.AddSegment(Segment{
			Name:  name,
			Start: structrecover.Address(seg.Start),
			Size:  size,
			Perm:  perm,
		})
		if len(seg.Words) > 0 {
			values := make([]structrecover.Address, len(seg.Words))
			for j, w := range seg.Words {
				values[j] = structrecover.Address(w)
			}
			if err := img.WritePointers(structrecover.Address(seg.Start), values...); err != nil {
				return nil, errors.Load("segment "+name, err)
			}
		}
	}

	for _, fn := range s.Functions {
		locals := make(map[string]string, len(fn.Locals))
		for k, v := range fn.Locals {
			locals[k] = v
		}
		img.AddFunction(Function{
			Entry:     structrecover.Address(fn.Entry),
			Size:      fn.Size,
			Name:      fn.Name,
			Signature: fn.Signature,
			Locals:    locals,
		})
	}
	for addr, name := range s.Symbols {
		img.AddSymbol(structrecover.Address(addr), name)
	}

	Logger().Debug("image loaded",
		zap.Int("segments", len(s.Segments)),
		zap.Int("functions", len(s.Functions)),
		zap.Int("symbols", len(s.Symbols)))
	return img, nil
}

// Load reads a YAML image description from r.
func Load(r io.Reader) (*Image, error) {
	var s Spec
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Load("decode image", err)
	}
	return s.Build(8)
}

// LoadFile reads a YAML image description from path.
func LoadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open image", err)
	}
	defer f.Close()
	return Load(f)
}
