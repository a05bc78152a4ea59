package session

import (
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
	"github.com/wippyai/structrecover/errors"
	"github.com/wippyai/structrecover/layout"
	"github.com/wippyai/structrecover/program"
)

// File is the YAML form of a recovery session.
type File struct {
	Image       program.Spec `yaml:"image"`
	Name        string       `yaml:"name,omitempty"`
	Types       []string     `yaml:"types,omitempty"`
	Fields      []FieldSpec  `yaml:"fields,omitempty"`
	Vtables     []VtableSpec `yaml:"vtables,omitempty"`
	PointerSize int          `yaml:"pointer_size,omitempty"`
	MainOffset  int          `yaml:"main_offset,omitempty"`
}

// FieldSpec is one recorded scalar access.
type FieldSpec struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Type     string `yaml:"type"`
	Variable string `yaml:"variable,omitempty"`
	Function uint64 `yaml:"function,omitempty"`
	Offset   int    `yaml:"offset"`
	Origin   int    `yaml:"origin,omitempty"`
	Array    bool   `yaml:"array,omitempty"`
}

// VtableSpec is one recorded store of a candidate vtable address.
type VtableSpec struct {
	Variable string `yaml:"variable,omitempty"`
	Address  uint64 `yaml:"address"`
	Function uint64 `yaml:"function,omitempty"`
	Offset   int    `yaml:"offset"`
	Origin   int    `yaml:"origin,omitempty"`
}

// Session is a loaded image with an accumulator holding the replayed
// observations.
type Session struct {
	Image       *program.Image
	Registry    *ctype.Registry
	Accumulator *layout.Accumulator
	// Rejected lists vtable candidates that failed detection.
	Rejected []structrecover.Address
}

// Open reads the session file at path.
func Open(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open session", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a session from r.
func Parse(r io.Reader) (*Session, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Load("decode session", err)
	}
	return f.Replay()
}

func binding(variable string, fn uint64) *layout.VariableBinding {
	if variable == "" {
		return nil
	}
	return &layout.VariableBinding{Variable: variable, Function: structrecover.Address(fn)}
}

// Replay builds the image and registry and feeds every recorded
// observation to a new accumulator.
func (f *File) Replay() (*Session, error) {
	ptrSize := f.PointerSize
	if ptrSize == 0 {
		ptrSize = f.Image.PointerSize
	}
	if ptrSize == 0 {
		ptrSize = 8
	}

	img, err := f.Image.Build(ptrSize)
	if err != nil {
		return nil, err
	}
	reg := ctype.NewRegistry(ptrSize)
	img.WithTypes(reg)

	for i, decl := range f.Types {
		if _, err := reg.RegisterDeclaration(decl); err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Path("types", strconv.Itoa(i)).
				Cause(err).
				Build()
		}
	}

	s := &Session{
		Image:    img,
		Registry: reg,
		Accumulator: layout.New(layout.Config{
			Memory:        img,
			Signatures:    img,
			Symbols:       img,
			Rebinder:      img,
			Registry:      reg,
			StructureName: f.Name,
		}),
	}
	acc := s.Accumulator

	type pending struct {
		field layout.Field
		spec  FieldSpec
	}
	var added []pending

	for i, fs := range f.Fields {
		t, err := ctype.ParseType(fs.Type, reg, ptrSize)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Path("fields", strconv.Itoa(i)).
				Cause(err).
				Build()
		}
		field := layout.NewScalarField(fs.Offset, t, binding(fs.Variable, fs.Function), fs.Origin)
		if !acc.Add(field) {
			Logger().Debug("duplicate field skipped",
				zap.Int("offset", field.Offset()),
				zap.String("type", field.TypeName()))
			continue
		}
		added = append(added, pending{field: field, spec: fs})
	}

	for _, vs := range f.Vtables {
		addr := structrecover.Address(vs.Address)
		if !layout.DetectVirtualTable(img, addr) {
			Logger().Info("not a virtual table", zap.Stringer("address", addr))
			s.Rejected = append(s.Rejected, addr)
			continue
		}
		vt := layout.NewVirtualTable(acc.Config(), vs.Offset, addr, binding(vs.Variable, vs.Function), vs.Origin)
		acc.Add(vt)
	}

	for _, p := range added {
		if !p.spec.Array && (p.spec.Enabled == nil || *p.spec.Enabled) {
			continue
		}
		row := rowOf(acc, p.field)
		if p.spec.Array {
			if err := acc.ToggleArray(row); err != nil {
				return nil, err
			}
		}
		if p.spec.Enabled != nil && !*p.spec.Enabled {
			if err := acc.Disable(row); err != nil {
				return nil, err
			}
		}
	}

	if f.MainOffset != 0 {
		for i := 0; i < acc.Len(); i++ {
			if acc.Item(i).Offset() == f.MainOffset {
				if err := acc.SetOrigin(i); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	Logger().Info("session loaded",
		zap.String("structure", acc.StructureName()),
		zap.Int("fields", acc.Len()),
		zap.Int("rejected_vtables", len(s.Rejected)))
	return s, nil
}

func rowOf(acc *layout.Accumulator, f layout.Field) int {
	for i := 0; i < acc.Len(); i++ {
		if acc.Item(i) == f {
			return i
		}
	}
	return -1
}
