package program

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"
	"go.uber.org/zap"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
	"github.com/wippyai/structrecover/errors"
)

// Perm is a set of segment permissions.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// ParsePerm parses an "rwx" style permission string; '-' marks an absent bit.
func ParsePerm(s string) (Perm, error) {
	var p Perm
	for _, c := range s {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'x':
			p |= PermExec
		case '-':
		default:
			return 0, fmt.Errorf("invalid permission %q", s)
		}
	}
	return p, nil
}

// Segment is a contiguous mapped range of the image.
type Segment struct {
	Name  string
	Data  []byte
	Start structrecover.Address
	Size  uint64
	Perm  Perm
}

func (s *Segment) contains(addr structrecover.Address) bool {
	return addr >= s.Start && uint64(addr-s.Start) < s.Size
}

// Function is a defined function with its decompiled view.
type Function struct {
	Locals    map[string]string
	Name      string
	Signature string
	Entry     structrecover.Address
	Size      uint64
}

func (f *Function) contains(addr structrecover.Address) bool {
	if f.Size == 0 {
		return addr == f.Entry
	}
	return addr >= f.Entry && uint64(addr-f.Entry) < f.Size
}

// Image is an in-memory program. It implements structrecover.Memory,
// Signatures, Symbols and Rebinder.
type Image struct {
	types     ctype.Resolver
	functions map[structrecover.Address]*Function
	symbols   map[structrecover.Address]string
	segments  []*Segment
	mu        sync.RWMutex
	ptrSize   int
}

// New creates an empty image for a target with the given pointer width.
func New(ptrSize int) *Image {
	return &Image{
		functions: make(map[structrecover.Address]*Function),
		symbols:   make(map[structrecover.Address]string),
		ptrSize:   ptrSize,
	}
}

// WithTypes sets the resolver used for named types in signatures.
func (img *Image) WithTypes(r ctype.Resolver) *Image {
	img.types = r
	return img
}

// AddSegment maps seg. Data shorter than Size is zero-extended.
func (img *Image) AddSegment(seg Segment) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if uint64(len(seg.Data)) < seg.Size {
		data := make([]byte, seg.Size)
		copy(data, seg.Data)
		seg.Data = data
	}
	if seg.Size == 0 {
		seg.Size = uint64(len(seg.Data))
	}
	img.segments = append(img.segments, &seg)
	sort.Slice(img.segments, func(i, j int) bool {
		return img.segments[i].Start < img.segments[j].Start
	})
}

// AddFunction defines fn.
func (img *Image) AddFunction(fn Function) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if fn.Locals == nil {
		fn.Locals = make(map[string]string)
	}
	img.functions[fn.Entry] = &fn
}

// AddSymbol names a data address.
func (img *Image) AddSymbol(addr structrecover.Address, name string) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.symbols[addr] = name
}

// WritePointers stores consecutive pointer-sized values starting at addr.
func (img *Image) WritePointers(addr structrecover.Address, values ...structrecover.Address) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	for i, v := range values {
		at := addr + structrecover.Address(i*img.ptrSize)
		buf, err := img.slice(at)
		if err != nil {
			return err
		}
		if img.ptrSize == 4 {
			binary.LittleEndian.PutUint32(buf, uint32(v))
		} else {
			binary.LittleEndian.PutUint64(buf, uint64(v))
		}
	}
	return nil
}

func (img *Image) segment(addr structrecover.Address) *Segment {
	for _, s := range img.segments {
		if s.contains(addr) {
			return s
		}
	}
	return nil
}

func (img *Image) slice(addr structrecover.Address) ([]byte, error) {
	s := img.segment(addr)
	if s == nil {
		return nil, errors.NotFound(errors.PhaseScan, "segment for address", addr.String())
	}
	off := uint64(addr - s.Start)
	if off+uint64(img.ptrSize) > s.Size {
		return nil, errors.OutOfBounds(errors.PhaseScan, []string{s.Name}, int(off), int(s.Size))
	}
	return s.Data[off : off+uint64(img.ptrSize)], nil
}

// PointerSize implements structrecover.Memory.
func (img *Image) PointerSize() int { return img.ptrSize }

// ReadPointer implements structrecover.Memory.
func (img *Image) ReadPointer(addr structrecover.Address) (structrecover.Address, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	buf, err := img.slice(addr)
	if err != nil {
		return 0, err
	}
	if img.ptrSize == 4 {
		return structrecover.Address(binary.LittleEndian.Uint32(buf)), nil
	}
	return structrecover.Address(binary.LittleEndian.Uint64(buf)), nil
}

func (img *Image) function(addr structrecover.Address) *Function {
	if fn, ok := img.functions[addr]; ok {
		return fn
	}
	for _, fn := range img.functions {
		if fn.contains(addr) {
			return fn
		}
	}
	return nil
}

// IsCode implements structrecover.Memory. An address is code when it lies
// inside a defined function.
func (img *Image) IsCode(addr structrecover.Address) bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.function(addr) != nil
}

// SegmentIsExecutable implements structrecover.Memory.
func (img *Image) SegmentIsExecutable(addr structrecover.Address) bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	s := img.segment(addr)
	return s != nil && s.Perm&PermExec != 0
}

// CoerceToFunction implements structrecover.Memory by defining an empty
// function at addr when it lies in an executable segment.
func (img *Image) CoerceToFunction(addr structrecover.Address) bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.function(addr) != nil {
		return true
	}
	s := img.segment(addr)
	if s == nil || s.Perm&PermExec == 0 {
		return false
	}
	img.functions[addr] = &Function{
		Entry:  addr,
		Name:   fmt.Sprintf("sub_%X", uint64(addr)),
		Locals: make(map[string]string),
	}
	Logger().Debug("function created", zap.Stringer("address", addr))
	return true
}

// SignatureOf implements structrecover.Signatures. Functions without a
// signature, or whose signature does not parse, report false.
func (img *Image) SignatureOf(fn structrecover.Address) (*ctype.Type, bool) {
	img.mu.RLock()
	f, ok := img.functions[fn]
	img.mu.RUnlock()
	if !ok || f.Signature == "" {
		return nil, false
	}
	sig, err := ctype.ParseSignature(f.Signature, img.types, img.ptrSize)
	if err != nil {
		Logger().Warn("failed to decompile", zap.Stringer("function", fn), zap.Error(err))
		return nil, false
	}
	return sig, true
}

// SymbolName returns the raw symbol at addr.
func (img *Image) SymbolName(addr structrecover.Address) string {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if fn, ok := img.functions[addr]; ok {
		return fn.Name
	}
	return img.symbols[addr]
}

// ShortName implements structrecover.Symbols. Itanium-mangled names are
// demangled.
func (img *Image) ShortName(addr structrecover.Address) string {
	name := img.SymbolName(addr)
	if name == "" {
		return ""
	}
	return demangle.Filter(name)
}

// Local returns the current type label of a local variable.
func (img *Image) Local(fn structrecover.Address, variable string) (string, bool) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	f, ok := img.functions[fn]
	if !ok {
		return "", false
	}
	t, ok := f.Locals[variable]
	return t, ok
}

// Rebind implements structrecover.Rebinder.
func (img *Image) Rebind(fn structrecover.Address, variable string, t *ctype.Type) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	f, ok := img.functions[fn]
	if !ok {
		return errors.NotFound(errors.PhaseRebind, "function", fn.String())
	}
	if _, ok := f.Locals[variable]; !ok {
		return errors.NotFound(errors.PhaseRebind, "variable", variable)
	}
	f.Locals[variable] = t.String()
	Logger().Debug("variable retyped",
		zap.String("function", f.Name),
		zap.String("variable", variable),
		zap.String("type", t.String()))
	return nil
}
