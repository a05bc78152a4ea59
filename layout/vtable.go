package layout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"go.uber.org/zap"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
)

// VirtualFunction is one slot of a recovered virtual table.
type VirtualFunction struct {
	Signature *ctype.Type // nil if the target could not be decompiled
	Name      string
	Address   structrecover.Address
	Offset    int // slot offset from the start of the table
	Visited   bool
}

// MethodInfo is the display form of a VirtualFunction.
type MethodInfo struct {
	Address     string
	Name        string
	Declaration string
	Visited     bool
}

func (f *VirtualFunction) pointerType(ptrSize int) *ctype.Type {
	if f.Signature == nil {
		return ctype.Pointer(ctype.Void(), ptrSize)
	}
	return ctype.Pointer(f.Signature, ptrSize)
}

// VirtualTable is a field holding a pointer to a recovered virtual table.
// The table itself becomes a struct with one function pointer per slot.
type VirtualTable struct {
	typ       *ctype.Type
	tableName string
	functions []*VirtualFunction
	fieldState
	Address  structrecover.Address
	ptrSize  int
	niceName bool
}

var scopedName = regexp.MustCompile(` (\w+)::`)

// ParseVirtualTableName derives a type name for the table whose symbol is
// name. nice is true when a class name could be extracted.
func ParseVirtualTableName(name string) (typeName string, nice bool) {
	if strings.HasPrefix(name, "off") {
		return identifier("Vtable" + name[3:]), false
	}
	d := demangle.Filter(name)
	d = strings.TrimPrefix(d, "`")
	for _, prefix := range []string{"vtable for ", "vtable for'"} {
		if strings.HasPrefix(d, prefix) {
			return "Vtable_" + identifier(strings.TrimPrefix(d, prefix)), true
		}
	}
	if m := scopedName.FindStringSubmatch(d); m != nil {
		return "Vtable_" + m[1], true
	}
	return identifier(d), false
}

// scanSlots walks consecutive pointer-sized slots starting at addr and calls
// visit for each slot that points to code. Targets inside executable
// segments are turned into functions on the way. It stops at the first
// slot that is neither.
func scanSlots(mem structrecover.Memory, addr structrecover.Address, visit func(slot, target structrecover.Address)) int {
	step := structrecover.Address(mem.PointerSize())
	count := 0
	for slot := addr; ; slot += step {
		target, err := mem.ReadPointer(slot)
		if err != nil {
			break
		}
		if !mem.IsCode(target) {
			if !mem.SegmentIsExecutable(target) || !mem.CoerceToFunction(target) {
				break
			}
		}
		if visit != nil {
			visit(slot, target)
		}
		count++
	}
	return count
}

// DetectVirtualTable reports whether addr holds at least two consecutive
// pointers to code.
func DetectVirtualTable(mem structrecover.Memory, addr structrecover.Address) bool {
	return scanSlots(mem, addr, nil) >= 2
}

// NewVirtualTable builds the field for the table at addr, observed at
// offset relative to origin. The caller should have checked the address
// with DetectVirtualTable.
func NewVirtualTable(cfg Config, offset int, addr structrecover.Address, binding *VariableBinding, origin int) *VirtualTable {
	vt := &VirtualTable{
		fieldState: newFieldState(offset, binding, origin),
		Address:    addr,
		ptrSize:    cfg.pointerSize(),
	}
	symbol := ""
	if cfg.Symbols != nil {
		symbol = cfg.Symbols.ShortName(addr)
	}
	if symbol == "" {
		symbol = fmt.Sprintf("off_%X", uint64(addr))
	}
	vt.tableName, vt.niceName = ParseVirtualTableName(symbol)

	if cfg.Memory != nil {
		vt.populate(cfg)
	}
	vt.typ = vt.buildType()

	Logger().Info("virtual table",
		zap.Stringer("address", addr),
		zap.String("name", vt.tableName),
		zap.Int("functions", len(vt.functions)))
	return vt
}

func (vt *VirtualTable) populate(cfg Config) {
	scanSlots(cfg.Memory, vt.Address, func(slot, target structrecover.Address) {
		fn := &VirtualFunction{
			Address: target,
			Offset:  int(slot - vt.Address),
		}
		if cfg.Symbols != nil {
			fn.Name = identifier(cfg.Symbols.ShortName(target))
		}
		if fn.Name == "" {
			fn.Name = fmt.Sprintf("sub_%X", uint64(target))
		}
		if cfg.Signatures != nil {
			if sig, ok := cfg.Signatures.SignatureOf(target); ok {
				fn.Signature = sig
			}
		}
		vt.functions = append(vt.functions, fn)
	})
}

func (vt *VirtualTable) buildType() *ctype.Type {
	members := make([]ctype.Member, 0, len(vt.functions))
	seen := make(map[string]bool, len(vt.functions))
	for _, fn := range vt.functions {
		name := fn.Name
		if seen[name] {
			name = fmt.Sprintf("%s_%X", name, fn.Offset)
		}
		seen[name] = true
		members = append(members, ctype.Member{
			Name:   name,
			Type:   fn.pointerType(vt.ptrSize),
			Offset: fn.Offset,
			Size:   vt.ptrSize,
		})
	}
	return ctype.Struct(vt.tableName, members)
}

// TableName is the name of the synthesized vtable type.
func (vt *VirtualTable) TableName() string { return vt.tableName }

// HasNiceName reports whether TableName was derived from a class name.
func (vt *VirtualTable) HasNiceName() bool { return vt.niceName }

// TableType is the synthesized struct describing the table's slots.
func (vt *VirtualTable) TableType() *ctype.Type { return vt.typ }

// Functions returns the recovered slots in table order.
func (vt *VirtualTable) Functions() []*VirtualFunction { return vt.functions }

// Methods returns the slots in display form.
func (vt *VirtualTable) Methods() []MethodInfo {
	out := make([]MethodInfo, len(vt.functions))
	for i, fn := range vt.functions {
		out[i] = MethodInfo{
			Address:     fn.Address.String(),
			Name:        fn.Name,
			Declaration: fn.pointerType(vt.ptrSize).String(),
			Visited:     fn.Visited,
		}
	}
	return out
}

// MarkVisited flags slot i as inspected and returns its target.
func (vt *VirtualTable) MarkVisited(i int) (structrecover.Address, bool) {
	if i < 0 || i >= len(vt.functions) {
		return 0, false
	}
	vt.functions[i].Visited = true
	return vt.functions[i].Address, true
}

func (vt *VirtualTable) Size() int { return vt.ptrSize }
func (vt *VirtualTable) TypeName() string { return vt.tableName + " *" }
func (vt *VirtualTable) Name() string { return "vtable" }
func (vt *VirtualTable) IsVirtualTable() bool { return true }
func (vt *VirtualTable) setArray(bool) {}

func (vt *VirtualTable) member(origin, _ int) ctype.Member {
	return ctype.Member{
		Name:   "vtable",
		Type:   ctype.Pointer(ctype.Named(vt.tableName, vt.typ), vt.ptrSize),
		Offset: vt.offset - origin,
		Size:   vt.ptrSize,
	}
}
