package layout

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
	"github.com/wippyai/structrecover/errors"
)

// DefaultStructureName is the name given to a new structure until the user
// picks one.
const DefaultStructureName = "CHANGE_MY_NAME"

// Config wires an Accumulator to its host collaborators. Registry is
// required; the others may be nil, which disables vtable recovery or
// variable rebinding respectively.
type Config struct {
	Memory        structrecover.Memory
	Signatures    structrecover.Signatures
	Symbols       structrecover.Symbols
	Rebinder      structrecover.Rebinder
	Registry      *ctype.Registry
	StructureName string
}

func (c Config) pointerSize() int {
	if c.Registry != nil {
		return c.Registry.PointerSize()
	}
	if c.Memory != nil {
		return c.Memory.PointerSize()
	}
	return 8
}

// Row is the display triple of one field plus its state flags.
type Row struct {
	Offset       string
	Type         string
	Name         string
	Enabled      bool
	Collision    bool
	Origin       bool
	VirtualTable bool
}

// Accumulator collects candidate fields of one structure. Fields are kept
// sorted by (offset, type name) without duplicates, and every mutation
// recomputes which enabled fields overlap.
//
// An Accumulator is owned by a single session and is not safe for
// concurrent use.
type Accumulator struct {
	cfg        Config
	name       string
	items      []Field
	collisions []bool
	mainOffset int
	version    uint64
}

// New creates an empty accumulator.
func New(cfg Config) *Accumulator {
	name := cfg.StructureName
	if name == "" {
		name = DefaultStructureName
	}
	return &Accumulator{
		cfg:  cfg,
		name: name,
	}
}

// Config returns the collaborators the accumulator was created with.
func (a *Accumulator) Config() Config { return a.cfg }

// Len returns the number of fields.
func (a *Accumulator) Len() int { return len(a.items) }

// Item returns the field at row, or nil when row is out of range.
func (a *Accumulator) Item(row int) Field {
	if !a.inRange(row) {
		return nil
	}
	return a.items[row]
}

func (a *Accumulator) inRange(row int) bool {
	return row >= 0 && row < len(a.items)
}

// Items returns a copy of the sorted field list.
func (a *Accumulator) Items() []Field {
	return append([]Field(nil), a.items...)
}

// Collisions returns a copy of the per-row collision flags.
func (a *Accumulator) Collisions() []bool {
	return append([]bool(nil), a.collisions...)
}

// MainOffset returns the offset of the row marked as origin.
func (a *Accumulator) MainOffset() int { return a.mainOffset }

// StructureName returns the name the packed structure will get.
func (a *Accumulator) StructureName() string { return a.name }

// SetStructureName changes the name the packed structure will get.
func (a *Accumulator) SetStructureName(name string) {
	a.name = name
	a.version++
}

func (a *Accumulator) search(f Field) int {
	return sort.Search(len(a.items), func(i int) bool {
		return !Less(a.items[i], f)
	})
}

// HasMember reports whether a field equal to f is present.
func (a *Accumulator) HasMember(f Field) bool {
	i := a.search(f)
	return i < len(a.items) && Equal(a.items[i], f)
}

// Add inserts f at its sorted position. It returns false and leaves the
// accumulator unchanged if an equal field is already present.
func (a *Accumulator) Add(f Field) bool {
	i := a.search(f)
	if i < len(a.items) && Equal(a.items[i], f) {
		return false
	}
	a.items = append(a.items, nil)
	copy(a.items[i+1:], a.items[i:])
	a.items[i] = f
	a.refreshCollisions()
	return true
}

// HasCollision reports whether the field at row overlaps another enabled
// field. It is false for rows out of range.
func (a *Accumulator) HasCollision(row int) bool {
	return a.inRange(row) && a.collisions[row]
}

// refreshCollisions recomputes the collision flags in one pass over the
// enabled fields. A field nested inside another does not replace it as the
// current interval, so later neighbours are still checked against the outer
// field.
func (a *Accumulator) refreshCollisions() {
	a.version++
	a.collisions = make([]bool, len(a.items))
	curr := -1
	for next, item := range a.items {
		if !item.Enabled() {
			continue
		}
		if curr < 0 {
			curr = next
			continue
		}
		c := a.items[curr]
		if c.Offset()+c.Size() > item.Offset() {
			a.collisions[curr] = true
			a.collisions[next] = true
			if c.Offset()+c.Size() < item.Offset()+item.Size() {
				curr = next
			}
		} else {
			curr = next
		}
	}
}

func (a *Accumulator) nextEnabled(row int) int {
	for i := row + 1; i < len(a.items); i++ {
		if a.items[i].Enabled() {
			return i
		}
	}
	return -1
}

// ArraySize infers the element count of the field at row from the distance
// to the next enabled field. It returns 0 when there is no such field or
// row is out of range. A trailing partial element is dropped.
func (a *Accumulator) ArraySize(row int) int {
	if !a.inRange(row) {
		return 0
	}
	next := a.nextEnabled(row)
	size := a.items[row].Size()
	if next < 0 || size <= 0 {
		return 0
	}
	return (a.items[next].Offset() - a.items[row].Offset()) / size
}

func (a *Accumulator) checkRows(rows []int) error {
	for _, r := range rows {
		if r < 0 || r >= len(a.items) {
			return errors.OutOfBounds(errors.PhaseScan, []string{"rows"}, r, len(a.items))
		}
	}
	return nil
}

// Enable enables the given rows.
func (a *Accumulator) Enable(rows ...int) error {
	if err := a.checkRows(rows); err != nil {
		return err
	}
	for _, r := range rows {
		a.items[r].setEnabled(true)
	}
	a.refreshCollisions()
	return nil
}

// Disable disables the given rows. Disabled rows lose their array flag.
func (a *Accumulator) Disable(rows ...int) error {
	if err := a.checkRows(rows); err != nil {
		return err
	}
	for _, r := range rows {
		if a.items[r].Enabled() {
			a.items[r].setEnabled(false)
			a.items[r].setArray(false)
		}
	}
	a.refreshCollisions()
	return nil
}

// SetOrigin marks the offset of row as the structure's main offset.
func (a *Accumulator) SetOrigin(row int) error {
	if err := a.checkRows([]int{row}); err != nil {
		return err
	}
	a.mainOffset = a.items[row].Offset()
	a.version++
	return nil
}

// ToggleArray flips the array flag of row. Virtual table rows are never
// arrays.
func (a *Accumulator) ToggleArray(row int) error {
	if err := a.checkRows([]int{row}); err != nil {
		return err
	}
	item := a.items[row]
	if !item.IsVirtualTable() {
		item.setArray(!item.IsArray())
		a.version++
	}
	return nil
}

// Remove deletes the given rows.
func (a *Accumulator) Remove(rows ...int) error {
	if err := a.checkRows(rows); err != nil {
		return err
	}
	drop := lo.SliceToMap(rows, func(r int) (int, bool) { return r, true })
	kept := a.items[:0:0]
	for i, item := range a.items {
		if !drop[i] {
			kept = append(kept, item)
		}
	}
	a.items = kept
	a.refreshCollisions()
	return nil
}

// Clear removes every field and resets the main offset.
func (a *Accumulator) Clear() {
	a.items = nil
	a.mainOffset = 0
	a.refreshCollisions()
}

// Rows renders every field for display.
func (a *Accumulator) Rows() []Row {
	return lo.Map(a.items, func(item Field, i int) Row {
		typeName := item.TypeName()
		if !item.IsVirtualTable() && item.IsArray() && item.Size() > 0 {
			if n := a.ArraySize(i); n > 0 {
				typeName = fmt.Sprintf("%s[%d]", typeName, n)
			}
		}
		return Row{
			Offset:       fmt.Sprintf("0x%08X", item.Offset()),
			Type:         typeName,
			Name:         item.Name(),
			Enabled:      item.Enabled(),
			Collision:    a.collisions[i],
			Origin:       item.Offset() == a.mainOffset,
			VirtualTable: item.IsVirtualTable(),
		}
	})
}

// VirtualTableAt returns the vtable field at row, if it is one.
func (a *Accumulator) VirtualTableAt(row int) (*VirtualTable, bool) {
	if !a.inRange(row) {
		return nil, false
	}
	vt, ok := a.items[row].(*VirtualTable)
	return vt, ok
}

// Bindings returns the distinct variables observed through fields in
// [start, stop) whose origin is origin, ordered by function then name.
func (a *Accumulator) Bindings(start, stop, origin int) []VariableBinding {
	set := make(map[VariableBinding]struct{})
	for _, item := range a.items[start:stop] {
		if b := item.Binding(); b != nil && item.Origin() == origin {
			set[*b] = struct{}{}
		}
	}
	out := lo.Keys(set)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Function != out[j].Function {
			return out[i].Function < out[j].Function
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}
