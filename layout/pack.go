package layout

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
	"github.com/wippyai/structrecover/errors"
)

// Draft is a packed but not yet registered structure. It is produced by
// Prepare and consumed by Commit; it goes stale when the accumulator is
// mutated in between.
type Draft struct {
	// Type is the generated struct before any user edits.
	Type *ctype.Type
	// Declaration is the C text offered for confirmation.
	Declaration string

	tables   []*VirtualTable
	bindings []VariableBinding
	start    int
	stop     int
	origin   int
	version  uint64
}

// Origin is the absolute offset member offsets are relative to.
func (d *Draft) Origin() int { return d.origin }

// Range returns the row slice [start, stop) the draft was prepared from.
func (d *Draft) Range() (start, stop int) { return d.start, d.stop }

// Bindings are the variables that will be retyped on commit.
func (d *Draft) Bindings() []VariableBinding { return d.bindings }

// RebindFailure records a variable that could not be retyped.
type RebindFailure struct {
	Err     error
	Binding VariableBinding
}

// Result describes a committed structure.
type Result struct {
	// Type is the registered struct.
	Type *ctype.Type
	// Pointer is the pointer type applied to the bound variables.
	Pointer *ctype.Type
	Rebound []VariableBinding
	Failed  []RebindFailure
}

// Prepare packs the enabled fields in rows [start, stop) into a struct
// without touching the accumulator or the registry. Gaps between fields
// become byte padding, and array fields take their inferred length.
func (a *Accumulator) Prepare(start, stop int) (*Draft, error) {
	if start < 0 || stop > len(a.items) || start >= stop {
		return nil, errors.New(errors.PhasePack, errors.KindOutOfBounds).
			Detail("invalid row range [%d, %d) for %d fields", start, stop, len(a.items)).
			Build()
	}

	var colliding []int
	for i := start; i < stop; i++ {
		if a.collisions[i] {
			colliding = append(colliding, i)
		}
	}
	if len(colliding) > 0 {
		Logger().Warn("collisions detected", zap.Ints("rows", colliding))
		return nil, errors.Collision(colliding)
	}

	origin := a.items[start].Offset()
	offset := origin
	var members []ctype.Member
	var tables []*VirtualTable

	for row := start; row < stop; row++ {
		item := a.items[row]
		if !item.Enabled() {
			continue
		}
		if gap := item.Offset() - offset; gap > 0 {
			members = append(members, paddingMember(offset-origin, gap))
		}
		if vt, ok := item.(*VirtualTable); ok {
			tables = append(tables, vt)
		}
		if item.IsArray() {
			if n := a.ArraySize(row); n > 0 {
				members = append(members, item.member(origin, n))
				offset = item.Offset() + item.Size()*n
				continue
			}
		}
		members = append(members, item.member(origin, 0))
		offset = item.Offset() + item.Size()
	}

	if len(members) == 0 {
		return nil, errors.InvalidInput(errors.PhasePack, "no enabled fields in selection")
	}

	t := ctype.Struct(a.name, members)
	return &Draft{
		Type:        t,
		Declaration: t.Declaration(a.name),
		tables:      tables,
		bindings:    a.Bindings(start, stop, origin),
		start:       start,
		stop:        stop,
		origin:      origin,
		version:     a.version,
	}, nil
}

// draftResolver resolves vtable types that are only registered on commit.
type draftResolver struct {
	reg    *ctype.Registry
	tables map[string]*ctype.Type
}

func (r draftResolver) Lookup(name string) (*ctype.Type, bool) {
	if t, ok := r.tables[name]; ok {
		return t, true
	}
	return r.reg.Lookup(name)
}

// Commit registers the struct described by decl, which is the draft's
// declaration possibly edited by the user, together with the vtable types
// it refers to, and then retypes every bound variable to a pointer to it.
//
// Nothing is registered unless every type passes validation. Rebind
// failures are logged and reported in the result but do not fail the
// commit. Without a Rebinder no variable is retyped and the result lists
// none.
func (a *Accumulator) Commit(d *Draft, decl string) (*Result, error) {
	if d.version != a.version {
		return nil, errors.InvalidInput(errors.PhasePack, "fields changed since the structure was prepared")
	}
	reg := a.cfg.Registry
	if reg == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "no type registry configured")
	}

	res := draftResolver{reg: reg, tables: make(map[string]*ctype.Type, len(d.tables))}
	for _, vt := range d.tables {
		res.tables[vt.TableName()] = vt.TableType()
	}

	t, err := ctype.ParseDeclaration(decl, res, reg.PointerSize())
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(res.tables))
	for name := range res.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := reg.Validate(res.tables[name]); err != nil {
			Logger().Warn("virtual table rejected", zap.String("name", name), zap.Error(err))
			return nil, err
		}
	}
	if err := reg.Validate(t); err != nil {
		Logger().Warn("structure rejected", zap.String("name", t.Name), zap.Error(err))
		return nil, err
	}

	for _, name := range names {
		if _, err := reg.Register(res.tables[name]); err != nil {
			return nil, err
		}
		Logger().Info("virtual table added to local types", zap.String("name", name))
	}
	if _, err := reg.Register(t); err != nil {
		return nil, err
	}
	Logger().Info("new type added to local types", zap.String("name", t.Name))

	result := &Result{
		Type:    t,
		Pointer: ctype.Pointer(ctype.Named(t.Name, t), reg.PointerSize()),
	}
	if a.cfg.Rebinder == nil {
		return result, nil
	}
	for _, b := range d.bindings {
		if err := a.rebind(b, result.Pointer); err != nil {
			result.Failed = append(result.Failed, RebindFailure{Binding: b, Err: err})
			continue
		}
		result.Rebound = append(result.Rebound, b)
	}
	return result, nil
}

func (a *Accumulator) rebind(b VariableBinding, t *ctype.Type) error {
	if err := a.cfg.Rebinder.Rebind(b.Function, b.Variable, t); err != nil {
		err = errors.RebindFailed(b.Function.String(), b.Variable, err)
		Logger().Warn("failed to apply type",
			zap.String("variable", b.Variable),
			zap.Stringer("function", b.Function),
			zap.Error(err))
		return err
	}
	Logger().Info("applying type to variable",
		zap.String("variable", b.Variable),
		zap.Stringer("function", b.Function),
		zap.String("type", t.String()))
	return nil
}

// Pack prepares rows [start, stop), asks c to confirm the declaration and
// commits it. A nil c accepts the declaration unchanged.
func (a *Accumulator) Pack(start, stop int, c structrecover.Confirmer) (*Result, error) {
	d, err := a.Prepare(start, stop)
	if err != nil {
		return nil, err
	}
	decl := d.Declaration
	if c != nil {
		edited, ok := c.Confirm(decl)
		if !ok || edited == "" {
			return nil, errors.Cancelled("pack")
		}
		decl = edited
	}
	return a.Commit(d, decl)
}

// PackSubstructure packs the rows spanning the given indices into a new
// struct and replaces them with a single field of that type at the offset
// of the first row.
func (a *Accumulator) PackSubstructure(rows []int, c structrecover.Confirmer) (*Result, error) {
	if len(rows) == 0 {
		return nil, errors.InvalidInput(errors.PhasePack, "no rows selected")
	}
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)
	start, stop := sorted[0], sorted[len(sorted)-1]+1

	res, err := a.Pack(start, stop, c)
	if err != nil {
		return nil, err
	}
	if err := a.ReplaceWithSubstructure(start, stop, res.Type); err != nil {
		return nil, err
	}
	return res, nil
}

// ReplaceWithSubstructure swaps rows [start, stop) for one field of type t
// at the offset of row start. It is the second half of PackSubstructure for
// callers that drive Prepare and Commit themselves.
func (a *Accumulator) ReplaceWithSubstructure(start, stop int, t *ctype.Type) error {
	if start < 0 || stop > len(a.items) || start >= stop {
		return errors.New(errors.PhasePack, errors.KindOutOfBounds).
			Detail("invalid row range [%d, %d) for %d fields", start, stop, len(a.items)).
			Build()
	}
	offset := a.items[start].Offset()
	a.items = append(a.items[:start:start], a.items[stop:]...)
	a.refreshCollisions()
	a.Add(NewScalarField(offset, t, nil, 0))
	return nil
}

// Finalize packs every field and clears the accumulator on success.
func (a *Accumulator) Finalize(c structrecover.Confirmer) (*Result, error) {
	if len(a.items) == 0 {
		return nil, errors.InvalidInput(errors.PhasePack, "no fields to pack")
	}
	res, err := a.Pack(0, len(a.items), c)
	if err != nil {
		return nil, err
	}
	a.Clear()
	return res, nil
}
