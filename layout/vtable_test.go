package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/structrecover"
)

func TestDetectVirtualTable(t *testing.T) {
	img := testImage(t)

	tests := []struct {
		name string
		addr structrecover.Address
		want bool
	}{
		{"two code slots", fooVtable, true},
		{"single code slot", singleSlot, false},
		{"coercible slot", coercedTable, true},
		{"unmapped", 0x900000, false},
		{"points at data", 0x500060, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectVirtualTable(img, tt.addr); got != tt.want {
				t.Errorf("DetectVirtualTable(%v) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestDetectCoercesFunctions(t *testing.T) {
	img := testImage(t)
	if img.IsCode(looseCode) {
		t.Fatal("fixture address should not start as code")
	}
	if !DetectVirtualTable(img, coercedTable) {
		t.Fatal("expected detection to succeed")
	}
	if !img.IsCode(looseCode) {
		t.Error("detection should define a function at the coerced slot target")
	}
}

func TestNewVirtualTable(t *testing.T) {
	cfg, _ := testConfig(t)
	vt := NewVirtualTable(cfg, 0, fooVtable, nil, 0)

	fns := vt.Functions()
	if len(fns) != 2 {
		t.Fatalf("recovered %d functions, want 2", len(fns))
	}
	if fns[0].Address != fooUpdate || fns[0].Offset != 0 {
		t.Errorf("slot 0 = %v@%d", fns[0].Address, fns[0].Offset)
	}
	if fns[1].Address != fooDraw || fns[1].Offset != 8 {
		t.Errorf("slot 1 = %v@%d", fns[1].Address, fns[1].Offset)
	}

	if vt.TableName() != "Vtable_Foo" || !vt.HasNiceName() {
		t.Errorf("TableName = %q nice=%v", vt.TableName(), vt.HasNiceName())
	}
	if vt.TypeName() != "Vtable_Foo *" || vt.Size() != 8 || vt.Name() != "vtable" {
		t.Errorf("field = %q size %d name %q", vt.TypeName(), vt.Size(), vt.Name())
	}

	want := []memberShape{
		{Name: "Foo__Update", Type: "void (__fastcall *)(void *this)", Offset: 0, Size: 8},
		{Name: "Foo__Draw", Type: "void *", Offset: 8, Size: 8},
	}
	if diff := cmp.Diff(want, shapes(vt.TableType())); diff != "" {
		t.Errorf("table members mismatch (-want +got):\n%s", diff)
	}
}

func TestVirtualTableDuplicateSlotNames(t *testing.T) {
	cfg, img := testConfig(t)
	if err := img.WritePointers(0x500080, fooUpdate, fooUpdate, 0); err != nil {
		t.Fatal(err)
	}
	vt := NewVirtualTable(cfg, 0, 0x500080, nil, 0)

	got := []string{vt.TableType().Members[0].Name, vt.TableType().Members[1].Name}
	want := []string{"Foo__Update", "Foo__Update_8"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("member names mismatch (-want +got):\n%s", diff)
	}
	if vt.TableName() != "Vtable_500080" || vt.HasNiceName() {
		t.Errorf("unnamed table = %q nice=%v", vt.TableName(), vt.HasNiceName())
	}
}

func TestVirtualTableCoercedSlotName(t *testing.T) {
	cfg, _ := testConfig(t)
	vt := NewVirtualTable(cfg, 0, coercedTable, nil, 0)
	if len(vt.Functions()) != 2 {
		t.Fatalf("recovered %d functions, want 2", len(vt.Functions()))
	}
	if got := vt.Functions()[0].Name; got != "sub_401800" {
		t.Errorf("coerced slot name = %q, want sub_401800", got)
	}
}

func TestParseVirtualTableName(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		wantNice bool
	}{
		{"_ZTV3Foo", "Vtable_Foo", true},
		{"_ZTVN4Game6PlayerE", "Vtable_Game__Player", true},
		{"vtable for Bar", "Vtable_Bar", true},
		{"`vtable for'Baz", "Vtable_Baz", true},
		{"const Widget::`vftable'", "Vtable_Widget", true},
		{"off_500000", "Vtable_500000", false},
		{"some_table", "some_table", false},
		{"table-2", "table_2", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, nice := ParseVirtualTableName(tt.in)
			if got != tt.want || nice != tt.wantNice {
				t.Errorf("ParseVirtualTableName(%q) = %q, %v; want %q, %v", tt.in, got, nice, tt.want, tt.wantNice)
			}
		})
	}
}

func TestMethods(t *testing.T) {
	cfg, _ := testConfig(t)
	vt := NewVirtualTable(cfg, 0, fooVtable, nil, 0)

	addr, ok := vt.MarkVisited(1)
	if !ok || addr != fooDraw {
		t.Fatalf("MarkVisited(1) = %v, %v", addr, ok)
	}
	if _, ok := vt.MarkVisited(2); ok {
		t.Error("MarkVisited out of range should fail")
	}

	want := []MethodInfo{
		{Address: "0x00401000", Name: "Foo__Update", Declaration: "void (__fastcall *)(void *this)"},
		{Address: "0x00401020", Name: "Foo__Draw", Declaration: "void *", Visited: true},
	}
	if diff := cmp.Diff(want, vt.Methods()); diff != "" {
		t.Errorf("methods mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo::Update(float)", "Foo__Update"},
		{"operator delete", "operator_delete"},
		{"`vftable'", "vftable"},
		{"2d_draw", "_2d_draw"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := identifier(tt.in); got != tt.want {
				t.Errorf("identifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
