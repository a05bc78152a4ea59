package layout

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/ctype"
	"github.com/wippyai/structrecover/program"
)

const (
	fooVtable    structrecover.Address = 0x500000 // Update, Draw, 0
	singleSlot   structrecover.Address = 0x500020 // Update, 0
	coercedTable structrecover.Address = 0x500040 // 0x401800, Update, 0
	fooUpdate    structrecover.Address = 0x401000
	fooDraw      structrecover.Address = 0x401020
	looseCode    structrecover.Address = 0x401800
)

func testImage(t *testing.T) *program.Image {
	t.Helper()
	img := program.New(8)
	img.AddSegment(program.Segment{Name: ".text", Start: 0x401000, Size: 0x1000, Perm: program.PermRead | program.PermExec})
	img.AddSegment(program.Segment{Name: ".rdata", Start: 0x500000, Size: 0x100, Perm: program.PermRead})
	img.AddFunction(program.Function{
		Entry:     fooUpdate,
		Size:      0x20,
		Name:      "_ZN3Foo6UpdateEv",
		Signature: "void __fastcall(void *this)",
		Locals:    map[string]string{"this": "void *", "other": "void *"},
	})
	img.AddFunction(program.Function{
		Entry:  fooDraw,
		Size:   0x20,
		Name:   "_ZN3Foo4DrawEv",
		Locals: map[string]string{"this": "void *"},
	})
	img.AddSymbol(fooVtable, "_ZTV3Foo")

	writes := map[structrecover.Address][]structrecover.Address{
		fooVtable:    {fooUpdate, fooDraw, 0},
		singleSlot:   {fooUpdate, 0},
		coercedTable: {looseCode, fooUpdate, 0},
	}
	for addr, words := range writes {
		if err := img.WritePointers(addr, words...); err != nil {
			t.Fatalf("WritePointers(%v): %v", addr, err)
		}
	}
	return img
}

func testConfig(t *testing.T) (Config, *program.Image) {
	t.Helper()
	img := testImage(t)
	return Config{
		Memory:     img,
		Signatures: img,
		Symbols:    img,
		Rebinder:   img,
		Registry:   ctype.NewRegistry(8),
	}, img
}

func newAccumulator(t *testing.T) (*Accumulator, *program.Image) {
	t.Helper()
	cfg, img := testConfig(t)
	return New(cfg), img
}

func scalar(t *testing.T, offset int, typ string) *ScalarField {
	t.Helper()
	return bound(t, offset, typ, nil, 0)
}

func bound(t *testing.T, offset int, typ string, b *VariableBinding, origin int) *ScalarField {
	t.Helper()
	ct, err := ctype.ParseType(typ, nil, 8)
	if err != nil {
		t.Fatalf("ParseType(%q): %v", typ, err)
	}
	return NewScalarField(offset, ct, b, origin)
}

func addAll(t *testing.T, a *Accumulator, fields ...Field) {
	t.Helper()
	for _, f := range fields {
		if !a.Add(f) {
			t.Fatalf("Add(%s@%d) rejected", f.TypeName(), f.Offset())
		}
	}
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
	return logs
}

type memberShape struct {
	Name   string
	Type   string
	Offset int
	Size   int
}

func shapes(t *ctype.Type) []memberShape {
	out := make([]memberShape, len(t.Members))
	for i, m := range t.Members {
		out[i] = memberShape{Name: m.Name, Type: m.Type.String(), Offset: m.Offset, Size: m.Size}
	}
	return out
}
