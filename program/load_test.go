package program

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/structrecover/errors"
)

const imageYAML = `
pointer_size: 8
segments:
  - name: .text
    start: 0x401000
    size: 0x1000
    perm: r-x
  - name: .rdata
    start: 0x500000
    perm: r--
    words: [0x401000, 0x401020, 0]
functions:
  - entry: 0x401000
    size: 0x20
    name: _ZN3Foo6UpdateEv
    signature: "void __fastcall(void *this)"
    locals:
      this: "void *"
  - entry: 0x401020
    name: _ZN3Foo4DrawEv
symbols:
  0x500000: _ZTV3Foo
`

func TestLoad(t *testing.T) {
	img, err := Load(strings.NewReader(imageYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if img.PointerSize() != 8 {
		t.Errorf("PointerSize = %d, want 8", img.PointerSize())
	}
	got, err := img.ReadPointer(0x500008)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x401020 {
		t.Errorf("ReadPointer = %v, want 0x00401020", got)
	}
	if _, err := img.ReadPointer(0x500018); err == nil {
		t.Error("words should size the segment exactly")
	}
	if !img.IsCode(0x401020) {
		t.Error("second function should be code")
	}
	if img.ShortName(0x500000) != "vtable for Foo" {
		t.Errorf("ShortName = %q", img.ShortName(0x500000))
	}
	if v, ok := img.Local(0x401000, "this"); !ok || v != "void *" {
		t.Errorf("Local = %q, %v", v, ok)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		kind errors.Kind
	}{
		{
			name: "bad yaml",
			yaml: "segments: [",
			kind: errors.KindInvalidData,
		},
		{
			name: "bad pointer size",
			yaml: "pointer_size: 2\nsegments: []\n",
			kind: errors.KindUnsupported,
		},
		{
			name: "bad perm",
			yaml: "segments:\n  - {name: a, start: 0x10, size: 8, perm: rq}\n",
			kind: errors.KindInvalidData,
		},
		{
			name: "empty segment",
			yaml: "segments:\n  - {name: a, start: 0x10, perm: r--}\n",
			kind: errors.KindInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error %T is not *errors.Error", err)
			}
			if e.Phase != errors.PhaseLoad || e.Kind != tt.kind {
				t.Errorf("got %s/%s, want load/%s", e.Phase, e.Kind, tt.kind)
			}
		})
	}
}
