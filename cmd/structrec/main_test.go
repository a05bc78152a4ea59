package main

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/structrecover"
	"github.com/wippyai/structrecover/session"
)

const testSession = `
name: Player
image:
  segments:
    - {name: .text, start: 0x401000, size: 0x100, perm: r-x}
  functions:
    - {entry: 0x401000, name: update, locals: {this: "void *"}}
fields:
  - {offset: 0, type: int, function: 0x401000, variable: this}
  - {offset: 4, type: float}
  - {offset: 6, type: char}
  - {offset: 8, type: int}
`

func loadSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.Parse(strings.NewReader(testSession))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestParseRows(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"2:5", []int{2, 3, 4, 5}, false},
		{"3", []int{3}, false},
		{" 1 : 2 ", []int{1, 2}, false},
		{"5:2", nil, true},
		{"a:2", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRows(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRows(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrintRows(t *testing.T) {
	s := loadSession(t)
	var buf bytes.Buffer
	printRows(&buf, s.Accumulator.Rows())

	out := buf.String()
	for _, want := range []string{"OFFSET", "0x00000004", "float", "field_6", "collision"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m *interactiveModel, keys ...string) {
	for _, k := range keys {
		m.Update(key(k))
	}
}

func TestInteractiveDisableAndFinalize(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)

	// row 2 (char at 6) collides with the float at 4
	press(m, "j", "j", "d")
	if m.err != nil {
		t.Fatalf("disable: %v", m.err)
	}
	if s.Accumulator.Item(2).Enabled() {
		t.Fatal("row 2 should be disabled")
	}

	press(m, "f")
	if m.state != stateConfirm {
		t.Fatalf("state = %v, want confirm (err %v)", m.state, m.err)
	}
	press(m, "ctrl+s")
	if m.err != nil {
		t.Fatalf("commit: %v", m.err)
	}
	if _, err := s.Registry.Resolve("Player"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
	if v, _ := s.Image.Local(0x401000, "this"); v != "Player *" {
		t.Errorf("this retyped to %q", v)
	}
	if s.Accumulator.Len() != 0 {
		t.Errorf("finalize left %d fields", s.Accumulator.Len())
	}
}

func TestInteractiveCancel(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)
	press(m, "j", "j", "d", "f", "esc")

	if m.state != stateRows || m.err == nil {
		t.Fatalf("state = %v err = %v, want rows with cancel error", m.state, m.err)
	}
	if len(s.Registry.Names()) != 0 || s.Accumulator.Len() != 4 {
		t.Errorf("cancel changed state: registry %v, len %d", s.Registry.Names(), s.Accumulator.Len())
	}
}

func TestInteractiveCollisionBlocksFinalize(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)
	press(m, "f")

	if m.state != stateRows || m.err == nil {
		t.Fatalf("state = %v err = %v, want collision error", m.state, m.err)
	}
}

func TestInteractivePackSubstructure(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)

	// drop the colliding char at row 2, then select rows 1 and 3
	press(m, "j", "j", "d", "k", " ", "j", "j", " ", "p")
	if m.state != stateConfirm {
		t.Fatalf("state = %v, want confirm (err %v)", m.state, m.err)
	}
	press(m, "ctrl+s")
	if m.err != nil {
		t.Fatalf("commit: %v", m.err)
	}

	rows := s.Accumulator.Rows()
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.Offset + " " + r.Type
	}
	want := []string{"0x00000000 int", "0x00000004 Player_sub_4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if s.Accumulator.StructureName() != "Player" {
		t.Errorf("StructureName = %q, want Player", s.Accumulator.StructureName())
	}

	press(m, "f", "ctrl+s")
	if m.err != nil {
		t.Fatalf("finalize: %v", m.err)
	}
	if diff := cmp.Diff([]string{"Player", "Player_sub_4"}, s.Registry.Names()); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestInteractiveCancelSubstructureKeepsName(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)
	press(m, "j", "j", "d", "k", "p", "esc")

	if s.Accumulator.StructureName() != "Player" {
		t.Errorf("StructureName = %q, want Player", s.Accumulator.StructureName())
	}
}

func TestPackSubstructureDefaultName(t *testing.T) {
	tests := []struct {
		name    string
		subName string
		want    []string
	}{
		{"derived", "", []string{"Player", "Player_sub_4"}},
		{"explicit", "Motion", []string{"Motion", "Player"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadSession(t)
			acc := s.Accumulator
			if err := acc.Disable(2); err != nil {
				t.Fatal(err)
			}

			if _, err := packSubstructure(acc, []int{1, 2, 3}, tt.subName, structrecover.AcceptAll); err != nil {
				t.Fatalf("packSubstructure: %v", err)
			}
			if acc.StructureName() != "Player" {
				t.Errorf("StructureName = %q, want Player", acc.StructureName())
			}
			if _, err := acc.Finalize(structrecover.AcceptAll); err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if diff := cmp.Diff(tt.want, s.Registry.Names()); diff != "" {
				t.Errorf("registry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInteractiveRename(t *testing.T) {
	s := loadSession(t)
	m := newInteractiveModel("test.yaml", s)
	press(m, "n")
	m.name.SetValue("Enemy")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if s.Accumulator.StructureName() != "Enemy" {
		t.Errorf("StructureName = %q, want Enemy", s.Accumulator.StructureName())
	}
	if m.state != stateRows {
		t.Errorf("state = %v, want rows", m.state)
	}
}
