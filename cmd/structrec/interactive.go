package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/structrecover/errors"
	"github.com/wippyai/structrecover/layout"
	"github.com/wippyai/structrecover/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	collisionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	originStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	vtableStyle = lipgloss.NewStyle().
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type editorState int

const (
	stateRows editorState = iota
	stateConfirm
	stateRename
	stateMethods
)

type interactiveModel struct {
	err      error
	acc      *layout.Accumulator
	draft    *layout.Draft
	vt       *layout.VirtualTable
	selected map[int]bool
	filename string
	status   string
	editor   declarationEditor
	name     textinput.Model
	cursor   int
	method   int
	state    editorState
	// substructure is set while the pending draft packs a selection
	// rather than the whole structure.
	substructure bool
	// outer holds the structure name while a substructure draft is
	// pending under its own name.
	outer string
}

func newInteractiveModel(filename string, s *session.Session) *interactiveModel {
	m := &interactiveModel{
		acc:      s.Accumulator,
		filename: filename,
		selected: make(map[int]bool),
		state:    stateRows,
	}
	if len(s.Rejected) > 0 {
		m.status = fmt.Sprintf("%d vtable candidate(s) skipped", len(s.Rejected))
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

// rows returns the selected rows, or the cursor row when nothing is selected.
func (m *interactiveModel) rows() []int {
	if len(m.selected) == 0 {
		if m.acc.Len() == 0 {
			return nil
		}
		return []int{m.cursor}
	}
	rows := make([]int, 0, len(m.selected))
	for r := range m.selected {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

func (m *interactiveModel) clampCursor() {
	if m.cursor >= m.acc.Len() {
		m.cursor = m.acc.Len() - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *interactiveModel) report(err error, ok string) {
	m.err = err
	if err == nil {
		m.status = ok
	} else {
		m.status = ""
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.state {
	case stateConfirm:
		return m.updateConfirm(msg)
	case stateRename:
		return m.updateRename(msg)
	case stateMethods:
		return m.updateMethods(msg)
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < m.acc.Len()-1 {
			m.cursor++
		}

	case " ":
		if m.acc.Len() > 0 {
			if m.selected[m.cursor] {
				delete(m.selected, m.cursor)
			} else {
				m.selected[m.cursor] = true
			}
		}

	case "e":
		m.report(m.acc.Enable(m.rows()...), "enabled")

	case "d":
		m.report(m.acc.Disable(m.rows()...), "disabled")

	case "o":
		if m.acc.Len() > 0 {
			m.report(m.acc.SetOrigin(m.cursor), "origin set")
		}

	case "a":
		if m.acc.Len() > 0 {
			m.report(m.acc.ToggleArray(m.cursor), "array toggled")
		}

	case "x":
		rows := m.rows()
		m.report(m.acc.Remove(rows...), fmt.Sprintf("removed %d field(s)", len(rows)))
		m.selected = make(map[int]bool)
		m.clampCursor()

	case "n":
		ti := textinput.New()
		ti.Prompt = "Structure name: "
		ti.Width = 40
		ti.SetValue(m.acc.StructureName())
		ti.Focus()
		m.name = ti
		m.state = stateRename
		return m, textinput.Blink

	case "p":
		rows := m.rows()
		if len(rows) == 0 {
			break
		}
		return m.prepare(rows[0], rows[len(rows)-1]+1, true)

	case "f":
		if m.acc.Len() == 0 {
			m.report(errors.InvalidInput(errors.PhasePack, "no fields to pack"), "")
			break
		}
		return m.prepare(0, m.acc.Len(), false)

	case "v":
		vt, ok := m.acc.VirtualTableAt(m.cursor)
		if !ok {
			m.status = "not a vtable field"
			break
		}
		m.vt = vt
		m.method = 0
		m.state = stateMethods
	}

	return m, nil
}

func (m *interactiveModel) prepare(start, stop int, substructure bool) (tea.Model, tea.Cmd) {
	if substructure {
		m.outer = m.acc.StructureName()
		m.acc.SetStructureName(fmt.Sprintf("%s_sub_%X", m.outer, m.acc.Item(start).Offset()))
	}
	d, err := m.acc.Prepare(start, stop)
	if err != nil {
		m.restoreName()
		m.report(err, "")
		return m, nil
	}
	m.draft = d
	m.substructure = substructure
	m.editor = newDeclarationEditor(d.Declaration)
	m.state = stateConfirm
	return m, nil
}

func (m *interactiveModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.editor, cmd = m.editor.update(msg)

	switch {
	case m.editor.cancelled:
		m.restoreName()
		m.report(errors.Cancelled("pack"), "")
		m.draft = nil
		m.state = stateRows

	case m.editor.accepted:
		m.commit()
		m.restoreName()
		m.draft = nil
		m.state = stateRows
	}
	return m, cmd
}

func (m *interactiveModel) restoreName() {
	if m.outer != "" {
		m.acc.SetStructureName(m.outer)
		m.outer = ""
	}
}

func (m *interactiveModel) commit() {
	res, err := m.acc.Commit(m.draft, m.editor.Value())
	if err != nil {
		m.report(err, "")
		return
	}
	if m.substructure {
		start, stop := m.draft.Range()
		if err := m.acc.ReplaceWithSubstructure(start, stop, res.Type); err != nil {
			m.report(err, "")
			return
		}
	} else {
		m.acc.Clear()
	}
	m.selected = make(map[int]bool)
	m.clampCursor()

	status := fmt.Sprintf("registered %s, retyped %d variable(s)", res.Type.Name, len(res.Rebound))
	if len(res.Failed) > 0 {
		status += fmt.Sprintf(", %d failed", len(res.Failed))
	}
	m.report(nil, status)
}

func (m *interactiveModel) updateRename(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if name := strings.TrimSpace(m.name.Value()); name != "" {
				m.acc.SetStructureName(name)
				m.report(nil, "renamed to "+name)
			}
			m.state = stateRows
			return m, nil
		case "esc":
			m.state = stateRows
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.name, cmd = m.name.Update(msg)
	return m, cmd
}

func (m *interactiveModel) updateMethods(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.method > 0 {
			m.method--
		}
	case "down", "j":
		if m.method < len(m.vt.Functions())-1 {
			m.method++
		}
	case "enter":
		if addr, ok := m.vt.MarkVisited(m.method); ok {
			m.report(nil, "visited "+addr.String())
		}
	case "esc", "q":
		m.vt = nil
		m.state = stateRows
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Structure Builder"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(" ")
	b.WriteString(typeStyle.Render(m.acc.StructureName()))
	b.WriteString("\n\n")

	switch m.state {
	case stateRows:
		m.viewRows(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ move • space select • e/d enable/disable • o origin • a array • x remove"))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("p pack substructure • f finalize • n rename • v vtable methods • q quit"))

	case stateConfirm:
		if m.substructure {
			b.WriteString("Pack selection as substructure:\n\n")
		} else {
			b.WriteString("Finalize structure:\n\n")
		}
		b.WriteString(m.editor.View())

	case stateRename:
		b.WriteString(m.name.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc cancel"))

	case stateMethods:
		m.viewMethods(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter mark visited • esc back"))
	}

	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.status != "" {
		b.WriteString("\n\n")
		b.WriteString(resultStyle.Render(m.status))
	}
	return b.String()
}

func rowStyle(r layout.Row) lipgloss.Style {
	switch {
	case !r.Enabled:
		return disabledStyle
	case r.Collision:
		return collisionStyle
	case r.Origin:
		return originStyle
	case r.VirtualTable:
		return vtableStyle
	}
	return lipgloss.NewStyle()
}

func (m *interactiveModel) viewRows(b *strings.Builder) {
	rows := m.acc.Rows()
	if len(rows) == 0 {
		b.WriteString("No fields.\n")
		return
	}
	for i, r := range rows {
		mark := "[ ]"
		if m.selected[i] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s  %-24s %s", mark, r.Offset, r.Type, r.Name)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(rowStyle(r).Render("  " + line))
		}
		b.WriteString("\n")
	}
}

func (m *interactiveModel) viewMethods(b *strings.Builder) {
	fmt.Fprintf(b, "Virtual table %s\n\n", typeStyle.Render(m.vt.TableName()))
	for i, fn := range m.vt.Methods() {
		mark := " "
		if fn.Visited {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s  %-32s %s", mark, fn.Address, fn.Name, fn.Declaration)
		if i == m.method {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
}

func runInteractive(filename string, s *session.Session) error {
	p := tea.NewProgram(newInteractiveModel(filename, s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
