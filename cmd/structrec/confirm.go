package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// declarationEditor is a textarea preloaded with a generated declaration.
// ctrl+s accepts the text, esc cancels.
type declarationEditor struct {
	area      textarea.Model
	accepted  bool
	cancelled bool
}

func newDeclarationEditor(decl string) declarationEditor {
	ta := textarea.New()
	ta.ShowLineNumbers = false
	ta.SetWidth(72)
	ta.SetHeight(strings.Count(decl, "\n") + 3)
	ta.CharLimit = 0
	ta.SetValue(decl)
	ta.Focus()
	return declarationEditor{area: ta}
}

func (e declarationEditor) Value() string { return e.area.Value() }

func (e declarationEditor) update(msg tea.Msg) (declarationEditor, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+s":
			e.accepted = true
			return e, nil
		case "esc", "ctrl+c":
			e.cancelled = true
			return e, nil
		}
	}
	var cmd tea.Cmd
	e.area, cmd = e.area.Update(msg)
	return e, cmd
}

func (e declarationEditor) View() string {
	return e.area.View() + "\n" + helpStyle.Render("ctrl+s register • esc cancel")
}

// confirmModel runs a declarationEditor as a standalone program.
type confirmModel struct {
	editor declarationEditor
}

func (m confirmModel) Init() tea.Cmd { return textarea.Blink }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.editor, cmd = m.editor.update(msg)
	if m.editor.accepted || m.editor.cancelled {
		return m, tea.Quit
	}
	return m, cmd
}

func (m confirmModel) View() string {
	return titleStyle.Render("Confirm declaration") + "\n\n" + m.editor.View()
}

// confirmDeclaration shows decl in an editor on the terminal and returns
// the edited text. ok is false when the user cancels.
func confirmDeclaration(decl string) (string, bool) {
	final, err := tea.NewProgram(confirmModel{editor: newDeclarationEditor(decl)}).Run()
	if err != nil {
		return "", false
	}
	m := final.(confirmModel)
	if !m.editor.accepted {
		return "", false
	}
	return m.editor.Value(), true
}
