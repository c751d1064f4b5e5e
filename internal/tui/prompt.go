// Package tui holds the interactive surfaces: the submission prompt and the
// plan table printed by `gridlaunch plan`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/gridlaunch/internal/submit"
)

var (
	recapTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	recapBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	recapBoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	abortStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// promptModel asks a single (Y/n) question about a recap.
type promptModel struct {
	recap     submit.Recap
	input     textinput.Model
	done      bool
	accepted  bool
	cancelled bool
}

func newPromptModel(recap submit.Recap) promptModel {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "Y"
	input.CharLimit = 8
	input.Width = 8
	input.Focus()
	return promptModel{recap: recap, input: input}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.done = true
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			m.done = true
			m.accepted = submit.Accepts(m.input.Value())
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done {
		if !m.accepted {
			return abortStyle.Render("Aborted.") + "\n"
		}
		return ""
	}
	head := recapTitleStyle.Render("SUBMIT · " + m.recap.ScriptPath)
	body := recapBodyStyle.Render(m.recap.String())
	box := recapBoxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
	question := questionStyle.Render("Proceed? (Y/n) ") + m.input.View()
	hint := hintStyle.Render("enter confirm · esc abort")
	return lipgloss.JoinVertical(lipgloss.Left, box, question, hint) + "\n"
}

// Prompt runs the interactive confirmation as a submit.Confirmer. Nil In and
// Out fall back to the terminal.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Confirm shows the recap and waits for an answer. Esc and Ctrl+C decline.
func (p Prompt) Confirm(ctx context.Context, recap submit.Recap) (bool, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}
	final, err := tea.NewProgram(newPromptModel(recap), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("tui: prompt: %w", err)
	}
	m, ok := final.(promptModel)
	if !ok {
		return false, fmt.Errorf("tui: unexpected model %T", final)
	}
	return m.accepted, nil
}
