// Package tui provides the interactive approval prompt for gapforge.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/gapforge/internal/approval"
	"github.com/fentz26/gapforge/internal/models"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#6B7280")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Accept key.Binding
	Build  key.Binding
	Reject key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Choose, k.Accept, k.Build, k.Reject}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Choose: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
	Accept: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "accept")),
	Build:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "build")),
	Reject: key.NewBinding(key.WithKeys("n", "esc", "q", "ctrl+c"), key.WithHelp("n/esc", "reject")),
}

// ApprovalModel asks for one approval answer, then quits.
type ApprovalModel struct {
	rec     *models.Recommendation
	options list.Model
	help    help.Model
	choice  approval.Choice
	done    bool
}

// NewApprovalModel creates the prompt for rec.
func NewApprovalModel(rec *models.Recommendation) *ApprovalModel {
	return &ApprovalModel{
		rec:     rec,
		options: newOptionList(rec),
		help:    help.New(),
	}
}

// Choice returns the answer. It is a rejection until the user chooses.
func (m *ApprovalModel) Choice() approval.Choice { return m.choice }

// Done reports whether the user answered.
func (m *ApprovalModel) Done() bool { return m.done }

// Init initializes the prompt
func (m *ApprovalModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *ApprovalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.options.SetSize(msg.Width-4, msg.Height-8)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Reject):
			return m.finish(approval.Choice{Kind: approval.ChoiceReject})
		case key.Matches(msg, keys.Accept):
			return m.finish(approval.Choice{Kind: approval.ChoiceAccept})
		case key.Matches(msg, keys.Build):
			return m.finish(approval.Choice{Kind: approval.ChoiceBuild})
		case key.Matches(msg, keys.Choose):
			if item, ok := m.options.SelectedItem().(OptionItem); ok {
				return m.finish(item.Choice)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.options, cmd = m.options.Update(msg)
	return m, cmd
}

func (m *ApprovalModel) finish(c approval.Choice) (tea.Model, tea.Cmd) {
	m.choice = c
	m.done = true
	return m, tea.Quit
}

// View renders the prompt
func (m *ApprovalModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	approval.WriteSummary(&b, m.rec)
	return fmt.Sprintf("%s\n%s\n%s\n",
		panelStyle.Render(strings.TrimRight(b.String(), "\n")),
		m.options.View(),
		helpStyle.Render(m.help.View(keys)),
	)
}

// Prompt is an approval.Channel backed by a bubbletea program.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

// NewPrompt creates a prompt reading keys from in and drawing to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// Present runs the prompt until the user answers or ctx is done.
func (p *Prompt) Present(ctx context.Context, rec *models.Recommendation) (approval.Choice, error) {
	prog := tea.NewProgram(NewApprovalModel(rec),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return approval.Choice{}, ctx.Err()
		}
		return approval.Choice{}, fmt.Errorf("approval prompt: %w", err)
	}
	m, ok := final.(*ApprovalModel)
	if !ok || !m.Done() {
		return approval.Choice{Kind: approval.ChoiceReject}, nil
	}
	return m.Choice(), nil
}
