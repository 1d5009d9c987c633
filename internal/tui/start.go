package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
)

// startModel asks for the owner and branch of a sandbox to start.
type startModel struct {
	owner  textinput.Model
	branch textinput.Model
	focus  int
	err    string
}

var (
	startLabelStyle = lipgloss.NewStyle().Bold(true)
	startErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func newStartModel() startModel {
	oi := textinput.New()
	oi.Placeholder = "owner"
	oi.CharLimit = 63
	oi.Width = 40
	oi.Focus()

	bi := textinput.New()
	bi.Placeholder = "branch"
	bi.CharLimit = 63
	bi.Width = 40

	return startModel{owner: oi, branch: bi}
}

func (s *startModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update returns done once the user confirms or cancels. On confirm owner
// and branch are valid identifiers; on cancel they are empty.
func (s *startModel) Update(msg tea.Msg) (done bool, owner, branch string, cmd tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "ctrl+c":
			return true, "", "", nil

		case "tab", "shift+tab", "up", "down":
			s.setFocus(1 - s.focus)
			return false, "", "", nil

		case "enter":
			if s.focus == 0 {
				s.setFocus(1)
				return false, "", "", nil
			}
			o := strings.TrimSpace(s.owner.Value())
			b := strings.TrimSpace(s.branch.Value())
			if err := config.ValidateID("owner", o); err != nil {
				s.err = err.Error()
				s.setFocus(0)
				return false, "", "", nil
			}
			if err := config.ValidateID("branch", b); err != nil {
				s.err = err.Error()
				return false, "", "", nil
			}
			return true, o, b, nil
		}
	}

	if s.focus == 0 {
		s.owner, cmd = s.owner.Update(msg)
	} else {
		s.branch, cmd = s.branch.Update(msg)
	}
	return false, "", "", cmd
}

func (s *startModel) setFocus(i int) {
	s.focus = i
	if i == 0 {
		s.branch.Blur()
		s.owner.Focus()
	} else {
		s.owner.Blur()
		s.branch.Focus()
	}
}

func (s *startModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Start a sandbox"))
	b.WriteString("\n")
	b.WriteString(startLabelStyle.Render("Owner") + "\n" + s.owner.View() + "\n\n")
	b.WriteString(startLabelStyle.Render("Branch") + "\n" + s.branch.View() + "\n")
	if s.err != "" {
		b.WriteString("\n" + startErrStyle.Render(s.err) + "\n")
	}
	b.WriteString(helpStyle.Render("[tab] Switch field  [enter] Next/Start  [esc] Cancel"))
	return b.String()
}
