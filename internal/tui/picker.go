package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionStart
	ActionTouch
	ActionStop
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action  Action
	Sandbox *registry.Server

	// Owner and Branch are set for ActionStart.
	Owner  string
	Branch string
}

// sandboxItem implements list.Item for sandbox display
type sandboxItem struct {
	server registry.Server
	status health.Status
	uptime string
}

func (i sandboxItem) Title() string {
	return i.server.BranchID
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusStarting:
		return "…"
	case health.StatusUnhealthy:
		return "⚠"
	default:
		return "●"
	}
}

func (i sandboxItem) Description() string {
	return fmt.Sprintf("%s :%d | pid %d | %s | %s",
		statusIcon(i.status),
		i.server.Port,
		i.server.PID,
		i.uptime,
		truncate(i.server.Command, 30),
	)
}

func (i sandboxItem) FilterValue() string {
	return i.server.Key()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the sandbox picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	starting bool
	wizard   startModel
	width    int
	height   int
}

// itemsFor probes each server and builds grouped list items. alive is
// optional; nil shows every sandbox as stopped.
func itemsFor(servers []registry.Server, alive func(pid int) bool) []sandboxItem {
	ctx := context.Background()
	items := make([]sandboxItem, len(servers))
	for i, srv := range servers {
		status := health.GetSummary(ctx, srv, alive)
		uptime := "stopped"
		if status != health.StatusStopped {
			uptime = health.GetUptime(srv.StartedAt)
		}
		items[i] = sandboxItem{server: srv, status: status, uptime: uptime}
	}
	return items
}

// NewPicker creates a new sandbox picker
func NewPicker(servers []registry.Server, alive func(pid int) bool) Model {
	return newPickerFromItems(itemsFor(servers, alive))
}

func newPickerFromItems(sandboxes []sandboxItem) Model {
	items := buildGroupedItems(sandboxes)

	l := list.New(items, newGroupedDelegate(), 80, 20)
	l.Title = "Forage Pool - Sandboxes"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	skipHeaders(&l, 1)

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) selected() (*registry.Server, bool) {
	item, ok := m.list.SelectedItem().(sandboxItem)
	if !ok {
		return nil, false
	}
	srv := item.server
	return &srv, true
}

func (m Model) finish(result PickerResult) (tea.Model, tea.Cmd) {
	m.result = result
	m.quitting = true
	return m, tea.Quit
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.starting {
		done, owner, branch, cmd := m.wizard.Update(msg)
		switch {
		case done && owner != "":
			return m.finish(PickerResult{Action: ActionStart, Owner: owner, Branch: branch})
		case done:
			m.starting = false
			return m, nil
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if srv, ok := m.selected(); ok {
				return m.finish(PickerResult{Action: ActionOpen, Sandbox: srv})
			}

		case "n":
			m.starting = true
			m.wizard = newStartModel()
			return m, m.wizard.Init()

		case "t":
			if srv, ok := m.selected(); ok {
				return m.finish(PickerResult{Action: ActionTouch, Sandbox: srv})
			}

		case "d":
			if srv, ok := m.selected(); ok {
				return m.finish(PickerResult{Action: ActionStop, Sandbox: srv})
			}

		case "q", "esc":
			return m.finish(PickerResult{Action: ActionQuit})

		case "up", "k", "down", "j":
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			skipHeaders(&m.list, navigationDirection(msg))
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.starting {
		return m.wizard.View()
	}

	help := helpStyle.Render("[enter] Open  [n] Start  [t] Touch  [d] Stop  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive sandbox picker
func RunPicker(servers []registry.Server, alive func(pid int) bool) (PickerResult, error) {
	m := NewPicker(servers, alive)
	if len(servers) == 0 {
		m.starting = true
		m.wizard = newStartModel()
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive listing of sandboxes
func SimplePicker(servers []registry.Server, alive func(pid int) bool) string {
	var sb strings.Builder

	sb.WriteString("Forage Pool - Sandboxes\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(servers) == 0 {
		sb.WriteString("No sandboxes running.\n")
		sb.WriteString("Start one with: forage-pool start <owner> <branch>\n")
		return sb.String()
	}

	for i, item := range itemsFor(servers, alive) {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon(item.status), item.server.Key(), item.uptime))
		sb.WriteString(fmt.Sprintf("   Port: %d | PID: %d | %s\n\n",
			item.server.Port, item.server.PID, truncate(item.server.Command, 40)))
	}

	return sb.String()
}
