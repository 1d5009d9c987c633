package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testServers() []registry.Server {
	return []registry.Server{
		{OwnerID: "bob", BranchID: "main", Port: 9001, PID: 11, Command: "npm start"},
		{OwnerID: "alice", BranchID: "feature", Port: 9000, PID: 10, Command: "npm run dev"},
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"npm run dev -- --port 9000", 12, "npm run d..."},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}

func TestSandboxItemMethods(t *testing.T) {
	item := sandboxItem{
		server: registry.Server{OwnerID: "alice", BranchID: "main", Port: 9004, PID: 77, Command: "npm run dev"},
		status: health.StatusHealthy,
		uptime: "2h30m",
	}

	if got := item.Title(); got != "main" {
		t.Errorf("Title() = %q, want main", got)
	}
	if got := item.FilterValue(); got != "alice/main" {
		t.Errorf("FilterValue() = %q, want alice/main", got)
	}
	desc := item.Description()
	for _, want := range []string{"✓", ":9004", "pid 77", "2h30m", "npm run dev"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Description %q should contain %q", desc, want)
		}
	}
}

func TestStatusIcons(t *testing.T) {
	tests := []struct {
		status health.Status
		icon   string
	}{
		{health.StatusHealthy, "✓"},
		{health.StatusStarting, "…"},
		{health.StatusUnhealthy, "⚠"},
		{health.StatusStopped, "●"},
	}
	for _, tt := range tests {
		if got := statusIcon(tt.status); got != tt.icon {
			t.Errorf("statusIcon(%s) = %q, want %q", tt.status, got, tt.icon)
		}
	}
}

func TestItemsFor_NilAliveIsStopped(t *testing.T) {
	items := itemsFor(testServers(), nil)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, it := range items {
		if it.status != health.StatusStopped || it.uptime != "stopped" {
			t.Errorf("%s: status %s uptime %s, want stopped", it.server.Key(), it.status, it.uptime)
		}
	}
}

func TestModelKeyHandling(t *testing.T) {
	t.Run("cursor starts on a sandbox", func(t *testing.T) {
		m := NewPicker(testServers(), nil)
		srv, ok := m.selected()
		if !ok {
			t.Fatal("a sandbox should be selected, not a header")
		}
		if srv.Key() != "alice/feature" {
			t.Errorf("selected %s, want alice/feature (owners sorted)", srv.Key())
		}
	})

	t.Run("enter opens", func(t *testing.T) {
		m := NewPicker(testServers(), nil)
		newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		model := newModel.(Model)
		if model.result.Action != ActionOpen {
			t.Errorf("Action = %v, want ActionOpen", model.result.Action)
		}
		if model.result.Sandbox == nil || model.result.Sandbox.Port != 9000 {
			t.Errorf("Sandbox = %+v, want port 9000", model.result.Sandbox)
		}
		if cmd == nil {
			t.Error("Should return tea.Quit command")
		}
	})

	t.Run("t touches and d stops", func(t *testing.T) {
		for key, want := range map[string]Action{"t": ActionTouch, "d": ActionStop} {
			m := NewPicker(testServers(), nil)
			newModel, _ := m.Update(runes(key))
			model := newModel.(Model)
			if model.result.Action != want {
				t.Errorf("%s: Action = %v, want %v", key, model.result.Action, want)
			}
			if model.result.Sandbox == nil {
				t.Errorf("%s: Sandbox should be set", key)
			}
		}
	})

	t.Run("down skips the next header", func(t *testing.T) {
		m := NewPicker(testServers(), nil)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
		model := newModel.(Model)
		srv, ok := model.selected()
		if !ok || srv.Key() != "bob/main" {
			t.Errorf("selected %v, want bob/main", srv)
		}
	})

	t.Run("quit with q and esc", func(t *testing.T) {
		for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}} {
			m := NewPicker(testServers(), nil)
			newModel, cmd := m.Update(msg)
			model := newModel.(Model)
			if model.result.Action != ActionQuit || !model.quitting || cmd == nil {
				t.Errorf("%s: want quit, got %+v", msg, model.result)
			}
		}
	})

	t.Run("window size update", func(t *testing.T) {
		m := NewPicker(testServers(), nil)
		newModel, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
		model := newModel.(Model)
		if model.width != 100 || model.height != 50 {
			t.Errorf("size = %dx%d, want 100x50", model.width, model.height)
		}
		if cmd != nil {
			t.Error("Window size update should not return a command")
		}
	})
}

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestStartFlow(t *testing.T) {
	var m tea.Model = NewPicker(testServers(), nil)
	m, _ = m.Update(runes("n"))
	if !m.(Model).starting {
		t.Fatal("n should open the start prompt")
	}
	if !strings.Contains(m.View(), "Start a sandbox") {
		t.Error("view should show the start prompt")
	}

	m = typeText(m, "carol")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "fix-42")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	res := m.(Model).Result()
	if res.Action != ActionStart || res.Owner != "carol" || res.Branch != "fix-42" {
		t.Errorf("result = %+v, want start carol/fix-42", res)
	}
	if cmd == nil {
		t.Error("Should return tea.Quit command")
	}
}

func TestStartFlow_Validation(t *testing.T) {
	var m tea.Model = NewPicker(nil, nil)
	m, _ = m.Update(runes("n"))
	m = typeText(m, "-bad")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "main")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	model := m.(Model)
	if model.quitting {
		t.Fatal("invalid owner must not finish the prompt")
	}
	if !strings.Contains(model.View(), "invalid owner") {
		t.Errorf("view should show the validation error, got %q", model.View())
	}
}

func TestStartFlow_Cancel(t *testing.T) {
	var m tea.Model = NewPicker(testServers(), nil)
	m, _ = m.Update(runes("n"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	model := m.(Model)
	if model.starting || model.quitting {
		t.Error("esc should return to the list")
	}
}

func TestModelInit(t *testing.T) {
	if cmd := (Model{}).Init(); cmd != nil {
		t.Error("Init() should return nil")
	}
}

func TestModelView(t *testing.T) {
	m := NewPicker(testServers(), nil)
	view := m.View()
	for _, want := range []string{"[enter] Open", "[n] Start", "[t] Touch", "[d] Stop", "[q] Quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("View should contain %q", want)
		}
	}

	m.quitting = true
	if view := m.View(); view != "" {
		t.Errorf("Quitting view should be empty, got %q", view)
	}
}

func TestSimplePicker(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		output := SimplePicker(nil, nil)
		if !strings.Contains(output, "No sandboxes running") {
			t.Error("Should indicate no sandboxes")
		}
		if !strings.Contains(output, "forage-pool start") {
			t.Error("Should show how to start a sandbox")
		}
	})

	t.Run("with sandboxes", func(t *testing.T) {
		output := SimplePicker(testServers(), nil)
		for _, want := range []string{"Forage Pool", "bob/main", "alice/feature", "9000", "npm start"} {
			if !strings.Contains(output, want) {
				t.Errorf("output should contain %q", want)
			}
		}
	})
}

func TestActionConstants(t *testing.T) {
	actions := []Action{ActionNone, ActionOpen, ActionStart, ActionTouch, ActionStop, ActionQuit}
	seen := make(map[Action]bool)
	for _, a := range actions {
		if seen[a] {
			t.Errorf("Duplicate action value: %v", a)
		}
		seen[a] = true
	}
}
