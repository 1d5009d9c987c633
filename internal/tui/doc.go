// Package tui provides terminal user interface components for forage-pool.
//
// This package uses the Bubble Tea framework for the interactive sandbox
// picker behind `forage-pool pick`.
//
// # Sandbox Picker
//
// The picker lists registry entries grouped by owner:
//
//	result, err := tui.RunPicker(manager.List(), supervisor.IsAlive)
//	switch result.Action {
//	case tui.ActionOpen:
//	    // Print result.Sandbox's URL
//	case tui.ActionStart:
//	    // Start result.Owner/result.Branch
//	case tui.ActionTouch, tui.ActionStop:
//	    // Act on result.Sandbox
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// # Picker Features
//
//   - Sandboxes grouped under owner headers, headers auto-skipped
//   - Keyboard navigation (j/k or arrows) and filtering with /
//   - Quick actions: Enter (open), n (start), t (touch), d (stop), q (quit)
//   - Color-coded status indicators from a live health probe
//   - A start prompt that validates owner and branch identifiers
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
