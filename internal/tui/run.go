package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the shell full screen, starting at path, until the user quits
// or ctx ends.
func Run(ctx context.Context, deps Deps, path string) error {
	p := tea.NewProgram(New(ctx, deps, path),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
