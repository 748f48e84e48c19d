package tui

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/switchboard/internal/session"
)

// Subscriber delivers session transitions to the console.
type Subscriber interface {
	Subscribe(fn func(session.State)) (cancel func())
}

// RunConsole runs the console until the user quits or ctx is done.
// Transitions published by sub reach the program as SessionMsg.
func RunConsole(ctx context.Context, deps Deps, sub Subscriber, opts ...tea.ProgramOption) error {
	model := NewConsole(ctx, deps)
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(model, opts...)

	if sub != nil {
		cancel := sub.Subscribe(func(s session.State) {
			p.Send(SessionMsg{State: s})
		})
		defer cancel()
	}

	_, err := p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
