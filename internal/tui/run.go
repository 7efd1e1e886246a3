package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/app"
	"github.com/and161185/docdesk/internal/model"
	"github.com/and161185/docdesk/internal/service"
)

// ErrNotLoggedIn is returned when the dashboard is opened without a session.
var ErrNotLoggedIn = errors.New("not logged in; run `docdesk login` first")

// Run shows the dashboard until the user quits or ctx is done.
// A non-empty metricsAddr serves /metrics for the duration.
func Run(ctx context.Context, a *app.App, metricsAddr string, opts ...tea.ProgramOption) error {
	if !a.Session.Snapshot().Authenticated() {
		return ErrNotLoggedIn
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if metricsAddr != "" {
		go func() {
			if err := a.ServeMetrics(ctx, metricsAddr); err != nil {
				a.Log.Warn("metrics server", zap.Error(err))
			}
		}()
	}

	m := New(ctx, Deps{Docs: a.Docs, Searcher: a.Searcher, Session: a.Session, Uploader: a.Uploader})
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)...)

	a.Docs.Subscribe(func(s service.Snapshot) { p.Send(docsMsg(s)) })
	a.Session.Subscribe(func(s model.Session) { p.Send(sessionMsg(s)) })
	a.Uploader.Subscribe(func(ev service.UploadEvent) { p.Send(uploadMsg(ev)) })
	a.Subscribe(func(n service.Notification) { p.Send(noteMsg(n)) })

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
