// Package tui is the interactive dashboard: a search box over the document
// table, filter selectors, upload progress and a notification line.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/model"
	"github.com/and161185/docdesk/internal/render"
	"github.com/and161185/docdesk/internal/service"
)

// uploadPrefix turns the search box into an upload command.
const uploadPrefix = ":upload "

type (
	docsMsg    service.Snapshot
	sessionMsg model.Session
	noteMsg    service.Notification
	uploadMsg  service.UploadEvent
	detailMsg  model.Document
	errMsg     struct {
		prefix string
		err    error
	}
	savedMsg string
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectStyle = lipgloss.NewStyle().Reverse(true)
)

// Deps are the services the dashboard drives.
type Deps struct {
	Docs     *service.Documents
	Searcher *service.Searcher
	Session  *service.Session
	Uploader *service.Uploader
	// DownloadDir receives ctrl+d downloads; defaults to the working directory.
	DownloadDir string
}

// Model implements tea.Model.
type Model struct {
	ctx  context.Context
	deps Deps
	keys KeyMap

	input   textinput.Model
	snap    service.Snapshot
	session model.Session
	filter  model.Filter
	cursor  int
	detail  *model.Document
	tasks   map[int]model.UploadTask
	status  service.Notification
	width   int
}

var _ tea.Model = (*Model)(nil)

// New builds the dashboard over deps.
func New(ctx context.Context, deps Deps) *Model {
	in := textinput.New()
	in.Placeholder = "Search documents (3+ characters)"
	in.Prompt = "Search: "
	in.CharLimit = 256
	in.Focus()
	if deps.DownloadDir == "" {
		deps.DownloadDir = "."
	}
	return &Model{
		ctx:     ctx,
		deps:    deps,
		keys:    DefaultKeyMap(),
		input:   in,
		snap:    deps.Docs.Snapshot(),
		session: deps.Session.Snapshot(),
		filter:  model.Filter{Range: model.RangeAll},
		tasks:   map[int]model.UploadTask{},
		width:   80,
	}
}

// Init loads the collection.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.reload())
}

func (m *Model) reload() tea.Cmd {
	return func() tea.Msg {
		if err := m.deps.Docs.LoadAll(m.ctx); err != nil {
			return errMsg{prefix: "load", err: err}
		}
		return nil
	}
}

// Update implements tea.Model. Service calls run inside commands so that
// subscriber callbacks never re-enter the event loop.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case docsMsg:
		if service.Snapshot(msg).Version < m.snap.Version {
			return m, nil
		}
		m.snap = service.Snapshot(msg)
		if m.cursor >= len(m.snap.View) {
			m.cursor = max(len(m.snap.View)-1, 0)
		}
		return m, nil

	case sessionMsg:
		m.session = model.Session(msg)
		return m, nil

	case noteMsg:
		m.status = service.Notification(msg)
		return m, nil

	case errMsg:
		m.status = service.Notification{Level: service.LevelError, Message: msg.prefix + ": " + errs.UserMessage(msg.err)}
		return m, nil

	case detailMsg:
		d := model.Document(msg)
		m.detail = &d
		return m, nil

	case savedMsg:
		m.status = service.Notification{Level: service.LevelInfo, Message: "Saved " + string(msg)}
		return m, nil

	case uploadMsg:
		ev := service.UploadEvent(msg)
		switch {
		case ev.Kind == service.EventFinished:
		case !ev.Task.Visible && ev.Task.State == model.UploadDone:
			delete(m.tasks, ev.Index)
		default:
			m.tasks[ev.Index] = ev.Task
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case keyIs(msg, k.Quit):
		return m, tea.Quit
	case keyIs(msg, k.Close):
		if m.detail != nil {
			m.detail = nil
			return m, nil
		}
		return m, tea.Quit
	case keyIs(msg, k.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case keyIs(msg, k.Down):
		if m.cursor < len(m.snap.View)-1 {
			m.cursor++
		}
		return m, nil
	case keyIs(msg, k.Reload):
		return m, m.reload()
	case keyIs(msg, k.CycleDate):
		m.filter.Range = cycleRange(m.filter.Range)
		return m, m.applyFilter()
	case keyIs(msg, k.CycleCategory):
		m.filter.Category = cycle(m.snap.Categories, m.filter.Category)
		return m, m.applyFilter()
	case keyIs(msg, k.CycleAuthor):
		m.filter.Author = cycle(m.snap.Authors, m.filter.Author)
		return m, m.applyFilter()
	case keyIs(msg, k.Download):
		return m, m.download()
	case keyIs(msg, k.Open):
		if v := m.input.Value(); strings.HasPrefix(v, uploadPrefix) {
			m.input.SetValue("")
			return m, m.upload(strings.Fields(strings.TrimPrefix(v, uploadPrefix)))
		}
		return m, m.open()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if after == before || strings.HasPrefix(after, ":") {
		return m, cmd
	}
	// Input only arms the debounce timer, so it is safe to call from Update.
	m.deps.Searcher.Input(after)
	return m, cmd
}

func (m *Model) applyFilter() tea.Cmd {
	f := m.filter
	m.input.SetValue("")
	m.cursor = 0
	m.deps.Searcher.Reset()
	return func() tea.Msg {
		return docsMsg(m.deps.Docs.ShowFiltered(f))
	}
}

func (m *Model) selected() (model.Document, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.View) {
		return model.Document{}, false
	}
	return m.snap.View[m.cursor], true
}

func (m *Model) open() tea.Cmd {
	d, ok := m.selected()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		full, err := m.deps.Docs.Get(m.ctx, d.ID)
		if err != nil {
			return errMsg{prefix: "open", err: err}
		}
		return detailMsg(full)
	}
}

func (m *Model) download() tea.Cmd {
	d, ok := m.selected()
	if !ok {
		return nil
	}
	dir := m.deps.DownloadDir
	return func() tea.Msg {
		path, err := m.deps.Docs.Download(m.ctx, d.ID, dir)
		if err != nil {
			return errMsg{prefix: "download", err: err}
		}
		return savedMsg(path)
	}
}

func (m *Model) upload(paths []string) tea.Cmd {
	if len(paths) == 0 {
		return nil
	}
	m.tasks = map[int]model.UploadTask{}
	files := make([]service.UploadFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, localFile(p))
	}
	return func() tea.Msg {
		m.deps.Uploader.Upload(m.ctx, files)
		return nil
	}
}

func localFile(path string) service.UploadFile {
	f := service.UploadFile{
		Name:        path,
		ContentType: service.DetectType(path),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}
	if st, err := os.Stat(path); err == nil {
		f.Name = st.Name()
		f.Size = st.Size()
	}
	return f
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	who := "not logged in"
	if u := m.session.User; u != nil {
		who = fmt.Sprintf("%s (%s)", u.Username, u.Role)
	} else if m.session.Authenticated() {
		who = "logged in"
	}
	b.WriteString(titleStyle.Render("docdesk") + "  " + dimStyle.Render(who) + "\n\n")
	b.WriteString(m.input.View() + "\n\n")

	b.WriteString("Date:     " + render.Options(rangeValues(), rangeValue(m.filter.Range)) + "\n")
	b.WriteString("Category: " + render.Options(m.snap.Categories, m.filter.Category) + "\n")
	b.WriteString("Author:   " + render.Options(m.snap.Authors, m.filter.Author) + "\n\n")

	if m.snap.Query != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Results for %q", m.snap.Query)) + "\n")
	}
	b.WriteString(render.Table(render.Rows(m.snap.View)) + "\n")
	if d, ok := m.selected(); ok {
		b.WriteString(selectStyle.Render("> "+d.Filename) + "\n")
	}

	if m.detail != nil {
		b.WriteString("\n" + render.Detail(*m.detail))
	}

	if len(m.tasks) > 0 {
		b.WriteString("\nUploads:\n")
		barWidth := max(m.width/4, 10)
		for i := 0; i <= maxKey(m.tasks); i++ {
			if t, ok := m.tasks[i]; ok {
				b.WriteString("  " + render.Task(t, barWidth) + "\n")
			}
		}
	}

	if m.status.Message != "" {
		b.WriteString("\n" + statusStyle(m.status.Level).Render(m.status.Message) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(helpLine(m.keys)))
	return b.String()
}

func statusStyle(l service.Level) lipgloss.Style {
	switch l {
	case service.LevelError:
		return errorStyle
	case service.LevelWarn:
		return warnStyle
	}
	return lipgloss.NewStyle()
}

func helpLine(k KeyMap) string {
	parts := make([]string, 0, len(k.help()))
	for _, b := range k.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

func maxKey(m map[int]model.UploadTask) int {
	n := -1
	for k := range m {
		n = max(n, k)
	}
	return n
}
