package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/route"
	"github.com/felixgeelhaar/switchboard/internal/session"
)

// maxRedirects bounds one navigation. The default table settles in two.
const maxRedirects = 4

// Session is the part of the session manager the console drives.
type Session interface {
	State() session.State
	IsCurrent(gen uint64) bool
	Bootstrap(ctx context.Context) session.State
	Refresh(ctx context.Context) session.State
	Login(ctx context.Context, creds api.Credentials) (*session.User, error)
	Logout(ctx context.Context) error
}

// Fetcher reads business resources through the request pipeline.
type Fetcher interface {
	Get(ctx context.Context, endpoint string) (json.RawMessage, error)
}

// Deps wires the console to the session subsystem.
type Deps struct {
	Session    Session
	Authorizer *route.Authorizer
	Fetcher    Fetcher
	// Setup reports whether the backend still needs its first admin. Optional.
	Setup  func(ctx context.Context) (*api.SetupStatus, error)
	Logger *log.Logger
	// Start is the first requested path. Defaults to /.
	Start string
}

// Console messages

// SessionMsg carries a session transition into the program.
type SessionMsg struct {
	State session.State
}

type bootstrapDoneMsg struct{ state session.State }

type loginDoneMsg struct{ err error }

type logoutDoneMsg struct{ err error }

type setupStatusMsg struct {
	status *api.SetupStatus
	err    error
}

type fetchDoneMsg struct {
	seq      uint64
	gen      uint64
	endpoint string
	body     json.RawMessage
	err      error
}

// Console is the interactive operator workspace.
type Console struct {
	ctx    context.Context
	deps   Deps
	logger *log.Logger

	state    session.State
	path     string
	decision route.Decision
	returnTo string

	// Login form
	username   textinput.Model
	password   textinput.Model
	focus      int
	submitting bool
	formError  string
	notice     string

	// Workspace
	nav       []route.Route
	cursor    int
	content   viewport.Model
	loading   bool
	fetchErr  string
	fetchSeq  uint64
	gotoInput textinput.Model
	going     bool

	spinner  spinner.Model
	help     help.Model
	width    int
	height   int
	quitting bool
	styles   Styles
}

// NewConsole creates the console model. The session starts in whatever
// state the manager reports, normally checking.
func NewConsole(ctx context.Context, deps Deps) Console {
	if deps.Authorizer == nil {
		deps.Authorizer = route.NewAuthorizer(nil)
	}
	start := deps.Start
	if start == "" {
		start = "/"
	}

	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = ""
	username.CharLimit = 80

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	gotoInput := textinput.New()
	gotoInput.Prompt = "go to: "
	gotoInput.Placeholder = "/admin/campaigns"

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Console{
		ctx:       ctx,
		deps:      deps,
		logger:    log.OrDefault(deps.Logger),
		state:     deps.Session.State(),
		path:      route.Normalize(start),
		username:  username,
		password:  password,
		gotoInput: gotoInput,
		content:   viewport.New(80, 20),
		spinner:   sp,
		help:      help.New(),
		styles:    DefaultStyles(),
	}
	m.spinner.Style = m.styles.Status
	m.decision = m.deps.Authorizer.Authorize(m.state, m.path)
	return m
}

// Init starts the spinner and resolves the session.
func (m Console) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.bootstrap())
}

func (m Console) bootstrap() tea.Cmd {
	ctx, s := m.ctx, m.deps.Session
	return func() tea.Msg {
		return bootstrapDoneMsg{state: s.Bootstrap(ctx)}
	}
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.content.Width = max(msg.Width-m.sidebarWidth()-4, 20)
		m.content.Height = max(msg.Height-6, 5)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bootstrapDoneMsg:
		return m.applyState(msg.state)

	case SessionMsg:
		return m.applyState(msg.State)

	case loginDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.formError = errors.UserMessage(msg.err)
			m.password.SetValue("")
			return m, nil
		}
		m.formError = ""
		m.username.SetValue("")
		m.password.SetValue("")
		// The subscription may not have delivered the transition yet.
		return m.applyState(m.deps.Session.State())

	case logoutDoneMsg:
		m.returnTo = ""
		if msg.err != nil {
			m.formError = errors.UserMessage(msg.err)
		}
		next, cmd := m.applyState(m.deps.Session.State())
		nm := next.(Console)
		nm.returnTo = ""
		return nm, cmd

	case setupStatusMsg:
		if msg.err == nil && msg.status != nil && msg.status.SetupRequired {
			m.notice = "No administrator exists yet. Register one with switchboard auth register-admin."
		}
		return m, nil

	case fetchDoneMsg:
		if msg.seq != m.fetchSeq || !m.deps.Session.IsCurrent(msg.gen) {
			m.logger.Debug("discarding stale response", "endpoint", msg.endpoint)
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.fetchErr = errors.UserMessage(msg.err)
			m.content.SetContent("")
			return m, nil
		}
		m.fetchErr = ""
		m.content.SetContent(prettyJSON(msg.body))
		m.content.GotoTop()
		return m, nil
	}

	return m, nil
}

// applyState records a session snapshot and re-runs the guard for the
// current path when the session changed in a way the guard can see.
func (m Console) applyState(s session.State) (tea.Model, tea.Cmd) {
	if s.Generation < m.state.Generation {
		return m, nil
	}
	prev := m.state
	m.state = s
	if s.Status == session.StatusAuthenticated {
		m.nav = m.deps.Authorizer.Table().Nav(s.Role())
		if m.cursor >= len(m.nav) {
			m.cursor = 0
		}
	} else {
		m.nav = nil
		m.cursor = 0
	}
	if prev.Status == s.Status && prev.Role() == s.Role() && m.decision.Outcome != route.OutcomeLoading {
		return m, nil
	}
	if s.Status == session.StatusAnonymous && s.LastError != "" && m.formError == "" {
		m.formError = s.LastError
	}
	return m.navigate(m.path)
}

// navigate authorizes p and follows redirects until a view settles.
func (m Console) navigate(p string) (Console, tea.Cmd) {
	for hop := 0; hop < maxRedirects; hop++ {
		d := m.deps.Authorizer.Authorize(m.state, p)
		m.decision = d
		switch d.Outcome {
		case route.OutcomeLoading:
			m.path = d.Path
			return m, nil
		case route.OutcomeRedirectLogin:
			if d.From != "" {
				m.returnTo = d.From
			}
			p = d.Target
		case route.OutcomeRedirectHome:
			p = d.Target
			if m.returnTo != "" {
				p, m.returnTo = m.returnTo, ""
			}
		case route.OutcomeRedirectUnauthorized:
			m.fetchErr = ""
			p = d.Target
		case route.OutcomeRender:
			m.path = d.Path
			return m, m.enter(d)
		}
	}
	m.logger.Warn("navigation did not settle", "path", p)
	return m, nil
}

// enter prepares the view for a rendered route.
func (m *Console) enter(d route.Decision) tea.Cmd {
	m.fetchSeq++
	m.loading = false
	m.fetchErr = ""
	m.content.SetContent("")

	if d.Path == route.LoginPath {
		m.focus = 0
		m.password.Blur()
		cmds := []tea.Cmd{m.username.Focus()}
		if m.deps.Setup != nil {
			ctx, setup := m.ctx, m.deps.Setup
			cmds = append(cmds, func() tea.Msg {
				status, err := setup(ctx)
				return setupStatusMsg{status: status, err: err}
			})
		}
		return tea.Batch(cmds...)
	}

	best := -1
	for i, r := range m.nav {
		if route.IsActive(d.Path, r.Path, r.Exact) && (best < 0 || len(r.Path) > len(m.nav[best].Path)) {
			best = i
		}
	}
	if best >= 0 {
		m.cursor = best
	}

	if d.Route == nil || m.deps.Fetcher == nil {
		return nil
	}
	endpoint := d.Route.EndpointFor(d.Path)
	if endpoint == "" {
		return nil
	}
	m.loading = true
	return m.fetch(endpoint)
}

func (m Console) fetch(endpoint string) tea.Cmd {
	ctx, f := m.ctx, m.deps.Fetcher
	seq, gen := m.fetchSeq, m.state.Generation
	return func() tea.Msg {
		body, err := f.Get(ctx, endpoint)
		return fetchDoneMsg{seq: seq, gen: gen, endpoint: endpoint, body: body, err: err}
	}
}

func (m Console) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	switch {
	case m.decision.Outcome == route.OutcomeLoading:
		return m, nil
	case m.decision.Path == route.LoginPath:
		return m.handleLoginKey(msg)
	case m.going:
		return m.handleGotoKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.nav)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Open):
		if m.cursor < len(m.nav) {
			return m.navigate(m.nav[m.cursor].Path)
		}
	case key.Matches(msg, keys.Goto):
		m.going = true
		m.gotoInput.SetValue("")
		return m, m.gotoInput.Focus()
	case key.Matches(msg, keys.Refresh):
		return m.refresh()
	case key.Matches(msg, keys.Logout):
		ctx, s := m.ctx, m.deps.Session
		return m, func() tea.Msg { return logoutDoneMsg{err: s.Logout(ctx)} }
	default:
		var cmd tea.Cmd
		m.content, cmd = m.content.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh re-reads the profile, then the current view.
func (m Console) refresh() (tea.Model, tea.Cmd) {
	ctx, s := m.ctx, m.deps.Session
	next, cmd := m.navigate(m.path)
	return next, tea.Batch(cmd, func() tea.Msg {
		return SessionMsg{State: s.Refresh(ctx)}
	})
}

func (m Console) handleGotoKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.going = false
		m.gotoInput.Blur()
		return m, nil
	case msg.Type == tea.KeyEnter:
		m.going = false
		m.gotoInput.Blur()
		target := strings.TrimSpace(m.gotoInput.Value())
		if target == "" {
			return m, nil
		}
		return m.navigate(target)
	}
	var cmd tea.Cmd
	m.gotoInput, cmd = m.gotoInput.Update(msg)
	return m, cmd
}

func (m Console) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch msg.String() {
	case "tab", "down":
		return m, m.setFocus(1 - m.focus)
	case "shift+tab", "up":
		return m, m.setFocus(1 - m.focus)
	case "enter":
		if m.focus == 0 {
			return m, m.setFocus(1)
		}
		return m.submit()
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Console) setFocus(i int) tea.Cmd {
	m.focus = i
	if i == 0 {
		m.password.Blur()
		return m.username.Focus()
	}
	m.username.Blur()
	return m.password.Focus()
}

func (m Console) submit() (tea.Model, tea.Cmd) {
	creds := api.Credentials{
		Username: strings.TrimSpace(m.username.Value()),
		Password: m.password.Value(),
	}
	if err := creds.Validate(); err != nil {
		m.formError = errors.UserMessage(err)
		return m, nil
	}
	m.submitting = true
	m.formError = ""
	ctx, s := m.ctx, m.deps.Session
	return m, func() tea.Msg {
		_, err := s.Login(ctx, creds)
		return loginDoneMsg{err: err}
	}
}

// View renders the console (required by Bubble Tea)
func (m Console) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch {
	case m.decision.Outcome == route.OutcomeLoading:
		body = fmt.Sprintf("%s Checking session...", m.spinner.View())
	case m.decision.Path == route.LoginPath:
		body = m.renderLogin()
	default:
		body = m.renderWorkspace()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), "", body)
}

func (m Console) renderHeader() string {
	title := m.styles.Title.Render("switchboard")
	if !m.state.Authenticated() {
		return title
	}
	u := m.state.User
	who := m.styles.Subtitle.Render(fmt.Sprintf("%s · %s", u.DisplayName(), u.Role))
	return title + "  " + who
}

func (m Console) renderLogin() string {
	var b strings.Builder
	b.WriteString(m.styles.Status.Render("Sign in"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Label.Render("Username") + m.username.View() + "\n")
	b.WriteString(m.styles.Label.Render("Password") + m.password.View() + "\n")

	if m.submitting {
		b.WriteString("\n" + m.spinner.View() + " Signing in...")
	}
	if m.formError != "" {
		b.WriteString("\n" + m.styles.Error.Render(m.formError))
	}
	if m.notice != "" {
		b.WriteString("\n" + m.styles.Warning.Render(m.notice))
	}

	form := m.styles.Border.Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, form, m.help.View(loginKeys{keys}))
}

func (m Console) renderWorkspace() string {
	main := m.renderMain()
	if len(m.nav) > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.renderNav(), main)
	}
	footer := m.help.View(workspaceKeys{keys})
	if m.going {
		footer = m.gotoInput.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, footer)
}

func (m Console) renderNav() string {
	lines := make([]string, 0, len(m.nav))
	for i, r := range m.nav {
		style := m.styles.NavItem
		if route.IsActive(m.path, r.Path, r.Exact) {
			style = m.styles.NavActive
		}
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.NavCursor.Render("› ")
		}
		lines = append(lines, cursor+style.Render(r.Title))
	}
	return m.styles.Sidebar.Render(strings.Join(lines, "\n"))
}

func (m Console) renderMain() string {
	if m.path == route.UnauthorizedPath {
		return m.styles.Error.Render("Access denied") + "\n" +
			m.styles.Muted.Render("Your role cannot open that page.")
	}

	title := m.path
	if m.decision.Route != nil && m.decision.Route.Title != "" {
		title = m.decision.Route.Title
	}
	header := m.styles.Status.Render(title) + "  " + m.styles.Muted.Render(m.path)

	switch {
	case m.loading:
		return header + "\n\n" + m.spinner.View() + " Loading..."
	case m.fetchErr != "":
		return header + "\n\n" + m.styles.Error.Render(m.fetchErr)
	case m.decision.Route == nil || m.decision.Route.Endpoint == "":
		return header
	}
	return header + "\n\n" + m.content.View()
}

func (m Console) sidebarWidth() int {
	w := 0
	for _, r := range m.nav {
		w = max(w, lipgloss.Width(r.Title)+6)
	}
	return w
}

// prettyJSON indents a response body for display.
func prettyJSON(body json.RawMessage) string {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}

// Path returns the displayed path.
func (m Console) Path() string { return m.path }

// Decision returns the guard decision for the displayed path.
func (m Console) Decision() route.Decision { return m.decision }
