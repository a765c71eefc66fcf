// Package dashboard implements the interactive terminal UI using Bubble Tea.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Telestream/srtStreamer/internal/clienthttp"
	"github.com/Telestream/srtStreamer/internal/command"
	"github.com/Telestream/srtStreamer/internal/view"
)

// RefreshInterval is how often the screen is rebuilt from the backend.
const RefreshInterval = 250 * time.Millisecond

// Backend is what the dashboard drives.
type Backend interface {
	Login(ctx context.Context, username, password string) error
	Logout() error
	LoggedIn() bool
	View() view.View
	Files() []string
	RefreshFiles(ctx context.Context) ([]string, error)
	RequestRefresh()
	StartStream(ctx context.Context, in command.StartInput) (clienthttp.StartResult, error)
	StopStream(ctx context.Context, streamID string) error
	StopRandomSource(ctx context.Context, streamID string) (clienthttp.StopSourceResult, error)
	StartUpload(ctx context.Context, path string, expireMinutes *int) (string, error)
}

type screen int

const (
	screenLogin screen = iota
	screenStreams
	screenStart
	screenUpload
)

// start form fields, in focus order
const (
	fieldSource = iota
	fieldDuration
	fieldPrimary
	fieldSecondary
	fieldOffset
	fieldRedundant
	startFieldCount
)

type tickMsg struct{}
type stopMsg struct{}

type loginMsg struct{ err error }

type resultMsg struct {
	notice string
	err    error
	start  bool
}

type filesMsg struct {
	files []string
	err   error
}

// Model holds all UI state.
type Model struct {
	ctx     context.Context
	backend Backend
	header  string

	st       screen
	notice   string
	err      string
	frame    view.View
	cursor   int
	files    []string
	busy     bool
	expired  bool
	loggedIn bool

	username textinput.Model
	password textinput.Model

	start     []textinput.Model
	redundant bool
	focus     int

	uploadPath   textinput.Model
	uploadExpire textinput.Model
	uploadFocus  int
}

// New builds the model. The login screen is skipped when the backend already
// holds a session.
func New(ctx context.Context, backend Backend, header, username string) Model {
	m := Model{ctx: ctx, backend: backend, header: header}

	m.username = textinput.New()
	m.username.Prompt = "Username: "
	m.username.Placeholder = "username"
	m.username.SetValue(username)
	m.password = textinput.New()
	m.password.Prompt = "Password: "
	m.password.Placeholder = "password"
	m.password.EchoMode = textinput.EchoPassword

	m.start = make([]textinput.Model, fieldRedundant)
	for i, spec := range []struct{ prompt, placeholder string }{
		{"File: ", "empty for a random file"},
		{"Duration (s): ", "60"},
		{"Primary: ", "srt://host:port"},
		{"Secondary: ", "only for redundant streams"},
		{"Start offset (s): ", "0"},
	} {
		in := textinput.New()
		in.Prompt = spec.prompt
		in.Placeholder = spec.placeholder
		m.start[i] = in
	}

	m.uploadPath = textinput.New()
	m.uploadPath.Prompt = "Path: "
	m.uploadPath.Placeholder = "/path/to/media.mp4"
	m.uploadExpire = textinput.New()
	m.uploadExpire.Prompt = "Expire (min): "
	m.uploadExpire.Placeholder = "empty to keep"

	if backend.LoggedIn() {
		m.st = screenStreams
		m.loggedIn = true
		m.frame = backend.View()
		m.files = backend.Files()
	} else {
		m.focusLogin()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.st == screenStreams {
		return m.filesCmd()
	}
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopMsg:
		return m, tea.Quit
	case tickMsg:
		return m.tick(), nil
	case loginMsg:
		m.busy = false
		if msg.err != nil {
			m.password.SetValue("")
			if clienthttp.IsAuth(msg.err) {
				m.err = "Invalid credentials"
			} else {
				m.err = clienthttp.Detail(msg.err)
			}
			return m, nil
		}
		m.err = ""
		m.notice = ""
		m.expired = false
		m.loggedIn = true
		m.password.SetValue("")
		m.password.Blur()
		m.username.Blur()
		m.st = screenStreams
		m.frame = m.backend.View()
		m.cursor = 0
		return m, m.filesCmd()
	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = clienthttp.Detail(msg.err)
			return m, nil
		}
		m.err = ""
		m.notice = msg.notice
		m.frame = m.backend.View()
		if msg.start {
			m.resetStart()
			if m.st == screenStart {
				m.st = screenStreams
			}
		}
		return m, nil
	case filesMsg:
		if !m.loggedIn {
			return m, nil
		}
		if msg.err != nil {
			m.err = "files: " + clienthttp.Detail(msg.err)
			return m, nil
		}
		m.files = msg.files
		return m, nil
	}

	switch m.st {
	case screenLogin:
		return m.updateLogin(msg)
	case screenStart:
		return m.updateStart(msg)
	case screenUpload:
		return m.updateUpload(msg)
	default:
		return m.updateStreams(msg)
	}
}

// tick rebuilds the frame and notices a lapsed session.
func (m Model) tick() Model {
	if m.st != screenLogin && !m.backend.LoggedIn() {
		m.st = screenLogin
		m.loggedIn = false
		m.expired = true
		m.err = ""
		m.notice = "Session expired, please log in again."
		m.frame = view.View{Empty: true}
		m.focusLogin()
		return m
	}
	m.frame = m.backend.View()
	if m.cursor >= len(m.frame.Cards) {
		m.cursor = max(len(m.frame.Cards)-1, 0)
	}
	return m
}

func (m *Model) focusLogin() {
	if m.username.Value() == "" {
		m.username.Focus()
		m.password.Blur()
		return
	}
	m.username.Blur()
	m.password.Focus()
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab", "up", "down":
			if m.username.Focused() {
				m.username.Blur()
				m.password.Focus()
			} else {
				m.password.Blur()
				m.username.Focus()
			}
			return m, nil
		case "enter":
			if m.username.Focused() {
				m.username.Blur()
				m.password.Focus()
				return m, nil
			}
			if m.busy {
				return m, nil
			}
			user := strings.TrimSpace(m.username.Value())
			pass := m.password.Value()
			if user == "" || pass == "" {
				m.err = "username and password are required"
				return m, nil
			}
			m.busy = true
			m.err = ""
			return m, m.loginCmd(user, pass)
		}
	}
	var cmds [2]tea.Cmd
	m.username, cmds[0] = m.username.Update(msg)
	m.password, cmds[1] = m.password.Update(msg)
	return m, tea.Batch(cmds[:]...)
}

func (m Model) updateStreams(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch k.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.frame.Cards)-1 {
			m.cursor++
		}
	case "r":
		m.backend.RequestRefresh()
		m.notice = "refresh requested"
	case "f":
		return m, m.filesCmd()
	case "n":
		m.st = screenStart
		m.err = ""
		m.notice = ""
		m.focus = fieldSource
		m.focusStart()
		return m, tea.Batch(textinput.Blink, m.filesCmd())
	case "u":
		m.st = screenUpload
		m.err = ""
		m.notice = ""
		m.uploadFocus = 0
		m.uploadPath.Focus()
		m.uploadExpire.Blur()
		return m, textinput.Blink
	case "s":
		card, ok := m.selected()
		if !ok || !card.CanStop || m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.stopCmd(card.ID)
	case "x":
		card, ok := m.selected()
		if !ok || m.busy {
			return m, nil
		}
		if !card.CanStopSource {
			m.err = "stream " + card.ID + " is not redundant"
			return m, nil
		}
		m.busy = true
		return m, m.stopSourceCmd(card.ID)
	case "L":
		if err := m.backend.Logout(); err != nil {
			m.err = err.Error()
		} else {
			m.err = ""
		}
		m.st = screenLogin
		m.loggedIn = false
		m.notice = "Logged out."
		m.frame = view.View{Empty: true}
		m.cursor = 0
		m.files = nil
		m.focusLogin()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) selected() (view.Card, bool) {
	if m.cursor < 0 || m.cursor >= len(m.frame.Cards) {
		return view.Card{}, false
	}
	return m.frame.Cards[m.cursor], true
}

func (m *Model) focusStart() {
	for i := range m.start {
		if i == m.focus {
			m.start[i].Focus()
		} else {
			m.start[i].Blur()
		}
	}
}

// resetStart clears the form after a stream was started.
func (m *Model) resetStart() {
	for i := range m.start {
		m.start[i].SetValue("")
	}
	m.redundant = false
	m.focus = fieldSource
	m.focusStart()
}

// pickFile steps the File field through the catalog. The slot before the
// first file is the empty value, which asks for a random file.
func (m *Model) pickFile(step int) {
	n := len(m.files) + 1
	pos := slices.Index(m.files, strings.TrimSpace(m.start[fieldSource].Value())) + 1
	pos = (pos + step + n) % n
	if pos == 0 {
		m.start[fieldSource].SetValue("")
		return
	}
	m.start[fieldSource].SetValue(m.files[pos-1])
	m.start[fieldSource].CursorEnd()
}

func (m Model) updateStart(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.st = screenStreams
			m.err = ""
			return m, nil
		case "tab", "shift+tab", "up", "down":
			step := 1
			if k.String() == "shift+tab" || k.String() == "up" {
				step = -1
			}
			// up and down browse the catalog while File has focus
			if m.focus == fieldSource && len(m.files) > 0 && (k.String() == "up" || k.String() == "down") {
				m.pickFile(step)
				return m, nil
			}
			m.focus = (m.focus + step + startFieldCount) % startFieldCount
			m.focusStart()
			return m, nil
		case " ":
			if m.focus == fieldRedundant {
				m.redundant = !m.redundant
				return m, nil
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			in, err := m.startInput()
			if err != nil {
				m.err = clienthttp.Detail(err)
				return m, nil
			}
			m.busy = true
			m.err = ""
			return m, m.startCmd(in)
		}
	}
	if m.focus == fieldRedundant {
		return m, nil
	}
	var cmd tea.Cmd
	m.start[m.focus], cmd = m.start[m.focus].Update(msg)
	return m, cmd
}

// startInput reads the form. Empty offset means zero.
func (m Model) startInput() (command.StartInput, error) {
	in := command.StartInput{
		Source:    command.File(m.start[fieldSource].Value()),
		Primary:   strings.TrimSpace(m.start[fieldPrimary].Value()),
		Secondary: strings.TrimSpace(m.start[fieldSecondary].Value()),
		Redundant: m.redundant,
	}
	d, err := strconv.Atoi(strings.TrimSpace(m.start[fieldDuration].Value()))
	if err != nil {
		return in, &clienthttp.ValidationError{Field: "duration", Reason: "must be a whole number of seconds"}
	}
	in.Duration = d
	if raw := strings.TrimSpace(m.start[fieldOffset].Value()); raw != "" {
		off, err := strconv.Atoi(raw)
		if err != nil {
			return in, &clienthttp.ValidationError{Field: "start offset", Reason: "must be a whole number of seconds"}
		}
		in.StartOffset = off
	}
	return in, in.Validate()
}

func (m Model) updateUpload(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.st = screenStreams
			m.err = ""
			return m, nil
		case "tab", "shift+tab", "up", "down":
			m.uploadFocus = 1 - m.uploadFocus
			if m.uploadFocus == 0 {
				m.uploadPath.Focus()
				m.uploadExpire.Blur()
			} else {
				m.uploadPath.Blur()
				m.uploadExpire.Focus()
			}
			return m, nil
		case "enter":
			var expire *int
			if raw := strings.TrimSpace(m.uploadExpire.Value()); raw != "" {
				v, err := strconv.Atoi(raw)
				if err != nil {
					m.err = "expire time must be a whole number of minutes"
					return m, nil
				}
				expire = &v
			}
			id, err := m.backend.StartUpload(m.ctx, m.uploadPath.Value(), expire)
			if err != nil {
				m.err = clienthttp.Detail(err)
				return m, nil
			}
			m.err = ""
			m.notice = "upload " + id[:min(8, len(id))] + " started"
			m.uploadPath.SetValue("")
			m.uploadExpire.SetValue("")
			m.st = screenStreams
			return m, nil
		}
	}
	var cmd tea.Cmd
	if m.uploadFocus == 0 {
		m.uploadPath, cmd = m.uploadPath.Update(msg)
	} else {
		m.uploadExpire, cmd = m.uploadExpire.Update(msg)
	}
	return m, cmd
}

func (m Model) loginCmd(user, pass string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		return loginMsg{err: backend.Login(ctx, user, pass)}
	}
}

func (m Model) filesCmd() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		files, err := backend.RefreshFiles(ctx)
		return filesMsg{files: files, err: err}
	}
}

func (m Model) startCmd(in command.StartInput) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		res, err := backend.StartStream(ctx, in)
		if err != nil {
			return resultMsg{err: err, start: true}
		}
		return resultMsg{notice: fmt.Sprintf("started %s (%s)", res.StreamID, res.File), start: true}
	}
}

func (m Model) stopCmd(id string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.StopStream(ctx, id); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{notice: "stopped " + id}
	}
}

func (m Model) stopSourceCmd(id string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		res, err := backend.StopRandomSource(ctx, id)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{notice: fmt.Sprintf("stopped a source of %s, %d left", id, len(res.RemainingDestinations))}
	}
}

// Run shows the dashboard on w until ctx is done or the user quits.
func Run(ctx context.Context, w io.Writer, backend Backend, header, username string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(New(ctx, backend, header, username), tea.WithOutput(w), tea.WithAltScreen(), tea.WithContext(ctx))
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				program.Send(stopMsg{})
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()
	_, err := program.Run()
	if ctx.Err() != nil && err != nil {
		// quitting through ctx is a normal shutdown
		return nil
	}
	return err
}
