// Package tui is a terminal front end over the chat core: a contact list
// with live activity labels and a date-grouped room view with an input line.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"homeservices/chatcore/internal/chat"
	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/models"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// imageCommand prefixes an input line that sends a local image instead of text.
const imageCommand = "/image "

// labelRefresh re-renders activity labels, which change with time alone.
const labelRefresh = 15 * time.Second

type screen int

const (
	contactsScreen screen = iota
	roomScreen
)

// Model is the bubbletea model.
type Model struct {
	ctx       context.Context
	self      models.Identity
	contacts  *chat.ContactList
	session   *chat.RoomSession
	localizer *localization.Localizer
	renderer  *glamour.TermRenderer
	now       func() time.Time
	styles    styles

	screen   screen
	cursor   int
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	busy     bool
	status   string
	failed   bool
	width    int
	height   int
}

// Messages for tea updates
type (
	sessionEventMsg chat.SessionEvent
	roomOpenedMsg   struct{ err error }
	sentMsg         struct{ err error }
	refreshMsg      time.Time
)

// New builds the model. l may be nil for English labels.
func New(ctx context.Context, self models.Identity, contacts *chat.ContactList, session *chat.RoomSession, l *localization.Localizer) Model {
	if l == nil {
		l = localization.Default(localization.DefaultLang)
	}
	ti := textinput.New()
	ti.Placeholder = "Message, or /image <path>"
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		self:      self,
		contacts:  contacts,
		session:   session,
		localizer: l,
		now:       time.Now,
		styles:    defaultStyles(),
		input:     ti,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		width:     80,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForEvent(m.session.Events()),
		refreshTick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(msg.Width-8, 20))); err == nil {
			m.renderer = r
		}
		m.refreshRoom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.session.CloseRoom()
			return m, tea.Quit
		}
		if m.screen == contactsScreen {
			return m.updateContacts(msg)
		}
		return m.updateRoom(msg)

	case sessionEventMsg:
		if msg.Kind == chat.SessionError && msg.Err != nil && m.screen == roomScreen {
			m.setStatus(msg.Err.Error(), true)
		}
		m.refreshRoom()
		return m, waitForEvent(m.session.Events())

	case roomOpenedMsg:
		m.busy = false
		if errors.Is(msg.err, chat.ErrSuperseded) {
			return m, nil
		}
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.screen = roomScreen
		m.input.SetValue(m.session.Draft())
		cmds = append(cmds, m.input.Focus())
		if err := m.session.FetchError(); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("", false)
		}
		m.refreshRoom()
		return m, tea.Batch(cmds...)

	case sentMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			if draft := m.session.Draft(); draft != "" {
				m.input.SetValue(draft)
				m.input.CursorEnd()
			}
		}
		m.refreshRoom()
		return m, nil

	case refreshMsg:
		m.refreshRoom()
		return m, refreshTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateContacts(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := m.contacts.Len()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "q":
		return m, tea.Quit
	case "enter":
		if m.busy || n == 0 {
			return m, nil
		}
		contacts := m.contacts.Snapshot()
		if m.cursor >= len(contacts) {
			m.cursor = len(contacts) - 1
		}
		m.busy = true
		m.setStatus("", false)
		return m, m.openRoom(contacts[m.cursor].ID)
	}
	return m, nil
}

func (m Model) updateRoom(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.session.CloseRoom()
		m.screen = contactsScreen
		m.input.Blur()
		m.input.SetValue("")
		m.setStatus("", false)
		return m, nil

	case tea.KeyEnter:
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.setStatus("", false)
		if path, ok := strings.CutPrefix(text, imageCommand); ok {
			return m, m.sendImage(strings.TrimSpace(path))
		}
		return m, m.sendText(text)

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.session.SetDraft(m.input.Value())
	return m, cmd
}

func (m *Model) setStatus(s string, failed bool) {
	m.status = s
	m.failed = failed
}

// refreshRoom re-renders the room log into the viewport.
func (m *Model) refreshRoom() {
	if m.screen != roomScreen {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderGroups(m.session.Groups()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) openRoom(peerID string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return roomOpenedMsg{err: session.SelectContact(ctx, peerID)}
	}
}

func (m Model) sendText(text string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := session.SendText(ctx, text)
		return sentMsg{err: err}
	}
}

func (m Model) sendImage(path string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := session.SendImage(ctx, models.ImageAsset{URI: "file://" + path})
		return sentMsg{err: err}
	}
}

func waitForEvent(ch <-chan chat.SessionEvent) tea.Cmd {
	return func() tea.Msg {
		return sessionEventMsg(<-ch)
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(labelRefresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}
