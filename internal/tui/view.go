package tui

import (
	"fmt"
	"strings"

	"homeservices/chatcore/internal/chat"
	"homeservices/chatcore/internal/models"
)

func (m Model) View() string {
	var b strings.Builder
	if m.screen == contactsScreen {
		b.WriteString(m.renderContacts())
	} else {
		b.WriteString(m.renderRoomHeader())
		b.WriteString("\n")
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderContacts() string {
	var b strings.Builder
	b.WriteString(m.styles.header.Render("Contacts"))
	b.WriteString("\n\n")

	contacts := m.contacts.Snapshot()
	if len(contacts) == 0 {
		b.WriteString(m.styles.dim.Render("  no contacts yet"))
		b.WriteString("\n")
		return b.String()
	}

	now := m.now()
	for i, c := range contacts {
		cursor := "  "
		name := c.DisplayName
		if name == "" {
			name = c.ID
		}
		if i == m.cursor {
			cursor = "> "
			name = m.styles.selected.Render(name)
		}
		label := chat.ActivityLabel(c.IsOnline, c.LastSeenAt, now, m.localizer)
		if c.IsOnline {
			label = m.styles.online.Render(label)
		} else {
			label = m.styles.dim.Render(label)
		}
		line := fmt.Sprintf("%s%s  %s", cursor, name, label)
		if c.UnreadCount > 0 {
			line += " " + m.styles.unread.Render(fmt.Sprint(c.UnreadCount))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRoomHeader() string {
	peerID := m.session.PeerID()
	title := peerID
	label := ""
	if c, ok := m.contacts.Get(peerID); ok {
		if c.DisplayName != "" {
			title = c.DisplayName
		}
		label = chat.ActivityLabel(c.IsOnline, c.LastSeenAt, m.now(), m.localizer)
	}
	return m.styles.header.Render(title) + m.styles.dim.Render(label)
}

func (m Model) renderStatus() string {
	if m.busy {
		return m.styles.status.Render(m.spinner.View() + " opening conversation")
	}
	if m.status != "" {
		if m.failed {
			return m.styles.errStyle.Render(m.status)
		}
		return m.styles.status.Render(m.status)
	}
	if m.screen == contactsScreen {
		return m.styles.status.Render("enter: open  q: quit")
	}
	return m.styles.status.Render("enter: send  esc: back  pgup/pgdn: scroll")
}

// renderGroups lays out the projection: one date line per group, then its messages.
func (m Model) renderGroups(groups []models.DateGroup) string {
	if len(groups) == 0 {
		return m.styles.dim.Render("No messages yet. Say hello!")
	}
	var b strings.Builder
	for _, g := range groups {
		b.WriteString(m.styles.date.Render("· " + g.Label + " ·"))
		b.WriteString("\n")
		for _, msg := range g.Messages {
			b.WriteString(m.renderMessage(msg))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderMessage(msg models.Message) string {
	mine := msg.SenderID == m.self.UserID
	who := m.styles.peer.Render("them")
	if mine {
		who = m.styles.self.Render("you")
	}

	stamp := m.styles.dim.Render(msg.CreatedAt.In(m.now().Location()).Format("15:04"))
	line := fmt.Sprintf("%s %s: %s", stamp, who, m.renderContent(msg.Content))
	for _, img := range msg.Images {
		line += "\n      " + m.styles.dim.Render("[image] "+img)
	}

	switch {
	case !mine:
	case msg.IsTemp():
		line += " " + m.styles.dim.Render("…")
	case msg.SeenByPeer():
		line += " " + m.styles.online.Render("✓✓")
	default:
		line += " " + m.styles.dim.Render("✓")
	}
	return line
}

func (m Model) renderContent(content string) string {
	if content == "" || m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(out)
}
