package ui

import (
	"fmt"
	"strings"

	"github.com/aeolun/chatsync/pkg/client"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	// Don't render until we have dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if top := m.modalStack.Top(); top != nil {
		return top.Render(m.width, m.height)
	}

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderSidebar(),
		TranscriptStyle.Render(m.transcript.View()),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		body,
		TypingStyle.Render(m.typing),
		m.input.View(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	left := HeaderStyle.Render("chatsync  " + m.active.String())
	right := StatusStyle.Render(m.self + "  " + connectionLabel(m.connection))
	spacer := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return left + spacer + right
}

// connectionLabel describes the connection for the header
func connectionLabel(u client.ConnectionStateUpdate) string {
	var label string
	switch u.State {
	case client.StateOpen:
		label = "● connected"
	case client.StateConnecting:
		label = "○ connecting..."
	case client.StateReconnecting:
		label = fmt.Sprintf("○ reconnecting (attempt %d)", u.Attempt+1)
	case client.StateRejectedTerminal:
		label = "✕ session rejected"
	case client.StateClosedClean:
		label = "○ disconnected"
	default:
		label = "○ idle"
	}
	open := u.State == client.StateOpen
	failed := u.State == client.StateRejectedTerminal
	return stateStyle(open, failed).Render(label)
}

func (m Model) renderSidebar() string {
	lines := []string{m.formatTarget(client.General, false)}
	for _, c := range m.contacts {
		lines = append(lines, m.formatTarget(client.Private(c.ID), c.HasUnread))
	}
	return SidebarStyle.
		Width(sidebarWidth).
		Height(m.transcript.Height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) formatTarget(target client.ChatTarget, unread bool) string {
	prefix := "@"
	if target.IsGeneral() {
		prefix = "#"
	}
	label := truncateString(prefix+target.String(), sidebarWidth-4)
	switch {
	case target == m.active:
		return ActiveTargetStyle.Render("▸ " + label)
	case unread:
		return UnreadStyle.Render("• " + label)
	default:
		return "  " + label
	}
}

func (m Model) renderFooter() string {
	return FooterStyle.Render("[enter] send  [tab] next chat  [ctrl+n] find user  [ctrl+f] file  [?] help")
}

// buildTranscript renders the transcript lines in arrival order
func (m Model) buildTranscript() string {
	if len(m.lines) == 0 {
		return MutedTextStyle.Render("(no messages yet)")
	}
	rendered := make([]string, 0, len(m.lines))
	for _, line := range m.lines {
		if line.notice != "" {
			rendered = append(rendered, NoticeStyle.Render("* "+line.notice))
			continue
		}
		rendered = append(rendered, m.formatEntry(line.entry))
	}
	return strings.Join(rendered, "\n")
}

// formatEntry formats a single entry as: [time] sender content
func (m Model) formatEntry(e client.TranscriptEntry) string {
	prefix := ""
	switch {
	case !e.Timestamp.IsZero():
		prefix = MutedTextStyle.Render("["+e.Timestamp.Format("15:04")+"]") + " "
	case e.RawTimestamp != "":
		prefix = MutedTextStyle.Render("["+e.RawTimestamp+"]") + " "
	}

	authorStyle := MessageAuthorStyle
	if e.Sender == m.self {
		authorStyle = MessageOwnAuthorStyle
	}
	prefix += authorStyle.Render(e.Sender) + " "

	if e.IsFile() {
		return prefix + "sent " + FileStyle.Render(e.Filename) + MutedTextStyle.Render(" ("+e.Path+")")
	}

	prefixWidth := lipgloss.Width(prefix)
	wrapped := wrapText(e.Content, max(10, m.transcript.Width-prefixWidth))
	indent := strings.Repeat(" ", prefixWidth)
	return prefix + strings.Join(wrapped, "\n"+indent)
}

// wrapText wraps text to fit within the specified width
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	currentLine := ""
	for _, word := range words {
		// overlong words overflow on their own line
		if lipgloss.Width(word) > width {
			if currentLine != "" {
				lines = append(lines, currentLine)
				currentLine = ""
			}
			lines = append(lines, word)
			continue
		}

		testLine := currentLine
		if testLine != "" {
			testLine += " "
		}
		testLine += word

		if lipgloss.Width(testLine) > width {
			if currentLine != "" {
				lines = append(lines, currentLine)
			}
			currentLine = word
		} else {
			currentLine = testLine
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}

// truncateString shortens s to maxLen runes, marking the cut with an ellipsis
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
