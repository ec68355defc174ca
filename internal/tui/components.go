package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// confirmDialog is a yes/no prompt. "No" is selected initially.
type confirmDialog struct {
	title       string
	message     string
	yesSelected bool
}

func newConfirmDialog(title, message string) confirmDialog {
	return confirmDialog{title: title, message: message}
}

// update reports whether the user answered, and the answer.
func (d *confirmDialog) update(msg tea.KeyMsg) (answered, yes bool) {
	switch msg.String() {
	case "left", "h":
		d.yesSelected = true
	case "right", "l":
		d.yesSelected = false
	case "y":
		return true, true
	case "n", "esc":
		return true, false
	case "enter":
		return true, d.yesSelected
	}
	return false, false
}

func (d confirmDialog) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(d.title))
	b.WriteString("\n")
	b.WriteString(d.message)
	b.WriteString("\n\n")

	yes := inactiveButtonStyle.Render("Yes")
	no := inactiveButtonStyle.Render("No")
	if d.yesSelected {
		yes = activeButtonStyle.Render("Yes")
	} else {
		no = activeButtonStyle.Render("No")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, yes, "  ", no))
	b.WriteString(helpStyle.Render(formatKey("←/→", "choose") + " • " + formatKey("enter", "confirm") + " • " + formatKey("esc", "cancel")))

	return boxStyle.Render(b.String())
}
