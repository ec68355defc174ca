package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type field struct {
	label       string
	placeholder string
	secret      bool
	limit       int
}

// fieldSet is a vertical stack of text inputs with one focused at a time.
type fieldSet struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newFieldSet(fields ...field) fieldSet {
	fs := fieldSet{}
	for _, f := range fields {
		in := textinput.New()
		in.Placeholder = f.placeholder
		if f.limit > 0 {
			in.CharLimit = f.limit
		}
		if f.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		fs.labels = append(fs.labels, f.label)
		fs.inputs = append(fs.inputs, in)
	}
	if len(fs.inputs) > 0 {
		fs.inputs[0].Focus()
	}
	return fs
}

func (fs *fieldSet) focusOn(i int) {
	fs.inputs[fs.focus].Blur()
	fs.focus = (i + len(fs.inputs)) % len(fs.inputs)
	fs.inputs[fs.focus].Focus()
}

func (fs *fieldSet) next() { fs.focusOn(fs.focus + 1) }
func (fs *fieldSet) prev() { fs.focusOn(fs.focus - 1) }

func (fs fieldSet) onLast() bool { return fs.focus == len(fs.inputs)-1 }

func (fs fieldSet) value(i int) string { return fs.inputs[i].Value() }

func (fs *fieldSet) set(i int, v string) { fs.inputs[i].SetValue(v) }

// update routes a key to the focused input.
func (fs *fieldSet) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	fs.inputs[fs.focus], cmd = fs.inputs[fs.focus].Update(msg)
	return cmd
}

func (fs fieldSet) view() string {
	var b strings.Builder
	for i, in := range fs.inputs {
		b.WriteString(labelStyle.Render(fs.labels[i]) + in.View() + "\n")
	}
	return b.String()
}
