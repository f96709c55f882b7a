package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const historySize = 50

// Composer is the text input for messages and commands. Up and Down walk
// through previously submitted lines.
type Composer struct {
	*tview.InputField
	onSend  func(text string)
	history []string
	cursor  int
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0).
		SetPlaceholder("message, or :image <url> [caption]")

	c := &Composer{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.submit()
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyUp:
			c.recall(-1)
			return nil
		case tcell.KeyDown:
			c.recall(1)
			return nil
		}
		return ev
	})
	return c
}

// SetOnSend sets the callback for a submitted line.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

func (c *Composer) submit() {
	text := c.GetText()
	if strings.TrimSpace(text) == "" || c.onSend == nil {
		return
	}
	c.onSend(text)
	c.SetText("")

	if n := len(c.history); n == 0 || c.history[n-1] != text {
		c.history = append(c.history, text)
		if len(c.history) > historySize {
			c.history = c.history[1:]
		}
	}
	c.cursor = len(c.history)
}

func (c *Composer) recall(delta int) {
	next := c.cursor + delta
	if next < 0 || next > len(c.history) {
		return
	}
	c.cursor = next
	if next == len(c.history) {
		c.SetText("")
		return
	}
	c.SetText(c.history[next])
}
