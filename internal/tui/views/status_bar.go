package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// StatusBar shows the profile, conversation state, live-update link and
// the current flash.
type StatusBar struct {
	*tview.TextView
	profile   string
	state     string
	connected bool
	flash     string
	hints     string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetHints sets the key hints shown when there is no flash.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = strings.Join(hints, " ")
	sb.render()
}

// Set updates everything but the profile in one render.
func (sb *StatusBar) Set(state string, connected bool, flash string) {
	sb.state = state
	sb.connected = connected
	sb.flash = flash
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	link := "[red]offline[-]"
	if sb.connected {
		link = "[green]live[-]"
	}
	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s", sb.profile, sb.state, link, clock)
	switch {
	case sb.flash != "":
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	case sb.hints != "":
		line += fmt.Sprintf(" | [::d]%s[-:-:-]", sb.hints)
	}

	_, _ = fmt.Fprint(sb, line)
}
