package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/peerchat/internal/status"
	"github.com/matheus3301/peerchat/internal/tui/model"
	"github.com/rivo/tview"
)

// MessageView displays the open conversation.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// Update redraws the conversation titled name in the given view state.
func (mv *MessageView) Update(name string, view status.View, lines []model.Line) {
	mv.Clear()
	if name == "" {
		mv.SetTitle(" Messages ")
		_, _ = fmt.Fprint(mv, "[::d]Select a contact to start chatting[-:-:-]")
		return
	}
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))

	if view.State == status.Loading && len(lines) == 0 {
		_, _ = fmt.Fprint(mv, "[::d]Loading...[-:-:-]")
		return
	}
	for _, l := range lines {
		sender := "[::b]" + tview.Escape(sanitizeForTerminal(l.Sender)) + "[-:-:-]"
		if l.Mine {
			sender = "[green::b]You[-:-:-]"
		}
		_, _ = fmt.Fprintf(mv, "%s [::d]%s[-:-:-]\n", sender, formatTimestamp(l.At))
		if l.Image != "" {
			_, _ = fmt.Fprintf(mv, "[blue]%s[-]\n", tview.Escape(l.Image))
		}
		if l.Text != "" {
			_, _ = fmt.Fprintf(mv, "%s\n", tview.Escape(sanitizeForTerminal(l.Text)))
		}
		_, _ = fmt.Fprint(mv, "\n")
	}

	mv.ScrollToEnd()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
