package views

import (
	"fmt"

	"github.com/matheus3301/peerchat/internal/tui/model"
	"github.com/rivo/tview"
)

// PeerList is the contact table with unseen badges.
type PeerList struct {
	*tview.Table
	peers []model.PeerRow
}

// NewPeerList creates a new peer list table.
func NewPeerList() *PeerList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Contacts ")
	return &PeerList{Table: table}
}

// Update refreshes the list, keeping the cursor on the same peer when it is
// still present.
func (pl *PeerList) Update(peers []model.PeerRow) {
	current := pl.SelectedPeer()
	pl.peers = peers
	pl.Clear()

	cursor := 0
	for i, p := range peers {
		name := sanitizeForTerminal(p.Name)
		if p.Selected {
			name = "> " + name
		} else {
			name = "  " + name
		}
		badge := ""
		if p.Unseen > 0 {
			badge = fmt.Sprintf("[yellow::b]%d[-:-:-]", p.Unseen)
		}
		pl.SetCell(i, 0, tview.NewTableCell(name).SetMaxWidth(28).SetExpansion(1))
		pl.SetCell(i, 1, tview.NewTableCell(badge).SetAlign(tview.AlignRight))
		if p.ID == current {
			cursor = i
		}
	}
	if len(peers) > 0 {
		pl.Select(cursor, 0)
	}
}

// SelectedPeer returns the id under the cursor.
func (pl *PeerList) SelectedPeer() string {
	row, _ := pl.GetSelection()
	if row >= 0 && row < len(pl.peers) {
		return pl.peers[row].ID
	}
	return ""
}
