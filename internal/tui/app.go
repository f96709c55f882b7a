package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/tui/keys"
	"github.com/matheus3301/peerchat/internal/tui/model"
	"github.com/matheus3301/peerchat/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	layout    *tview.Flex
	vm        *model.ViewModel
	bus       *bus.Bus
	logger    *zap.Logger
	registry  *keys.Registry
	statusBar *views.StatusBar
	peerList  *views.PeerList
	msgView   *views.MessageView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, b *bus.Bus, profileName string, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		vm:        vm,
		bus:       b,
		logger:    logger,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		peerList:  views.NewPeerList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.statusBar.SetHints(a.registry.Hints("peers"))
	a.setupCallbacks()
	a.setupLayout()
	a.render()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("reload", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:reload", Visible: true,
		Handler: func() { go a.reload() },
	})
	a.registry.AddView("peers", "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView("peers", "close", &keys.Action{
		Key:         tcell.KeyEscape,
		Description: "esc:close chat", Visible: true,
		Handler: func() { a.open("") },
	})
}

func (a *App) setupCallbacks() {
	a.peerList.SetSelectedFunc(func(row, col int) {
		if id := a.peerList.SelectedPeer(); id != "" {
			a.open(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		action, err := ParseInput(text)
		if err != nil {
			a.vm.Flash.Set(err.Error(), 5*time.Second)
			a.render()
			return
		}
		switch {
		case action.Reload:
			go a.reload()
		case action.Close:
			a.open("")
			a.app.SetFocus(a.peerList)
		case action.Send != nil:
			payload := *action.Send
			go func() {
				ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
				defer cancel()
				if err := a.vm.Send(ctx, payload); err != nil {
					a.logger.Debug("send failed", zap.Error(err))
				}
				a.app.QueueUpdateDraw(a.render)
			}()
		}
	})
}

func (a *App) setupLayout() {
	chat := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.layout = tview.NewFlex().
		AddItem(a.peerList, 32, 0, true).
		AddItem(chat, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.layout, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()

		// Let the composer handle all keys except the way out.
		if _, ok := focused.(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyTab {
				a.app.SetFocus(a.peerList)
				return nil
			}
			return event
		}

		if event.Key() == tcell.KeyTab {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}
		if a.registry.HandleEvent("peers", event) {
			return nil
		}
		return event
	})
}

// open selects peerID in the background; the result arrives as bus events.
func (a *App) open(peerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if err := a.vm.Open(ctx, peerID); err != nil {
			a.logger.Debug("select failed", zap.String("peer", peerID), zap.Error(err))
		}
	}()
	if peerID != "" {
		a.app.SetFocus(a.composer.InputField)
	}
}

func (a *App) reload() {
	ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
	defer cancel()
	if err := a.vm.Reload(ctx); err != nil {
		a.logger.Debug("reload failed", zap.Error(err))
	}
}

// render redraws every widget from the view model. Call it on the UI
// goroutine only.
func (a *App) render() {
	a.peerList.Update(a.vm.Peers())
	a.msgView.Update(a.vm.Title(), a.vm.State(), a.vm.Conversation())
	a.statusBar.Set(a.vm.State().String(), a.vm.Connected(), a.vm.Flash.Get())
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	events, unsub := a.bus.Subscribe("", 256)
	defer unsub()

	go a.watch(events)
	defer a.cancel()

	return a.app.Run()
}

func (a *App) watch(events <-chan bus.Event) {
	// Refresh periodically so the clock and flash expiry stay current.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if a.vm.Apply(evt) {
				a.app.QueueUpdateDraw(a.render)
			}
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
