package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"art-chat/internal/conversation"
	"art-chat/internal/message"
)

// TUIDisplay renders the conversation using tview. Unlike the CLI sink it
// redraws the whole timeline on every snapshot, so inserts and read-state
// flips always land in the right place.
type TUIDisplay struct {
	localID  int64
	app      *tview.Application
	timeline *tview.TextView
	status   *tview.TextView
	input    *tview.InputField
	send     func(string)
	once     sync.Once

	mu     sync.Mutex
	system []string
}

func NewTUIDisplay(localID int64, send func(string)) *TUIDisplay {
	timeline := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(false).
		SetScrollable(true)
	timeline.SetBorder(true).SetTitle("Conversation")

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetBorder(true).SetTitle("Status")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldTextColor(tcell.ColorWhite)

	td := &TUIDisplay{
		localID:  localID,
		app:      tview.NewApplication(),
		timeline: timeline,
		status:   status,
		input:    input,
		send:     send,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := strings.TrimSpace(input.GetText())
			if text != "" {
				go td.send(text)
			}
			input.SetText("")
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(timeline, 0, 5, false).
		AddItem(status, 4, 1, false).
		AddItem(input, 3, 1, true)

	td.app.SetRoot(layout, true).EnableMouse(true)
	return td
}

func (t *TUIDisplay) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.once.Do(func() {
			t.app.Stop()
		})
	}()
	return t.app.Run()
}

func (t *TUIDisplay) RenderConversation(view conversation.View) {
	var b strings.Builder
	for _, item := range conversation.Timeline(view.Messages) {
		if item.Divider != "" {
			fmt.Fprintf(&b, "[gray]        ── %s ──[-]\n", item.Divider)
			continue
		}
		b.WriteString(t.formatRow(item.Msg))
	}
	statusText := t.statusText(view)
	t.app.QueueUpdateDraw(func() {
		t.timeline.SetText(b.String())
		t.timeline.ScrollToEnd()
		t.status.SetText(statusText)
	})
}

func (t *TUIDisplay) formatRow(m message.Message) string {
	ts := m.CreatedAt.In(message.Zone).Format("15:04")
	if m.SenderID == t.localID {
		return fmt.Sprintf("[yellow][%s] you[-]: %s [gray]%s[-]\n", ts, m.Content, readTicks(bool(m.IsRead)))
	}
	return fmt.Sprintf("[fuchsia][%s] them[-]: %s\n", ts, m.Content)
}

func (t *TUIDisplay) statusText(view conversation.View) string {
	var parts []string
	if view.PeerID == 0 {
		parts = append(parts, "[gray]no active peer[-]")
	} else {
		parts = append(parts, fmt.Sprintf("peer [white]%d[-]", view.PeerID))
	}
	switch {
	case view.Loading:
		parts = append(parts, "[yellow]loading history[-]")
	case view.Connected:
		parts = append(parts, "[green]connected[-]")
	default:
		parts = append(parts, "[red]disconnected[-]")
	}
	if view.Err != nil {
		parts = append(parts, "[red]"+tview.Escape(view.Err.Error())+"[-]")
	}
	line := strings.Join(parts, "  |  ")

	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.system); n > 0 {
		line += "\n[green]" + tview.Escape(t.system[n-1]) + "[-]"
	}
	return line
}

func (t *TUIDisplay) ShowSystem(text string) {
	t.mu.Lock()
	t.system = append(t.system, text)
	if len(t.system) > 20 {
		t.system = t.system[len(t.system)-20:]
	}
	line := "[green]>>> " + tview.Escape(text) + "[-]\n"
	t.mu.Unlock()
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.timeline, line)
	})
}
