package ui

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"art-chat/internal/conversation"
	"art-chat/internal/daybucket"
	"art-chat/internal/message"
)

const (
	ansiReset = "\x1b[0m"
	ansiTime  = "\x1b[36m"
	ansiSelf  = "\x1b[33m"
	ansiPeer  = "\x1b[35m"
	ansiSys   = "\x1b[32m"
	ansiDim   = "\x1b[90m"
)

// CLIDisplay renders the conversation to stdout. Snapshots are diffed
// against what was already printed, so only new rows and read-state
// transitions produce output.
type CLIDisplay struct {
	localID int64
	color   bool

	mu      sync.Mutex
	peerID  int64
	lastDay daybucket.Day
	haveDay bool
	printed map[int64]bool
	seen    map[int64]bool
	online  bool
	loading bool
	lastErr string
}

func NewCLIDisplay(localID int64, color bool) *CLIDisplay {
	return &CLIDisplay{
		localID: localID,
		color:   color,
		printed: make(map[int64]bool),
		seen:    make(map[int64]bool),
	}
}

func (c *CLIDisplay) RenderConversation(view conversation.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if view.PeerID != c.peerID {
		c.peerID = view.PeerID
		c.printed = make(map[int64]bool)
		c.seen = make(map[int64]bool)
		c.haveDay = false
		if view.PeerID == 0 {
			c.systemLine("no active conversation")
		} else {
			c.systemLine(fmt.Sprintf("conversation with user %d", view.PeerID))
		}
	}
	if view.Loading != c.loading {
		c.loading = view.Loading
		if view.Loading {
			c.systemLine("loading history...")
		}
	}
	if view.Connected != c.online {
		c.online = view.Connected
		if view.Connected {
			c.systemLine("connected")
		} else {
			c.systemLine("disconnected")
		}
	}
	if view.Err != nil && view.Err.Error() != c.lastErr {
		c.lastErr = view.Err.Error()
		c.systemLine("error: " + c.lastErr)
	}

	for _, m := range view.Messages {
		if c.printed[m.ID] {
			if m.SenderID == c.localID && bool(m.IsRead) && !c.seen[m.ID] {
				c.seen[m.ID] = true
				c.dimLine(fmt.Sprintf("%s message seen", readTicks(true)))
			}
			continue
		}
		day := daybucket.Of(m.CreatedAt.Time)
		if !c.haveDay || day != c.lastDay {
			c.haveDay = true
			c.lastDay = day
			c.dimLine(fmt.Sprintf("--- %s ---", daybucket.Label(m.CreatedAt.Time)))
		}
		c.printed[m.ID] = true
		if bool(m.IsRead) {
			c.seen[m.ID] = true
		}
		fmt.Println(c.formatLine(m))
	}
}

func (c *CLIDisplay) ShowSystem(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemLine(text)
}

func (c *CLIDisplay) systemLine(text string) {
	ts := time.Now().In(message.Zone).Format("15:04:05")
	if c.color {
		fmt.Printf("%s[%s]%s %s* %s%s\n", ansiTime, ts, ansiReset, ansiSys, text, ansiReset)
		return
	}
	fmt.Printf("[%s] * %s\n", ts, text)
}

func (c *CLIDisplay) dimLine(text string) {
	if c.color {
		fmt.Printf("%s%s%s\n", ansiDim, text, ansiReset)
		return
	}
	fmt.Println(text)
}

func (c *CLIDisplay) formatLine(m message.Message) string {
	ts := m.CreatedAt.In(message.Zone).Format("15:04")
	who := "them"
	nameColor := ansiPeer
	ticks := ""
	if m.SenderID == c.localID {
		who = "you"
		nameColor = ansiSelf
		ticks = " " + readTicks(bool(m.IsRead))
	}
	if c.color {
		return fmt.Sprintf("%s[%s]%s %s%s%s: %s%s", ansiTime, ts, ansiReset, nameColor, who, ansiReset, m.Content, ticks)
	}
	return fmt.Sprintf("[%s] %s: %s%s", ts, who, m.Content, ticks)
}

func readTicks(read bool) string {
	if read {
		return "✓✓"
	}
	return "✓"
}

// ShouldUseColor determines if ANSI coloring should be enabled for CLI output.
func ShouldUseColor(disable bool) bool {
	if disable {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if runtime.GOOS == "windows" {
		if os.Getenv("WT_SESSION") != "" || os.Getenv("ANSICON") != "" || strings.EqualFold(os.Getenv("ConEmuANSI"), "ON") {
			return true
		}
		return false
	}
	return true
}
