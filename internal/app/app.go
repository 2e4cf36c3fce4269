package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"art-chat/internal/api"
	"art-chat/internal/channel"
	"art-chat/internal/conversation"
	"art-chat/internal/ui"
)

// App encapsulates the chat client runtime components.
type App struct {
	Cfg *Config

	ctx    context.Context
	cancel context.CancelFunc

	API        *api.Client
	Profile    api.Profile
	Controller *conversation.Controller

	mu   sync.Mutex
	sink ui.Sink
	tui  *ui.TUIDisplay
}

// NewApp authenticates against the server and wires the conversation
// controller according to the provided config.
func NewApp(cfg *Config) (*App, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("app: username and password required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := api.NewClient(cfg.ServerURL)
	if err != nil {
		cancel()
		return nil, err
	}
	if cfg.Register {
		if err := client.Register(ctx, cfg.Username, cfg.Password); err != nil {
			cancel()
			return nil, fmt.Errorf("register: %w", err)
		}
	}
	profile, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("login: %w", err)
	}
	log.Printf("logged in as %s (user %d)", profile.Username, profile.ID)

	a := &App{
		Cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		API:     client,
		Profile: profile,
	}

	open := func(localID, peerID int64, cb channel.Callbacks) (conversation.Conn, error) {
		ch, err := channel.Open(channel.Options{
			URL:       cfg.ChannelURL(),
			LocalID:   localID,
			PeerID:    peerID,
			Jar:       client.Jar(),
			Callbacks: cb,
		})
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	a.Controller = conversation.New(profile.ID, client, open, a.render)

	return a, nil
}

// Start launches the user interfaces and opens the initial conversation.
func (a *App) Start() {
	var sinks []ui.Sink
	if a.Cfg.UseCLI {
		sinks = append(sinks, ui.NewCLIDisplay(a.Profile.ID, ui.ShouldUseColor(a.Cfg.NoColor)))
	}
	if a.Cfg.UseTUI {
		tui := ui.NewTUIDisplay(a.Profile.ID, func(line string) { a.processLine(line) })
		a.tui = tui
		go func() {
			if err := tui.Run(a.ctx); err != nil {
				log.Printf("tui error: %v", err)
			}
			a.cancel()
		}()
		sinks = append(sinks, tui)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, ui.NewCLIDisplay(a.Profile.ID, ui.ShouldUseColor(a.Cfg.NoColor)))
	}
	a.mu.Lock()
	a.sink = ui.NewMultiSink(sinks...)
	a.mu.Unlock()

	if a.Cfg.PeerID != 0 {
		a.Controller.SetPeer(a.ctx, a.Cfg.PeerID)
	} else {
		a.system("no peer selected, use /peer <id>")
	}

	if a.Cfg.UseCLI {
		go a.readCLIInput()
	}
}

func (a *App) render() {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink == nil {
		return
	}
	sink.RenderConversation(a.Controller.Snapshot())
}

func (a *App) system(text string) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink == nil {
		log.Print(text)
		return
	}
	sink.ShowSystem(text)
}

func (a *App) readCLIInput() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-a.ctx.Done():
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a.processLine(line)
	}
}

func (a *App) processLine(line string) {
	if !strings.HasPrefix(line, "/") {
		if err := a.Controller.Send(line); err != nil {
			a.system("send failed: " + err.Error())
		}
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/peer":
		if len(fields) != 2 {
			a.system("usage: /peer <user id>")
			return
		}
		peerID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || peerID <= 0 {
			a.system("invalid user id: " + fields[1])
			return
		}
		a.Controller.SetPeer(a.ctx, peerID)
	case "/profile":
		userID := a.Controller.Peer()
		if len(fields) == 2 {
			if id, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				userID = id
			}
		}
		if userID == 0 {
			a.system("usage: /profile <user id>")
			return
		}
		profile, err := a.API.MiniProfile(a.ctx, userID)
		if err != nil {
			a.system("profile lookup failed: " + err.Error())
			return
		}
		a.system(fmt.Sprintf("user %d: %s", profile.ID, profile.Username))
	case "/status":
		view := a.Controller.Snapshot()
		state := "disconnected"
		if view.Connected {
			state = "connected"
		}
		a.system(fmt.Sprintf("peer=%d %s, %d messages", view.PeerID, state, len(view.Messages)))
	case "/close":
		a.Controller.ClearPeer()
	case "/quit", "/exit":
		a.cancel()
	default:
		a.system("commands: /peer /profile /status /close /quit")
	}
}

// Shutdown stops background routines and tears the channel down.
func (a *App) Shutdown() {
	a.cancel()
	a.Controller.Close()
}

// WaitForShutdown blocks until SIGINT/SIGTERM or /quit, then stops the app.
func WaitForShutdown(app *App) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-app.ctx.Done():
	}
	log.Println("shutting down...")
	app.Shutdown()
}
