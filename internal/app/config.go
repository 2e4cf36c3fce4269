package app

import (
	"flag"
	"strings"
)

// Config holds client runtime settings derived from CLI flags.
type Config struct {
	ServerURL string
	Username  string
	Password  string
	Register  bool
	PeerID    int64
	NoColor   bool
	UseTUI    bool
	UseCLI    bool
}

// LoadConfig parses CLI flags and returns a populated Config.
func LoadConfig() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ServerURL, "server", "http://127.0.0.1:8089", "messaging server base url")
	flag.StringVar(&cfg.Username, "username", "", "account username")
	flag.StringVar(&cfg.Password, "password", "", "account password")
	flag.BoolVar(&cfg.Register, "register", false, "create the account before logging in")
	flag.Int64Var(&cfg.PeerID, "peer", 0, "user id to open a conversation with on startup")
	flag.BoolVar(&cfg.NoColor, "no-color", false, "disable ANSI colors in CLI output")
	flag.BoolVar(&cfg.UseTUI, "tui", false, "enable terminal UI mode")

	flag.Parse()

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	cfg.UseCLI = !cfg.UseTUI
	return cfg
}

// ChannelURL derives the websocket endpoint from the REST base url.
func (cfg *Config) ChannelURL() string {
	url := cfg.ServerURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/channel"
}
