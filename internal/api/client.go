// Package api is the REST client for the platform backend: session
// bootstrap, conversation history, and mini profiles. All requests share
// one cookie jar so the session credential set at login also authenticates
// the event channel handshake.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"art-chat/internal/message"
)

// Profile is the mini-profile payload used for conversation headers.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Client talks to the backend with a cookie-credentialed transport.
type Client struct {
	base string
	http *http.Client
	jar  http.CookieJar
}

func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Jar: jar, Timeout: 15 * time.Second},
		jar:  jar,
	}, nil
}

// Jar exposes the session cookies so the channel dialer can reuse them.
func (c *Client) Jar() http.CookieJar { return c.jar }

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.call(ctx, http.MethodPost, "/auth/register",
		map[string]string{"username": username, "password": password}, nil)
}

// Login authenticates and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, username, password string) (Profile, error) {
	var profile Profile
	err := c.call(ctx, http.MethodPost, "/auth/login",
		map[string]string{"username": username, "password": password}, &profile)
	return profile, err
}

// History fetches the full backlog of the conversation with peerID.
func (c *Client) History(ctx context.Context, peerID int64) ([]message.Message, error) {
	var msgs []message.Message
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/chats/history/%d", peerID), nil, &msgs)
	return msgs, err
}

// MiniProfile fetches the lightweight profile for a user id.
func (c *Client) MiniProfile(ctx context.Context, userID int64) (Profile, error) {
	var profile Profile
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/profiles/mini-profile/%d", userID), nil, &profile)
	return profile, err
}

func (c *Client) call(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		reason := env.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, reason)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}
