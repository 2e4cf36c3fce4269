package chatserver

import (
	"context"
	"errors"

	"art-chat/internal/message"
)

var (
	// ErrNotFound reports a missing user or message.
	ErrNotFound = errors.New("chatserver: not found")
	// ErrExists reports a username collision on registration.
	ErrExists = errors.New("chatserver: username exists")
)

// User is an account row. PasswordHash never leaves the store layer.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Avatar       string `json:"avatar,omitempty"`
	PasswordHash string `json:"-"`
}

// Store persists accounts and direct messages. Two implementations exist:
// Postgres when DATABASE_URL is configured, BoltDB otherwise.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash, avatar string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)

	SaveMessage(ctx context.Context, senderID, receiverID int64, content string) (message.Message, error)
	History(ctx context.Context, userA, userB int64) ([]message.Message, error)
	// MarkRead flips the read flag and returns the updated message, but
	// only when readerID is the message's receiver. Any other caller gets
	// ErrNotFound.
	MarkRead(ctx context.Context, messageID, readerID int64) (message.Message, error)

	Close() error
}
