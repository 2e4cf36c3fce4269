package chatserver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"art-chat/internal/message"
)

// PGStore keeps accounts and messages in PostgreSQL via database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Migrate creates the schema if missing.
func (s *PGStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT UNIQUE NOT NULL,
            avatar TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            sender_id BIGINT NOT NULL REFERENCES users(id),
            receiver_id BIGINT NOT NULL REFERENCES users(id),
            content TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP NOT NULL DEFAULT NOW()
        )`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) CreateUser(ctx context.Context, username, passwordHash, avatar string) (User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, avatar) VALUES ($1, $2, $3) RETURNING id`,
		username, passwordHash, avatar).Scan(&id)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Username: username, Avatar: avatar}, nil
}

func (s *PGStore) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, avatar, password_hash FROM users WHERE username=$1`,
		username).Scan(&u.ID, &u.Username, &u.Avatar, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *PGStore) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, avatar, password_hash FROM users WHERE id=$1`,
		id).Scan(&u.ID, &u.Username, &u.Avatar, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *PGStore) SaveMessage(ctx context.Context, senderID, receiverID int64, content string) (message.Message, error) {
	var (
		id      int64
		created time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3) RETURNING id, created_at`,
		senderID, receiverID, content).Scan(&id, &created)
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  message.WireTime{Time: created.In(message.Zone)},
	}, nil
}

func (s *PGStore) History(ctx context.Context, userA, userB int64) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, sender_id, receiver_id, content, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC
    `, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []message.Message
	for rows.Next() {
		var (
			m       message.Message
			isRead  bool
			created time.Time
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &isRead, &created); err != nil {
			return nil, err
		}
		m.IsRead = message.WireBool(isRead)
		m.CreatedAt = message.WireTime{Time: created.In(message.Zone)}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkRead(ctx context.Context, messageID, readerID int64) (message.Message, error) {
	var (
		m       message.Message
		created time.Time
	)
	err := s.db.QueryRowContext(ctx, `
        UPDATE messages SET is_read=TRUE
        WHERE id=$1 AND receiver_id=$2
        RETURNING id, sender_id, receiver_id, content, created_at
    `, messageID, readerID).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return message.Message{}, ErrNotFound
	}
	if err != nil {
		return message.Message{}, err
	}
	m.IsRead = true
	m.CreatedAt = message.WireTime{Time: created.In(message.Zone)}
	return m, nil
}

func (s *PGStore) Close() error {
	return s.db.Close()
}
