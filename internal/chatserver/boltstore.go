package chatserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"art-chat/internal/message"
)

const (
	usersBucket     = "users"      // username -> User
	userIDsBucket   = "user_ids"   // id -> username
	messagesBucket  = "messages"   // id -> Message
	boltOpenTimeout = time.Second
)

// BoltStore is the zero-dependency fallback used when no DATABASE_URL is
// configured, so the server still persists across restarts in development.
type BoltStore struct {
	db *bbolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucket, userIDsBucket, messagesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type boltUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

func itob(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func (s *BoltStore) CreateUser(_ context.Context, username, passwordHash, avatar string) (User, error) {
	var created User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket([]byte(usersBucket))
		if users.Get([]byte(username)) != nil {
			return ErrExists
		}
		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		created = User{ID: int64(seq), Username: username, Avatar: avatar}
		data, err := json.Marshal(boltUser{User: created, PasswordHash: passwordHash})
		if err != nil {
			return err
		}
		if err := users.Put([]byte(username), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(userIDsBucket)).Put(itob(seq), []byte(username))
	})
	return created, err
}

func (s *BoltStore) UserByUsername(_ context.Context, username string) (User, error) {
	var u User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(usersBucket)).Get([]byte(username))
		if data == nil {
			return ErrNotFound
		}
		var bu boltUser
		if err := json.Unmarshal(data, &bu); err != nil {
			return err
		}
		u = bu.User
		u.PasswordHash = bu.PasswordHash
		return nil
	})
	return u, err
}

func (s *BoltStore) UserByID(ctx context.Context, id int64) (User, error) {
	var username string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(userIDsBucket)).Get(itob(uint64(id)))
		if data == nil {
			return ErrNotFound
		}
		username = string(data)
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return s.UserByUsername(ctx, username)
}

func (s *BoltStore) SaveMessage(_ context.Context, senderID, receiverID int64, content string) (message.Message, error) {
	var saved message.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		msgs := tx.Bucket([]byte(messagesBucket))
		seq, err := msgs.NextSequence()
		if err != nil {
			return err
		}
		saved = message.Message{
			ID:         int64(seq),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Content:    content,
			CreatedAt:  message.WireTime{Time: time.Now().In(message.Zone)},
		}
		data, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		return msgs.Put(itob(seq), data)
	})
	return saved, err
}

func (s *BoltStore) History(_ context.Context, userA, userB int64) ([]message.Message, error) {
	var out []message.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Message ids are monotonically assigned, so an id-ordered scan
		// yields chronological order.
		return tx.Bucket([]byte(messagesBucket)).ForEach(func(_, v []byte) error {
			var m message.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Between(userA, userB) {
				out = append(out, m)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) MarkRead(_ context.Context, messageID, readerID int64) (message.Message, error) {
	var updated message.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		msgs := tx.Bucket([]byte(messagesBucket))
		key := itob(uint64(messageID))
		data := msgs.Get(key)
		if data == nil {
			return ErrNotFound
		}
		var m message.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if m.ReceiverID != readerID {
			return ErrNotFound
		}
		m.IsRead = true
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		updated = m
		return msgs.Put(key, payload)
	})
	return updated, err
}
