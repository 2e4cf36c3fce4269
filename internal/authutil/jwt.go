package authutil

import (
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie the REST API and the channel handshake read
// the session token from.
const SessionCookie = "art_chat_session"

var (
	secretOnce sync.Once // Ensure that the key is only read and initialized once.
	secretKey  []byte
)

// getSecret retrieves the secret key from environment variable or defaults for development.
func getSecret() []byte {
	secretOnce.Do(func() {
		key := os.Getenv("ART_CHAT_SECRET")
		if key == "" {
			key = "dev-secret-change-me" // using a default for development
		}
		secretKey = []byte(key)
	})
	return secretKey
}

// Session identifies an authenticated user.
type Session struct {
	UserID   int64
	Username string
}

// IssueToken returns a signed JWT for the provided user.
func IssueToken(userID int64, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getSecret())
}

// ValidateToken parses a token string, validates the signature, and
// returns the embedded session.
func ValidateToken(tokenStr string) (Session, error) {
	if tokenStr == "" {
		return Session{}, errors.New("empty token")
	}
	// check if token method is the HMAC and validate signature
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return getSecret(), nil
	})
	if err != nil {
		return Session{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Session{}, errors.New("invalid token claims")
	}
	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return Session{}, errors.New("invalid user id claim")
	}
	username, _ := claims["username"].(string)
	return Session{UserID: int64(id), Username: username}, nil
}

// SessionFromRequest extracts and validates the session cookie.
func SessionFromRequest(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return Session{}, errors.New("missing session cookie")
	}
	return ValidateToken(cookie.Value)
}
