package chatserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"art-chat/internal/authutil"
	"art-chat/internal/message"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type apiEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiEnvelope{Success: true, Data: data}); err != nil {
		log.Printf("response write error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiEnvelope{Success: false, Error: reason}); err != nil {
		log.Printf("response write error: %v", err)
	}
}

func (s *Server) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RegisterAttempts.Add(1)
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username/password required")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "hash error")
			return
		}
		user, err := s.store.CreateUser(r.Context(), req.Username, string(hash), req.Avatar)
		if err != nil {
			writeError(w, http.StatusBadRequest, "username exists")
			return
		}
		writeData(w, http.StatusOK, user)
	}
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.LoginAttempts.Add(1)
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		user, err := s.store.UserByUsername(r.Context(), req.Username)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid username")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusBadRequest, "wrong password")
			return
		}
		token, err := authutil.IssueToken(user.ID, user.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token error")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     authutil.SessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeData(w, http.StatusOK, user)
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		peerID, err := strconv.ParseInt(chi.URLParam(r, "peerID"), 10, 64)
		if err != nil || peerID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid peer id")
			return
		}
		msgs, err := s.store.History(r.Context(), sess.UserID, peerID)
		if err != nil {
			log.Printf("history %d/%d: %v", sess.UserID, peerID, err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if msgs == nil {
			msgs = []message.Message{}
		}
		writeData(w, http.StatusOK, msgs)
	}
}

func (s *Server) miniProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		user, err := s.store.UserByID(r.Context(), userID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "no such user")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		writeData(w, http.StatusOK, user)
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.HealthChecks.Add(1)
		writeData(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": s.backend,
		})
	}
}
