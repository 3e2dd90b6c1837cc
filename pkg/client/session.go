package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrNoToken is returned when the backend answers an auth call without a token
var ErrNoToken = errors.New("auth response carried no token")

// SessionStore holds the authenticated user. There is at most one session
// at a time; logging in as someone else replaces it.
type SessionStore struct {
	client *Client
	tokens TokenStore
	prompt *LoginPrompt

	mu        sync.RWMutex
	user      *User
	listeners []func(*User)
}

// NewSessionStore creates an unauthenticated store. prompt may be nil; when
// set, a successful login closes it.
func NewSessionStore(c *Client, tokens TokenStore, prompt *LoginPrompt) *SessionStore {
	return &SessionStore{client: c, tokens: tokens, prompt: prompt}
}

// Login authenticates with email and password
func (s *SessionStore) Login(ctx context.Context, email, password string) (*User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := s.client.Post(ctx, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return s.begin(resp)
}

// Register creates an account and starts a session for it
func (s *SessionStore) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var resp authResponse
	if err := s.client.Post(ctx, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return s.begin(resp)
}

// SetSession adopts a token obtained elsewhere, such as an OAuth callback.
// With a nil user the profile is fetched from /api/auth/me.
func (s *SessionStore) SetSession(ctx context.Context, token string, user *User) (*User, error) {
	if user == nil {
		if err := s.tokens.SetToken(token); err != nil {
			return nil, fmt.Errorf("failed to persist token: %w", err)
		}
		var me User
		if err := s.client.Get(ctx, "/api/auth/me", &me); err != nil {
			_ = s.tokens.Clear()
			return nil, err
		}
		user = &me
	}
	return s.begin(authResponse{User: user, Token: token})
}

func (s *SessionStore) begin(resp authResponse) (*User, error) {
	if resp.Token == "" || resp.User == nil {
		return nil, ErrNoToken
	}
	if err := s.tokens.SetToken(resp.Token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}
	s.setUser(resp.User)
	if s.prompt != nil {
		s.prompt.Close()
	}
	log.Printf("[AUTH] Signed in as %s (%s)", resp.User.Email, resp.User.Role)
	return s.User(), nil
}

// Restore validates a persisted token against /api/auth/me. Any failure
// discards the token and leaves the store unauthenticated; nothing is
// returned to the caller.
func (s *SessionStore) Restore(ctx context.Context) {
	token, err := s.tokens.Token()
	if err != nil {
		log.Printf("[AUTH] Could not read persisted token: %v", err)
		return
	}
	if token == "" {
		return
	}

	var me User
	if err := s.client.Get(ctx, "/api/auth/me", &me); err != nil {
		log.Printf("[AUTH] Discarding persisted token: %v", err)
		if cerr := s.Clear(); cerr != nil {
			log.Printf("[AUTH] Could not clear token: %v", cerr)
		}
		return
	}
	s.setUser(&me)
}

// Logout ends the session locally
func (s *SessionStore) Logout() {
	if err := s.Clear(); err != nil {
		log.Printf("[AUTH] Could not clear token: %v", err)
	}
}

// Clear drops the user and the persisted token
func (s *SessionStore) Clear() error {
	s.setUser(nil)
	return s.tokens.Clear()
}

// RequestPasswordReset asks the backend to send a reset link
func (s *SessionStore) RequestPasswordReset(ctx context.Context, email string) error {
	return s.client.Post(ctx, "/api/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ChangePassword changes the signed-in user's password
func (s *SessionStore) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return s.client.Put(ctx, "/api/auth/change-password", body, nil)
}

// User returns a copy of the current user, or nil
func (s *SessionStore) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a session is active
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// HasRole reports whether the session user has role
func (s *SessionStore) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == role
}

// OnChange registers fn to run with the new user (nil on logout) after
// every session transition
func (s *SessionStore) OnChange(fn func(*User)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *SessionStore) setUser(u *User) {
	s.mu.Lock()
	if s.user == nil && u == nil {
		s.mu.Unlock()
		return
	}
	if u != nil {
		cp := *u
		u = &cp
	}
	s.user = u
	listeners := append([]func(*User){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}
