package auth

import (
	"context"
	"sync"
	"time"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

// Session holds the bearer token of the signed-in user. Calls made under a
// request context carry that request's own token (see WithToken); the
// session token serves background work such as polling. It is passed
// explicitly to the services that need it.
type Session struct {
	mu        sync.RWMutex
	token     string
	claims    *Claims
	subject   string
	listeners []func()
	now       func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Bind installs token. Opaque tokens are accepted; their expiry is then
// learned from the first 401.
func (s *Session) Bind(token string) {
	claims, _ := Inspect(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.token {
		return
	}
	s.token = token
	s.claims = claims
	s.subject = SubjectOf(token, claims)
}

// Token returns the current token. An expired token is cleared, listeners
// are told, and domain.ErrUnauthorized is returned.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	token, claims := s.token, s.claims
	s.mu.RUnlock()
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	if claims.Expired(s.now()) {
		s.ExpireToken(token)
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

// TokenFor returns the token a call made under ctx carries: the request's
// own when ctx has one, the session's otherwise. An expired request token
// expires the session only when it is the one bound.
func (s *Session) TokenFor(ctx context.Context) (string, error) {
	c, ok := credentialFrom(ctx)
	if !ok {
		return s.Token()
	}
	if c.token == "" {
		return "", domain.ErrUnauthorized
	}
	if c.claims.Expired(s.now()) {
		s.ExpireToken(c.token)
		return "", domain.ErrUnauthorized
	}
	return c.token, nil
}

// SubjectFor is the subject of the request token in ctx, or of the session.
func (s *Session) SubjectFor(ctx context.Context) string {
	if c, ok := credentialFrom(ctx); ok {
		return c.subject
	}
	return s.Subject()
}

// Valid reports whether token is present and not past its expiry.
func (s *Session) Valid(token string) bool {
	if token == "" {
		return false
	}
	claims, _ := Inspect(token)
	return !claims.Expired(s.now())
}

// Expire clears the session and notifies OnExpired listeners.
func (s *Session) Expire() {
	s.mu.Lock()
	s.expireLocked()
}

// ExpireToken expires the session only while token is still the one bound.
// A stale token held by one request cannot sign out the others.
func (s *Session) ExpireToken(token string) {
	s.mu.Lock()
	if token == "" || token != s.token {
		s.mu.Unlock()
		return
	}
	s.expireLocked()
}

// expireLocked clears the session, releases s.mu and notifies listeners.
func (s *Session) expireLocked() {
	had := s.token != ""
	s.clear()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	if !had {
		return
	}
	for _, fn := range listeners {
		fn()
	}
}

// Clear ends the session without notifying listeners, as on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// ClearFor ends the session on logout of the request in ctx. A request
// token only clears the session when it is the one bound.
func (s *Session) ClearFor(ctx context.Context) {
	c, ok := credentialFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && c.token != s.token {
		return
	}
	s.clear()
}

func (s *Session) clear() {
	s.token = ""
	s.claims = nil
	s.subject = ""
}

func (s *Session) OnExpired(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) Authenticated() bool {
	_, err := s.Token()
	return err == nil
}

// Claims returns the decoded claims of the current token, if it had any.
func (s *Session) Claims() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}
