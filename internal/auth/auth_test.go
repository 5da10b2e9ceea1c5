package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func signed(t *testing.T, userID int64, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "trader",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-server-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestInspectReadsClaimsWithoutSecret(t *testing.T) {
	c, err := Inspect(signed(t, 42, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != 42 || c.Subject != "trader" {
		t.Errorf("claims = %+v", c)
	}
	if c.Expired(time.Now()) {
		t.Error("token should not be expired")
	}
}

func TestSessionExpiredTokenIsCleared(t *testing.T) {
	s := NewSession()
	notified := 0
	s.OnExpired(func() { notified++ })

	s.Bind(signed(t, 7, time.Now().Add(-time.Minute)))
	if s.Subject() != "7" {
		t.Errorf("subject = %q, want 7", s.Subject())
	}
	_, err := s.Token()
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v, want unauthorized", err)
	}
	if notified != 1 {
		t.Errorf("listeners notified %d times, want 1", notified)
	}
	if s.Subject() != "" || s.Authenticated() {
		t.Error("session was not cleared")
	}
}

func TestSessionOpaqueToken(t *testing.T) {
	s := NewSession()
	s.Bind("opaque-token")
	tok, err := s.Token()
	if err != nil || tok != "opaque-token" {
		t.Fatalf("got %q, %v", tok, err)
	}
	if s.Subject() == "" {
		t.Error("opaque token should still get a subject")
	}
	s.Clear()
	if s.Authenticated() {
		t.Error("cleared session is still authenticated")
	}
}

func TestMiddleware(t *testing.T) {
	s := NewSession()
	h := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/dashboard", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, 3, time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("valid token: status %d, want 204", rec.Code)
	}
	if s.Subject() != "3" {
		t.Errorf("subject = %q, want 3", s.Subject())
	}

	req = httptest.NewRequest("GET", "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, 3, time.Now().Add(-time.Hour)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status %d, want 401", rec.Code)
	}
}

func TestTokenForPrefersRequestToken(t *testing.T) {
	s := NewSession()
	bound := signed(t, 1, time.Now().Add(time.Hour))
	s.Bind(bound)
	own := signed(t, 2, time.Now().Add(time.Hour))
	ctx := WithToken(context.Background(), own)

	if tok, err := s.TokenFor(ctx); err != nil || tok != own {
		t.Errorf("request: got %q, %v, want its own token", tok, err)
	}
	if got := s.SubjectFor(ctx); got != "2" {
		t.Errorf("request subject = %q, want 2", got)
	}
	if tok, err := s.TokenFor(context.Background()); err != nil || tok != bound {
		t.Errorf("background: got %q, %v, want the bound token", tok, err)
	}

	s.ExpireToken(own)
	if !s.Authenticated() {
		t.Error("expiring a token that is not bound cleared the session")
	}
	s.ClearFor(ctx)
	if !s.Authenticated() {
		t.Error("logout with another token cleared the session")
	}
	s.ClearFor(WithToken(context.Background(), bound))
	if s.Authenticated() {
		t.Error("logout with the bound token left the session")
	}
}

func TestExpiredRequestDoesNotSignOutRequestsInFlight(t *testing.T) {
	s := NewSession()
	notified := 0
	s.OnExpired(func() { notified++ })

	entered := make(chan struct{})
	release := make(chan struct{})
	type result struct {
		token string
		err   error
	}
	results := make(chan result, 1)
	h := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(entered)
			<-release
			tok, err := s.TokenFor(r.Context())
			results <- result{tok, err}
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signed(t, 5, time.Now().Add(time.Hour))
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/slow", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-entered

	req := httptest.NewRequest("GET", "/fast", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, 5, time.Now().Add(-time.Minute)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status %d, want 401", rec.Code)
	}

	close(release)
	<-done
	got := <-results
	if got.err != nil || got.token != valid {
		t.Errorf("in-flight request: got %q, %v, want its valid token", got.token, got.err)
	}
	if tok, err := s.Token(); err != nil || tok != valid {
		t.Errorf("session: got %q, %v, want the valid token still bound", tok, err)
	}
	if notified != 0 {
		t.Errorf("listeners notified %d times, want 0", notified)
	}
}
