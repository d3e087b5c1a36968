package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "nxt_shelf_session"
	sessionDuration   = 30 * 24 * time.Hour
)

// sessionStore holds active session tokens in memory. Sessions do not
// survive a restart.
type sessionStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry
	now    func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{tokens: make(map[string]time.Time), now: time.Now}
}

// create generates a new random session token, stores it, and returns it.
func (s *sessionStore) create() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.tokens[token] = s.now().Add(sessionDuration)
	return token, nil
}

// valid reports whether token exists and has not expired.
func (s *sessionStore) valid(token string) bool {
	s.mu.RLock()
	exp, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if s.now().After(exp) {
		s.delete(token)
		return false
	}
	return true
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// pruneLocked drops expired tokens so abandoned sessions do not accumulate.
func (s *sessionStore) pruneLocked() {
	now := s.now()
	for tok, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, tok)
		}
	}
}

// authMiddleware enforces session-cookie authentication, with HTTP Basic Auth
// accepted for scripts and the CLI. If password is empty, auth is disabled.
func authMiddleware(password string, sessions *sessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if password == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(sessionCookieName); err == nil && sessions.valid(c.Value) {
				next.ServeHTTP(w, r)
				return
			}
			if _, pass, ok := r.BasicAuth(); ok &&
				subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			// Browsers go to the login form; API clients get a 401.
			if !strings.HasPrefix(r.URL.Path, "/api/") && acceptsHTML(r.Header.Get("Accept")) {
				http.Redirect(w, r, "/login?redirect="+pathEscapeRedirect(r), http.StatusSeeOther)
				return
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="nxt-shelf"`)
			writeProblem(w, r, problem{
				Status: http.StatusUnauthorized,
				Title:  "Unauthorized",
				Detail: "sign in or send basic auth credentials",
			})
		})
	}
}

func pathEscapeRedirect(r *http.Request) string {
	u := r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return url.QueryEscape(u)
}

// acceptsHTML reports whether an Accept header value admits text/html.
// An empty header counts as a browser.
func acceptsHTML(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(part, ";")
		switch strings.TrimSpace(mt) {
		case "text/html", "text/*", "*/*":
			return true
		}
	}
	return false
}
