package server

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// loginPageHTML is served at GET /login. It loads nothing from the
// protected static tree.
const loginPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8"/>
  <meta name="viewport" content="width=device-width,initial-scale=1.0"/>
  <title>Sign in · nxt-shelf</title>
  <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="min-h-screen bg-stone-100 grid place-items-center">
  <main class="w-full max-w-xs">
    <h1 class="text-center text-2xl font-bold text-emerald-700 mb-1">nxt-shelf</h1>
    <p class="text-center text-sm text-stone-500 mb-6">Your books, all in one place</p>
    <form method="POST" action="/login" class="bg-white rounded-xl shadow p-6 space-y-4">
      <input type="hidden" name="redirect" value="{{.Redirect}}"/>
      {{with .Error}}<p role="alert" class="text-sm text-red-700">{{.}}</p>{{end}}
      <label class="block text-sm text-stone-700">
        Password
        <input name="password" type="password" autocomplete="current-password" autofocus required
          class="mt-1 w-full px-3 py-2 border border-stone-300 rounded-lg focus:outline-none focus:ring-2 focus:ring-emerald-500"/>
      </label>
      <button type="submit" class="w-full py-2 bg-emerald-600 hover:bg-emerald-700 text-white rounded-lg text-sm font-medium">
        Open my shelf
      </button>
    </form>
  </main>
</body>
</html>`

var loginTmpl = template.Must(template.New("login").Parse(loginPageHTML))

type loginPage struct {
	Error    string
	Redirect string
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target string) string {
	// Browsers read a backslash as a slash, so "/\host" is "//host".
	if !strings.HasPrefix(target, "/") || strings.ContainsRune(target, '\\') {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

func (s *Server) loggedIn(r *http.Request) bool {
	c, err := r.Cookie(sessionCookieName)
	return err == nil && s.sessions.valid(c.Value)
}

// handleLoginPage serves GET /login.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Password == "" || s.loggedIn(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderLoginPage(w, http.StatusOK, safeRedirect(r.URL.Query().Get("redirect")), "")
}

// handleLoginPost checks the shared password and starts a session.
func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, r, "invalid form")
		return
	}
	redirect := safeRedirect(r.FormValue("redirect"))

	given := []byte(r.FormValue("password"))
	if s.opts.Password != "" && subtle.ConstantTimeCompare(given, []byte(s.opts.Password)) != 1 {
		s.log.Warnf("failed login from %s request_id=%s", r.RemoteAddr, getRequestID(r))
		s.renderLoginPage(w, http.StatusUnauthorized, redirect, "That password is not right.")
		return
	}

	token, err := s.sessions.create()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionDuration / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// handleLogout ends the session and returns to the login form.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) renderLoginPage(w http.ResponseWriter, status int, redirect, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = loginTmpl.Execute(w, loginPage{Error: errMsg, Redirect: redirect})
}
