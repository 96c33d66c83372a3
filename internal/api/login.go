package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
)

const csrfCookieName = "campus_csrf"

// registerLoginPages registers the browser sign-in and sign-out routes on the
// raw mux. These serve HTML, not JSON.
func (s *Server) registerLoginPages(mux *http.ServeMux) {
	login := s.routes.Login
	slog.Info("registering login routes", "routes", []string{login, "/logout"})
	mux.Handle("GET "+login, instrument(login, http.HandlerFunc(s.handleLoginPage)))
	mux.Handle("POST "+login, instrument(login, http.HandlerFunc(s.handleLoginSubmit)))
	mux.Handle("GET /logout", instrument("/logout", http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /logout", instrument("/logout", http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /{$}", instrument("/", http.HandlerFunc(s.handleRoot)))
}

// handleRoot sends signed-in users to their landing page and everyone else to
// the login page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	st := s.gate.State(r)
	if st.IsAuthenticated && st.User != nil {
		http.Redirect(w, r, s.landing(st.User), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, s.routes.Login, http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	st := s.gate.State(r)
	if st.IsAuthenticated && st.User != nil {
		http.Redirect(w, r, s.landing(st.User), http.StatusSeeOther)
		return
	}
	s.renderLogin(w, http.StatusOK, "", "")
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, http.StatusBadRequest, "", "Malformed form submission.")
		return
	}
	email := r.PostForm.Get("email")

	csrfCookie, err := r.Cookie(csrfCookieName)
	if err != nil || csrfCookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(csrfCookie.Value), []byte(r.PostForm.Get("csrf"))) != 1 {
		s.renderLogin(w, http.StatusForbidden, email, "Your sign-in form expired. Please try again.")
		return
	}

	sid, id, err := s.login(r.Context(), email, r.PostForm.Get("password"), r.RemoteAddr)
	switch {
	case errors.Is(err, errInvalidCredentials):
		s.renderLogin(w, http.StatusUnauthorized, email, "Invalid email or password.")
		return
	case err != nil:
		s.renderLogin(w, http.StatusBadGateway, email, "The events service is unavailable. Please try again later.")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "", Path: "/", MaxAge: -1})
	s.cookie.Write(w, sid)
	http.Redirect(w, r, s.landing(id), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logout(r.Context(), s.cookie.Read(r), r.RemoteAddr)
	s.cookie.Clear(w)
	http.Redirect(w, r, s.routes.Login, http.StatusSeeOther)
}

// renderLogin writes the sign-in form with a fresh CSRF token.
func (s *Server) renderLogin(w http.ResponseWriter, status int, email, errMsg string) {
	csrfToken := generateCSRFToken()
	if csrfToken == "" {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	setCSRFCookie(w, csrfToken, s.cookie.Secure)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := loginPageTmpl.Execute(w, map[string]string{
		"Action": s.routes.Login,
		"CSRF":   csrfToken,
		"Email":  email,
		"Error":  errMsg,
	}); err != nil {
		slog.Error("render login page", "error", err)
	}
}

func generateCSRFToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func setCSRFCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   1800, // 30 minutes
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

var loginPageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Campus Events: Sign In</title>
</head>
<body>
<main>
<h1>Sign in</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="csrf" value="{{.CSRF}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required autocomplete="username"></label>
<label>Password <input type="password" name="password" required autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
</main>
</body>
</html>`))
