package api

import "github.com/hatemosphere/campus-portal/internal/auth"

// HealthCheckOutput is the response for the health check endpoint.
type HealthCheckOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// SessionBody describes the caller's browser session.
type SessionBody struct {
	Authenticated bool           `json:"authenticated" doc:"The session holds an identity and an unexpired token"`
	Loading       bool           `json:"loading" doc:"The identity is still being resolved"`
	Source        string         `json:"source,omitempty" enum:"cache,remote" doc:"Layer that produced the identity"`
	User          *auth.Identity `json:"user,omitempty"`
	Role          string         `json:"role,omitempty" doc:"Normalized role"`
	Landing       string         `json:"landing,omitempty" doc:"Default landing page for the role"`
}

// SessionOutput is the response for getSession.
type SessionOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         SessionBody
}

// LoginInput is the request for login.
type LoginInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"254"`
		Password string `json:"password" minLength:"1" maxLength:"1024"`
	}
}

// LoginOutput is the response for login.
type LoginOutput struct {
	SetCookie string `header:"Set-Cookie"`
	Body      SessionBody
}

// LogoutOutput is the response for logout.
type LogoutOutput struct {
	SetCookie string `header:"Set-Cookie"`
}
