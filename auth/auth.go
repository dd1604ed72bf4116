package auth

import (
	"github.com/ragroute/ragroute/config"
)

// Permissions gates what a user may reach during routing.
type Permissions struct {
	CanSearchLocal      bool `json:"can_search_local"`
	CanSearchInternet   bool `json:"can_search_internet"`
	CanAccessClassified bool `json:"can_access_classified"`
	CanUploadDocuments  bool `json:"can_upload_documents"`
}

// User is an authenticated principal.
type User struct {
	UserID      string      `json:"user_id"`
	Username    string      `json:"username"`
	Role        string      `json:"role"`
	Permissions Permissions `json:"permissions"`
}

// Registry resolves static bearer tokens to users. Tokens are opaque
// strings issued out of band; there is no session state.
type Registry struct {
	byToken    map[string]*User
	byUsername map[string]credential
}

type credential struct {
	password string
	token    string
}

// NewRegistry builds a registry from the configured users.
func NewRegistry(cfg config.AuthConfig) *Registry {
	r := &Registry{
		byToken:    make(map[string]*User, len(cfg.Users)),
		byUsername: make(map[string]credential, len(cfg.Users)),
	}
	for _, u := range cfg.Users {
		user := &User{
			UserID:   u.UserID,
			Username: u.Username,
			Role:     u.Role,
			Permissions: Permissions{
				CanSearchLocal:      u.CanSearchLocal,
				CanSearchInternet:   u.CanSearchInternet,
				CanAccessClassified: u.CanAccessClassified,
				CanUploadDocuments:  u.CanUploadDocuments,
			},
		}
		r.byToken[u.Token] = user
		if u.Username != "" {
			r.byUsername[u.Username] = credential{password: u.Password, token: u.Token}
		}
	}
	return r
}

// Resolve maps a bearer token to its user.
func (r *Registry) Resolve(token string) (*User, bool) {
	u, ok := r.byToken[token]
	return u, ok
}

// Login checks a username/password pair and returns the user's static
// token. Empty configured passwords never match.
func (r *Registry) Login(username, password string) (string, *User, bool) {
	cred, ok := r.byUsername[username]
	if !ok || cred.password == "" || cred.password != password {
		return "", nil, false
	}
	u := r.byToken[cred.token]
	return cred.token, u, true
}
