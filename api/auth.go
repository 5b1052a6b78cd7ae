package api

import (
	"context"
	"net/http"

	"github.com/MuhibNayem/quantify-go/session"
)

// loginResponse is the payload of POST /users/login.
type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	CSRFToken    string       `json:"csrfToken"`
	User         session.User `json:"user"`
	Permissions  []string     `json:"permissions"`
}

// LoginWithPassword authenticates against the backend and replaces the
// session with the returned credential bundle.
func (c *Client) LoginWithPassword(ctx context.Context, username, password string) error {
	var resp loginResponse
	err := c.Do(ctx, http.MethodPost, "/users/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}

	if err := c.sessions.Login(resp.AccessToken, resp.RefreshToken, resp.CSRFToken, resp.User, resp.Permissions); err != nil {
		return err
	}
	c.logger.Info("logged in", "user", resp.User.Username, "permissions", len(c.sessions.Current().Permissions))
	return nil
}

// Logout invalidates the CSRF token server-side (best effort) and clears the
// local session either way.
func (c *Client) Logout(ctx context.Context) {
	if c.sessions.Current().IsAuthenticated {
		if err := c.Do(ctx, http.MethodPost, "/users/logout", nil, nil); err != nil {
			c.logger.Debug("server-side logout failed", "error", err)
		}
	}
	c.sessions.Logout()
}
