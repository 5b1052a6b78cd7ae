package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// credentials is the rotated token triple minted by the identity service.
type credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	CSRFToken    string `json:"csrfToken"`
}

// refreshTokens executes the refresh protocol: one POST of the current
// refresh token to the identity service, no retries. The caller decides
// whether to retry the original request, never the refresh itself.
//
// This deliberately bypasses Do: the refresh endpoint must not recurse into
// the 401-recovery path.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (credentials, error) {
	if refreshToken == "" {
		c.metrics.ObserveRefresh(false)
		return credentials{}, errors.New("no refresh token held")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		c.metrics.ObserveRefresh(false)
		return credentials{}, err
	}

	url := c.authServiceURL + "/refresh-token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.metrics.ObserveRefresh(false)
		return credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRefresh(false)
		return credentials{}, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveRefresh(false)
		return credentials{}, &NetworkError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.ObserveRefresh(false)
		return credentials{}, fmt.Errorf("refresh endpoint returned %d: %s", resp.StatusCode, serverMessage(data))
	}

	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		c.metrics.ObserveRefresh(false)
		return credentials{}, &ParseError{Cause: err}
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" || creds.CSRFToken == "" {
		c.metrics.ObserveRefresh(false)
		return credentials{}, errors.New("refresh response missing credentials")
	}

	c.metrics.ObserveRefresh(true)
	return creds, nil
}
