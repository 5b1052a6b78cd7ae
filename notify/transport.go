package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// Conn is one live push connection.
type Conn interface {
	// ReadMessage blocks until the next message or a connection error.
	ReadMessage() ([]byte, error)
	// Close tears the connection down; a blocked ReadMessage returns an
	// error.
	Close() error
}

// Transport establishes push connections. Tests inject a scripted fake;
// production uses WebSocketTransport.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketTransport dials real WebSocket connections.
type WebSocketTransport struct {
	// Dialer overrides websocket.DefaultDialer when set.
	Dialer *websocket.Dialer
}

func (t *WebSocketTransport) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// DeriveSocketURL maps the API base URL to the push endpoint: scheme
// upgraded to its socket equivalent, path fixed to /ws, query and fragment
// dropped.
func DeriveSocketURL(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil || u.Host == "" {
		return "ws://127.0.0.1:8080/ws"
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// socketURLWithToken appends the session's access token as the connection
// authentication parameter.
func socketURLWithToken(socketURL, token string) (string, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
