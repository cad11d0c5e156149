package link

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// HubPath is where the relay accepts WebSocket connections.
const HubPath = "/ws"

const (
	dialTimeout = 10 * time.Second
	readLimit   = 1 << 20
)

// HubURL turns the configured hub base address into its WebSocket endpoint:
// http becomes ws, https becomes wss and the path is replaced by /ws.
func HubURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("hub url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hub url %q: missing host", base)
	}
	u.Path = HubPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// WebSocketDialer dials the hub with coder/websocket.
type WebSocketDialer struct{}

// Dial opens a WebSocket to url.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, _, err := websocket.Dial(dctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	c.SetReadLimit(readLimit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
