// Package ctlclient talks to a running meshchatd over its control socket.
package ctlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/matheus3301/meshchat/internal/control"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/store"
)

// baseURL is a placeholder host; every request is dialed to the socket.
const baseURL = "http://meshchatd"

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client wraps HTTP requests to the daemon's Unix domain socket.
type Client struct {
	http *http.Client
}

// New returns a client for the daemon listening on socketPath. Nothing is
// dialed until the first request.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: 15 * time.Second}}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) Status(ctx context.Context) (*control.StatusResponse, error) {
	var out control.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Chats(ctx context.Context) ([]store.Chat, error) {
	var out []store.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Chat(ctx context.Context, peerID string) (*store.Chat, error) {
	var out store.Chat
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(peerID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Send(ctx context.Context, peerID, content string) (*store.Message, error) {
	var out store.Message
	body := control.SendRequest{Content: content}
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(peerID)+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkRead(ctx context.Context, peerID string) ([]string, error) {
	var out control.ReadResponse
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(peerID)+"/read", nil, &out); err != nil {
		return nil, err
	}
	return out.MessageIDs, nil
}

// DeleteChat removes a conversation. confirm must be true or the daemon
// refuses the request.
func (c *Client) DeleteChat(ctx context.Context, peerID string, notify, confirm bool) error {
	q := url.Values{}
	q.Set("confirm", fmt.Sprint(confirm))
	q.Set("notify", fmt.Sprint(notify))
	return c.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(peerID)+"?"+q.Encode(), nil, nil)
}

func (c *Client) Peers(ctx context.Context) ([]protocol.Peer, error) {
	var out []protocol.Peer
	if err := c.do(ctx, http.MethodGet, "/peers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartScan(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/peers/scan", nil, nil)
}

func (c *Client) StopScan(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/peers/scan/stop", nil, nil)
}

func (c *Client) Connect(ctx context.Context, peerID string) error {
	return c.do(ctx, http.MethodPost, "/peers/"+url.PathEscape(peerID)+"/connect", nil, nil)
}

func (c *Client) Profile(ctx context.Context) (*protocol.Profile, error) {
	var out protocol.Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, name string, avatarIndex int) (*protocol.Profile, error) {
	var out protocol.Profile
	body := control.ProfileRequest{Name: name, AvatarIndex: avatarIndex}
	if err := c.do(ctx, http.MethodPut, "/profile", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Settings(ctx context.Context) (*store.Settings, error) {
	var out store.Settings
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSettings(ctx context.Context, patch store.SettingsPatch) (*store.Settings, error) {
	var out store.Settings
	if err := c.do(ctx, http.MethodPatch, "/settings", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset clears every conversation and restores default settings.
func (c *Client) Reset(ctx context.Context, confirm bool) error {
	return c.do(ctx, http.MethodPost, "/reset?confirm="+fmt.Sprint(confirm), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e control.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
