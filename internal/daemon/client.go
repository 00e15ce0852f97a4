package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
)

// Client connects to a running daemon via its Unix socket.
type Client struct {
	httpClient *http.Client
	socketPath string
	authToken  string
}

// NewClient creates a new daemon client. It reads the auth cookie
// automatically from the cookie file next to the socket.
func NewClient(socketPath, cookiePath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDaemonNotRunning, socketPath)
	}

	token, err := os.ReadFile(cookiePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon cookie: %w", err)
	}

	c := &Client{
		socketPath: socketPath,
		authToken:  strings.TrimSpace(string(token)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}

	return c, nil
}

// do sends an HTTP request to the daemon and returns the raw response body.
func (c *Client) do(method, path string, headers map[string]string) ([]byte, int, error) {
	url := "http://daemon" + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// doJSON sends a request and decodes the JSON {"data": ...} envelope into target.
func (c *Client) doJSON(method, path string, target any) error {
	data, status, err := c.do(method, path, nil)
	if err != nil {
		return err
	}

	if status >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("daemon: %s", errResp.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", status)
	}

	if target != nil {
		var raw struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if err := json.Unmarshal(raw.Data, target); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// doText sends a request with Accept: text/plain and returns the text body.
func (c *Client) doText(method, path string) (string, error) {
	data, status, err := c.do(method, path, map[string]string{"Accept": "text/plain"})
	if err != nil {
		return "", err
	}

	if status >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("daemon: %s", errResp.Error)
		}
		return "", fmt.Errorf("daemon returned HTTP %d", status)
	}

	return string(data), nil
}

// --- Query methods ---

// Status returns the daemon's node status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON("GET", "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusText returns the daemon's node status as plain text.
func (c *Client) StatusText() (string, error) {
	return c.doText("GET", "/v1/status")
}

// Nodes returns a snapshot of the membership table.
func (c *Client) Nodes() ([]NodeEntry, error) {
	var resp []NodeEntry
	if err := c.doJSON("GET", "/v1/nodes", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// NodesText returns the membership table snapshot as plain text.
func (c *Client) NodesText() (string, error) {
	return c.doText("GET", "/v1/nodes")
}

// Keys returns a redacted snapshot of the key table (presence/TTL only).
func (c *Client) Keys() ([]KeyEntry, error) {
	var resp []KeyEntry
	if err := c.doJSON("GET", "/v1/keys", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// KeysText returns the key table snapshot as plain text.
func (c *Client) KeysText() (string, error) {
	return c.doText("GET", "/v1/keys")
}

// Watches returns the active watch count per key.
func (c *Client) Watches() ([]WatchEntry, error) {
	var resp []WatchEntry
	if err := c.doJSON("GET", "/v1/watches", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WatchesText returns the watch counts as plain text.
func (c *Client) WatchesText() (string, error) {
	return c.doText("GET", "/v1/watches")
}
