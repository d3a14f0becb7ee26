package rpc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

// AuthHeader is the handshake authentication header name both sides
// check at connection time.
const AuthHeader = "x-slopcoder-password"

// reconnectBackoff is the fixed delay between connection attempts.
// The reference implementation uses a flat retry interval rather than
// exponential backoff; authentication and network failures are
// retried identically and indefinitely.
const reconnectBackoff = 2 * time.Second

// Conn wraps one websocket connection carrying Envelope messages, one
// per text frame.
type Conn struct {
	ws *websocket.Conn
}

// Send serializes and writes one Envelope as a text frame.
func (c *Conn) Send(e Envelope) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Recv reads and parses the next Envelope frame.
func (c *Conn) Recv() (Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	return Unmarshal(data)
}

// Close closes the underlying websocket.
func (c *Conn) Close() error { return c.ws.Close() }

// DialHost connects to the coordinator at serverURL, authenticating
// with password, then sends the Hello handshake that must be the
// host's first message. It never returns except with a usable Conn or
// a context cancellation; connection and authentication failures are
// retried with a fixed 2-second backoff, as the host CLI runs
// unattended and has no better failure mode than keep trying.
func DialHost(ctx context.Context, serverURL, password, hostname string, displayName *string) (*Conn, error) {
	logger := utils.NewComponentLogger("rpc.host")
	header := http.Header{}
	header.Set(AuthHeader, password)

	dialer := websocket.DefaultDialer
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ws, resp, err := dialer.DialContext(ctx, serverURL, header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			logger.Warn("connect to %s failed (status=%d): %v, retrying in %s", serverURL, status, err, reconnectBackoff)
			if !sleepOrDone(ctx, reconnectBackoff) {
				return nil, ctx.Err()
			}
			continue
		}

		conn := &Conn{ws: ws}
		if err := conn.Send(Hello(hostname, displayName)); err != nil {
			logger.Warn("send hello failed: %v, retrying in %s", err, reconnectBackoff)
			_ = conn.Close()
			if !sleepOrDone(ctx, reconnectBackoff) {
				return nil, ctx.Err()
			}
			continue
		}
		return conn, nil
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ParseServerURL normalizes a bare host:port or scheme-qualified
// address into a ws(s):// URL suitable for websocket.Dialer.
func ParseServerURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return u.String(), nil
	case "http":
		u.Scheme = "ws"
		return u.String(), nil
	case "https":
		u.Scheme = "wss"
		return u.String(), nil
	default:
		return "ws://" + raw, nil
	}
}
