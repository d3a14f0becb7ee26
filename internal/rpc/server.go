package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

// helloTimeout bounds how long the coordinator waits for the host's
// opening Hello before giving up on the connection, per spec.md §6:
// "coordinator may reject the connection if it never arrives."
const helloTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an incoming HTTP request to the coordinator<->host
// websocket, checking the shared handshake password and requiring
// Hello as the first frame, per spec.md §4.3/§6. It returns the
// accepted Conn plus the Hello envelope's hostname/display_name so the
// caller can register it with a coordinator.Registry without this
// package depending on that one.
func Accept(w http.ResponseWriter, r *http.Request, password string) (conn *Conn, hostname string, displayName *string, err error) {
	got := r.Header.Get(AuthHeader)
	if password != "" && got != password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, "", nil, fmt.Errorf("handshake password mismatch")
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("upgrade: %w", err)
	}
	c := &Conn{ws: ws}

	_ = ws.SetReadDeadline(timeNowPlus(helloTimeout))
	env, err := c.Recv()
	if err != nil {
		_ = c.Close()
		return nil, "", nil, fmt.Errorf("read hello: %w", err)
	}
	if env.Type != EnvelopeHello {
		_ = c.Close()
		return nil, "", nil, errors.New("first message was not hello")
	}
	_ = ws.SetReadDeadline(time.Time{})

	utils.NewComponentLogger("rpc.server").Info("host %q connected", env.Hostname)
	return c, env.Hostname, env.DisplayName, nil
}

func timeNowPlus(d time.Duration) time.Time {
	return time.Now().Add(d)
}
