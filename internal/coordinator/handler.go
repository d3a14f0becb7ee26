package coordinator

import (
	"net/http"

	"github.com/cklxx/slopcoordinator/internal/rpc"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

// ConnectHandler upgrades incoming host connections, checking the
// shared handshake password and the leading Hello frame (rpc.Accept),
// then serves that connection's request/response and task-event
// traffic until it drops. It is the coordinator-side mirror of
// host.Runner.serveConnection and is mounted by the coordinator CLI at
// whatever path hosts are told to dial (spec.md §6's "ws(s)://host/ws"
// style handshake; the exact path is an External-HTTP-surface detail
// left to the caller's mux).
type ConnectHandler struct {
	registry *Registry
	password string
	logger   *utils.ComponentLogger
}

// NewConnectHandler builds a ConnectHandler that registers accepted
// hosts into registry and checks connections against password (empty
// disables the check, for local development).
func NewConnectHandler(registry *Registry, password string) *ConnectHandler {
	return &ConnectHandler{registry: registry, password: password, logger: utils.NewComponentLogger("coordinator.handler")}
}

func (h *ConnectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, hostname, displayName, err := rpc.Accept(w, r, h.password)
	if err != nil {
		h.logger.Warn("host connect rejected: %v", err)
		return
	}
	defer conn.Close()

	h.registry.Register(hostname, displayName, conn)
	defer h.registry.Unregister(hostname)

	for {
		env, err := conn.Recv()
		if err != nil {
			h.logger.Info("host %q disconnected: %v", hostname, err)
			return
		}
		h.registry.Deliver(hostname, env)
	}
}
