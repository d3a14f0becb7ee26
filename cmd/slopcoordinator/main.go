// slopcoordinator is the coordinator CLI: it binds the agent-host
// websocket endpoint and holds the host registry that every API
// request is routed through. The external HTTP/REST surface served to
// end users and the static web asset server are out of scope for this
// core (spec.md §1) — this binary wires only what §4.3/§6 specify:
// the duplex stream accept loop, authenticated by a shared password.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cklxx/slopcoordinator/internal/coordinator"
	"github.com/cklxx/slopcoordinator/internal/shared/observability"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

const defaultAddr = "0.0.0.0:3000"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger := utils.NewComponentLogger("slopcoordinator")

	shutdownTracing, err := observability.Init("slopcoordinator")
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	addr := os.Getenv("SLOPCOORD_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	assetsDir := os.Getenv("SLOPCOORD_STATIC_DIR")
	password := os.Getenv("SLOPCOORD_PASSWORD")

	if len(os.Args) > 1 {
		// A config path may be given for the out-of-scope HTTP/API layer
		// (client auth, env listing cache, etc.); the core RPC registry
		// built here needs none of it.
		logger.Info("config path %q accepted but unused by the core RPC layer", os.Args[1])
	}
	if assetsDir != "" {
		logger.Info("static asset directory %q configured; serving it is out of scope for this core", assetsDir)
	}

	registry := coordinator.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("/ws", coordinator.NewConnectHandler(registry, password))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("slopcoordinator listening on %s (hosts connect at /ws)", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
