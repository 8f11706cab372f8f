package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brennhill/rdbgbridge/internal/config"
	"github.com/brennhill/rdbgbridge/internal/registry"
	"github.com/brennhill/rdbgbridge/internal/rlog"
)

// bridgeServer bundles the long-lived collaborators a tool-call handler
// needs: the session registry, the HTTP trigger client, and the MCP
// server itself with every tool from spec §6 registered against it.
type bridgeServer struct {
	cfg      config.Config
	log      rlog.Logger
	registry *registry.Registry
	http     *httpTrigger
	mcp      *mcp.Server
}

func newBridgeServer(cfg config.Config, log rlog.Logger) *bridgeServer {
	s := &bridgeServer{
		cfg:      cfg,
		log:      log,
		registry: registry.New(cfg.SessionTimeout, log),
		http:     newHTTPTrigger(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "rdbgbridge", Version: version}, nil)
	registerTools(s.mcp, s)
	return s
}

func (s *bridgeServer) runStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *bridgeServer) runHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
