// Package mcp exposes the engine's operations as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aulaverse/aulaverse/internal/game/market"
	"github.com/aulaverse/aulaverse/internal/game/service"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Aulaverse MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Server hosts the MCP server over the engine.
type Server struct {
	mcpServer *sdk.Server
}

// New creates a configured MCP server exposing the engine and the market
// shop as tools.
func New(engine *service.Engine, shop *market.Shop) *Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerEngineTools(mcpServer, engine)
	registerMarketTools(mcpServer, engine, shop)
	return &Server{mcpServer: mcpServer}
}

// Serve runs the MCP server on stdio until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &sdk.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport sdk.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
