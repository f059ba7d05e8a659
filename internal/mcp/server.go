// Package mcp exposes the application's registered tool, resource, and
// prompt hooks over the Model Context Protocol. The surface is rebuilt
// per request so listings only contain what the authenticated accessor
// is permitted to see.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/permissions"
)

// Server builds permission-filtered MCP servers from the hook registry.
type Server struct {
	cfg   *config.Config
	hooks *hooks.Registry
	eval  *permissions.Evaluator
	log   *slog.Logger
}

// NewServer creates the MCP surface.
func NewServer(
	cfg *config.Config, hr *hooks.Registry, eval *permissions.Evaluator,
	log *slog.Logger,
) *Server {
	return &Server{
		cfg:   cfg,
		hooks: hr,
		eval:  eval,
		log:   log.With("subsystem", "mcp"),
	}
}

// Handler returns the streamable HTTP transport. The auth middleware
// must run first; the accessor context decides what gets registered.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return s.serverFor(r.Context())
		},
		&mcp.StreamableHTTPOptions{},
	)
}

// serverFor assembles an MCP server holding only the hooks the accessor
// may use.
func (s *Server) serverFor(ctx context.Context) *mcp.Server {
	srv := mcp.NewServer(
		&mcp.Implementation{
			Name:    "actingweb",
			Version: aw.ProtocolVersion,
		},
		&mcp.ServerOptions{
			HasTools:     true,
			HasResources: true,
			HasPrompts:   true,
		},
	)

	for _, h := range s.hooks.Tools() {
		if !s.allowed(ctx, permissions.CategoryTools,
			h.Name, permissions.OpWrite) {
			continue
		}
		s.addTool(srv, h)
	}
	for _, h := range s.hooks.Resources() {
		if !s.allowed(ctx, permissions.CategoryResources,
			h.Name, permissions.OpRead) {
			continue
		}
		s.addResource(srv, h)
	}
	for _, h := range s.hooks.Prompts() {
		if !s.allowed(ctx, permissions.CategoryPrompts,
			h.Name, permissions.OpRead) {
			continue
		}
		s.addPrompt(srv, h)
	}
	return srv
}

// allowed evaluates the accessor's grant on one hook. Owners see
// everything; unauthenticated requests see nothing.
func (s *Server) allowed(
	ctx context.Context, category permissions.Category,
	target string, op permissions.Operation,
) bool {

	rc := aw.FromContext(ctx)
	if rc == nil || rc.Kind == aw.AccessorNone {
		return false
	}
	if rc.IsOwner() {
		return true
	}

	d, err := s.eval.Evaluate(
		ctx, rc.ActorID, rc.PeerID, category, target, op,
	)
	if err != nil {
		s.log.WarnContext(ctx, "MCP permission check failed",
			"actor_id", rc.ActorID,
			"target", target,
			"error", err,
		)
		return false
	}
	return d == permissions.DecisionAllowed
}
