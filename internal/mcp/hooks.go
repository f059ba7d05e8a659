package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/hooks"
)

// addTool bridges one registered tool hook onto the MCP server.
func (s *Server) addTool(srv *mcp.Server, h hooks.Handler) {
	srv.AddTool(
		&mcp.Tool{
			Name:        h.Name,
			Description: h.Description,
			InputSchema: schemaOf(h.InputSchema),
		},
		func(ctx context.Context, req *mcp.CallToolRequest) (
			*mcp.CallToolResult, error,
		) {
			rc := aw.FromContext(ctx)
			if rc == nil {
				return toolError("request context lost"), nil
			}

			out, err := h.Fn(ctx, rc.ActorID, req.Params.Arguments)
			if err != nil {
				return toolError(err.Error()), nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: string(out)},
				},
			}, nil
		},
	)
}

func (s *Server) addResource(srv *mcp.Server, h hooks.Handler) {
	srv.AddResource(
		&mcp.Resource{
			URI:         h.Name,
			Name:        h.Name,
			Description: h.Description,
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (
			*mcp.ReadResourceResult, error,
		) {
			rc := aw.FromContext(ctx)
			if rc == nil {
				return nil, aw.Errorf(
					aw.KindUnauthenticated, "request context lost",
				)
			}

			input, err := json.Marshal(map[string]string{
				"uri": req.Params.URI,
			})
			if err != nil {
				return nil, err
			}
			out, err := h.Fn(ctx, rc.ActorID, input)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: "application/json",
					Text:     string(out),
				}},
			}, nil
		},
	)
}

func (s *Server) addPrompt(srv *mcp.Server, h hooks.Handler) {
	srv.AddPrompt(
		&mcp.Prompt{
			Name:        h.Name,
			Description: h.Description,
		},
		func(ctx context.Context, req *mcp.GetPromptRequest) (
			*mcp.GetPromptResult, error,
		) {
			rc := aw.FromContext(ctx)
			if rc == nil {
				return nil, aw.Errorf(
					aw.KindUnauthenticated, "request context lost",
				)
			}

			input, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return nil, err
			}
			out, err := h.Fn(ctx, rc.ActorID, input)
			if err != nil {
				return nil, err
			}
			return &mcp.GetPromptResult{
				Description: h.Description,
				Messages: []*mcp.PromptMessage{{
					Role:    "user",
					Content: &mcp.TextContent{Text: string(out)},
				}},
			}, nil
		},
	)
}

// schemaOf decodes a registered raw JSON schema, falling back to an
// open object so the SDK always has something to validate against.
func schemaOf(raw json.RawMessage) *jsonschema.Schema {
	if len(raw) > 0 {
		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err == nil {
			return &schema
		}
	}
	return &jsonschema.Schema{Type: "object"}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
