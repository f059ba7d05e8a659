package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
)

// startServer mounts the MCP handler behind a middleware that injects
// the given accessor context, the way the web auth layer does.
func startServer(t *testing.T, srv *Server, rc *aw.RequestContext) string {
	t.Helper()

	mcpHandler := srv.Handler()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := aw.WithRequestContext(r.Context(), rc)
		mcpHandler.ServeHTTP(w, r.WithContext(ctx))
	})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

func connect(t *testing.T, url string) *sdk.ClientSession {
	t.Helper()

	client := sdk.NewClient(
		&sdk.Implementation{Name: "test-client", Version: "1.0.0"},
		&sdk.ClientOptions{},
	)
	session, err := client.Connect(
		context.Background(),
		&sdk.StreamableClientTransport{Endpoint: url},
		nil,
	)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func newTestServer(t *testing.T) (*Server, *hooks.Registry, store.Store) {
	t.Helper()
	ctx := context.Background()

	log := slog.New(slog.DiscardHandler)
	cfg := config.Default()
	cfg.FQDN = "local.test"

	st := store.NewMemoryStore()
	registry := permissions.NewRegistry(st, log)
	require.NoError(t, registry.Init(ctx))
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)

	hr.RegisterTool(hooks.Handler{
		Descriptor: hooks.Descriptor{
			Name:        "search_trips",
			Description: "Search the actor's stored trips",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"}
				},
				"required": ["query"]
			}`),
		},
		Fn: func(
			_ context.Context, actorID string, input json.RawMessage,
		) (json.RawMessage, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			out, _ := json.Marshal(map[string]string{
				"actor": actorID,
				"query": args.Query,
			})
			return out, nil
		},
	})

	hr.RegisterResource(hooks.Handler{
		Descriptor: hooks.Descriptor{
			Name:        "trips://recent",
			Description: "Recently stored trips",
		},
		Fn: func(
			context.Context, string, json.RawMessage,
		) (json.RawMessage, error) {
			return json.RawMessage(`["Oslo","Paris"]`), nil
		},
	})

	hr.RegisterPrompt(hooks.Handler{
		Descriptor: hooks.Descriptor{
			Name:        "summarize_trips",
			Description: "Summarize the trip log",
		},
		Fn: func(
			context.Context, string, json.RawMessage,
		) (json.RawMessage, error) {
			return json.RawMessage(`"Summarize these trips."`), nil
		},
	})

	return NewServer(cfg, hr, eval, log), hr, st
}

func addTrust(t *testing.T, st store.Store, relationship string) {
	t.Helper()
	_, err := st.CreateTrust(context.Background(), store.CreateTrustParams{
		ActorID:      "actor-1",
		PeerID:       "oauth2:client-1",
		Relationship: relationship,
		Secret:       "s3cret",
		Approved:     true,
		PeerApproved: true,
		Verified:     true,
	})
	require.NoError(t, err)
}

func TestClientSeesAndCallsTools(t *testing.T) {
	srv, _, st := newTestServer(t)
	addTrust(t, st, permissions.TypeMCPClient)

	url := startServer(t, srv, &aw.RequestContext{
		ActorID:      "actor-1",
		Kind:         aw.AccessorClient,
		PeerID:       "oauth2:client-1",
		Relationship: permissions.TypeMCPClient,
		ClientID:     "client-1",
	})
	session := connect(t, url)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, &sdk.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	require.Equal(t, "search_trips", tools.Tools[0].Name)

	args, _ := json.Marshal(map[string]string{"query": "Oslo"})
	result, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      "search_trips",
		Arguments: json.RawMessage(args),
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := result.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	require.JSONEq(t,
		`{"actor":"actor-1","query":"Oslo"}`, text.Text)
}

func TestClientReadsResourcesAndPrompts(t *testing.T) {
	srv, _, st := newTestServer(t)
	addTrust(t, st, permissions.TypeMCPClient)

	url := startServer(t, srv, &aw.RequestContext{
		ActorID:      "actor-1",
		Kind:         aw.AccessorClient,
		PeerID:       "oauth2:client-1",
		Relationship: permissions.TypeMCPClient,
	})
	session := connect(t, url)
	ctx := context.Background()

	resources, err := session.ListResources(ctx, &sdk.ListResourcesParams{})
	require.NoError(t, err)
	require.Len(t, resources.Resources, 1)

	read, err := session.ReadResource(ctx, &sdk.ReadResourceParams{
		URI: "trips://recent",
	})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	require.JSONEq(t, `["Oslo","Paris"]`, read.Contents[0].Text)

	prompts, err := session.ListPrompts(ctx, &sdk.ListPromptsParams{})
	require.NoError(t, err)
	require.Len(t, prompts.Prompts, 1)

	prompt, err := session.GetPrompt(ctx, &sdk.GetPromptParams{
		Name: "summarize_trips",
	})
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
}

func TestViewerSeesNoTools(t *testing.T) {
	srv, _, st := newTestServer(t)
	addTrust(t, st, permissions.TypeViewer)

	url := startServer(t, srv, &aw.RequestContext{
		ActorID:      "actor-1",
		Kind:         aw.AccessorPeer,
		PeerID:       "oauth2:client-1",
		Relationship: permissions.TypeViewer,
	})
	session := connect(t, url)

	tools, err := session.ListTools(
		context.Background(), &sdk.ListToolsParams{},
	)
	require.NoError(t, err)
	require.Empty(t, tools.Tools)
}

func TestOwnerSeesEverything(t *testing.T) {
	srv, _, _ := newTestServer(t)

	url := startServer(t, srv, &aw.RequestContext{
		ActorID: "actor-1",
		Kind:    aw.AccessorOwner,
	})
	session := connect(t, url)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, &sdk.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
}
