// Package web is the wire protocol surface: the chi router, the
// three-way authentication middleware, and the handlers for every
// actor-scoped and root-level endpoint.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/oauth"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// Deps bundles the subsystems the HTTP layer dispatches into.
type Deps struct {
	Store     store.Store
	Config    *config.Config
	Actors    *actor.Service
	Trusts    *trust.Manager
	Subs      *subscription.Manager
	Callbacks *callback.Processor
	OAuth     *oauth.Server
	Hooks     *hooks.Registry
	Evaluator *permissions.Evaluator
	Registry  *permissions.Registry

	// MCP is the streamable MCP transport, mounted behind the bearer
	// middleware. Nil disables the mount.
	MCP http.Handler
}

// Server is the HTTP front of the runtime.
type Server struct {
	store     store.Store
	cfg       *config.Config
	actors    *actor.Service
	trusts    *trust.Manager
	subs      *subscription.Manager
	callbacks *callback.Processor
	oauth     *oauth.Server
	hooks     *hooks.Registry
	eval      *permissions.Evaluator
	registry  *permissions.Registry
	mcp       http.Handler

	router chi.Router
	srv    *http.Server
	log    *slog.Logger
}

// NewServer assembles the router.
func NewServer(deps Deps, log *slog.Logger) *Server {
	s := &Server{
		store:     deps.Store,
		cfg:       deps.Config,
		actors:    deps.Actors,
		trusts:    deps.Trusts,
		subs:      deps.Subs,
		callbacks: deps.Callbacks,
		oauth:     deps.OAuth,
		hooks:     deps.Hooks,
		eval:      deps.Evaluator,
		registry:  deps.Registry,
		mcp:       deps.MCP,
		log:       log.With("subsystem", "web"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the assembled router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)

	// Root-level surface: factory, OAuth2, discovery, bot.
	r.Get("/", s.handleFactoryGet)
	r.Post("/", s.handleFactoryPost)
	r.Post("/bot", s.handleBot)

	r.Route("/oauth", func(r chi.Router) {
		r.Post("/register", s.handleOAuthRegister)
		r.Get("/authorize", s.handleOAuthAuthorize)
		r.Post("/authorize", s.handleOAuthAuthorize)
		r.Get("/callback", s.handleOAuthCallback)
		r.Post("/token", s.handleOAuthToken)
		r.Post("/revoke", s.handleOAuthRevoke)
		r.Post("/logout", s.handleOAuthLogout)
	})
	r.Get("/.well-known/oauth-authorization-server", s.handleOAuthMetadata)

	if s.mcp != nil {
		r.Handle("/mcp", s.bearerOnly(s.mcp))
		r.Handle("/mcp/*", s.bearerOnly(s.mcp))
	}

	// Actor-scoped surface.
	r.Route("/{actorID}", func(r chi.Router) {
		r.Use(s.resolveActor)

		// Discovery and the trust handshake run unauthenticated: a
		// prospective peer has no credential yet.
		r.Get("/meta", s.handleMeta)
		r.Get("/meta/*", s.handleMetaPath)
		r.Post("/trust/{relationship}", s.handleTrustInbound)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Delete("/", s.handleActorDelete)
			r.Get("/www", s.handleWWW)

			r.Get("/properties", s.handlePropertiesList)
			r.Post("/properties", s.handlePropertiesBulk)
			r.Delete("/properties", s.handlePropertiesDeleteAll)
			r.HandleFunc("/properties/*", s.handleProperty)

			r.Get("/trust", s.handleTrustList)
			r.Post("/trust", s.handleTrustInitiate)
			r.Route("/trust/{relationship}/{peerID}", func(r chi.Router) {
				r.Get("/", s.handleTrustGet)
				r.Put("/", s.handleTrustPut)
				r.Delete("/", s.handleTrustDelete)
				r.Get("/permissions", s.handleOverrideGet)
				r.Put("/permissions", s.handleOverridePut)
				r.Delete("/permissions", s.handleOverrideDelete)
				r.Get("/shared_properties", s.handleSharedProperties)
			})
			r.Get("/permissions/{peerID}", s.handleEffectivePermissions)

			r.Get("/subscriptions", s.handleSubscriptionsList)
			r.Route("/subscriptions/{peerID}", func(r chi.Router) {
				r.Get("/", s.handleSubscriptionsByPeer)
				r.Post("/", s.handleSubscriptionCreate)
				r.Get("/{subID}", s.handleSubscriptionGet)
				r.Delete("/{subID}", s.handleSubscriptionDelete)
				r.Get("/{subID}/{seqnr}", s.handleDiffGet)
			})

			r.Post("/callbacks/{name}", s.handleCallback)
			r.Post("/callbacks/subscriptions/{peerID}/{subID}",
				s.handleSubscriptionCallback)
			r.Delete("/callbacks/subscriptions/{peerID}/{subID}",
				s.handleSubscriptionCallbackDelete)

			r.Get("/methods", s.handleMethodsList)
			r.Post("/methods/{name}", s.handleMethodInvoke)
			r.Get("/actions", s.handleActionsList)
			r.Post("/actions/{name}", s.handleActionInvoke)
			r.Get("/resources", s.handleResourcesList)
			r.HandleFunc("/resources/*", s.handleResource)

			r.Route("/devtest", func(r chi.Router) {
				r.Use(s.devTestOnly)
				r.Get("/ping", s.handleDevTestPing)
				r.Get("/dump", s.handleDevTestDump)
				r.HandleFunc("/attributes/{bucket}/{name}",
					s.handleDevTestAttribute)
			})
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("HTTP server listening", "addr", s.cfg.ListenAddr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
