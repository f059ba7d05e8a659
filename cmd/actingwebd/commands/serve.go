package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/build"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/db"
	"github.com/actingweb/actingweb-go/internal/fanout"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/mcp"
	"github.com/actingweb/actingweb-go/internal/oauth"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
	"github.com/actingweb/actingweb-go/internal/trust"
	"github.com/actingweb/actingweb-go/internal/web"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the actor host",
	Long: `Start the HTTP server hosting the actor factory, the per-actor
REST surface, the OAuth2 authorization server, and the MCP endpoint.`,
	RunE: runServe,
}

// loadConfig merges the environment configuration with flag overrides.
func loadConfig() *config.Config {
	cfg := config.FromEnv()
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if fqdn != "" {
		cfg.FQDN = fqdn
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backend != "" {
		cfg.Backend = config.Backend(backend)
	}
	if devTest {
		cfg.DevTest = true
	}
	return cfg
}

// openStore opens the configured storage backend, running migrations
// for the relational one.
func openStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("Using the in-memory backend, all state is volatile")
		return store.NewMemoryStore(), nil

	case config.BackendSQLite:
		path := cfg.DBPath
		if path == "" {
			var err error
			path, err = db.DefaultDBPath()
			if err != nil {
				return nil, err
			}
		}

		sqlDB, err := db.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(sqlDB, log); err != nil {
			sqlDB.Close()
			return nil, err
		}

		log.Info("Database opened", "path", path)
		return store.NewSqlcStore(sqlDB), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log, logCloser, err := build.NewLogger(build.LogConfig{
		Level: logLevel,
		Dir:   logDir,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	cfg := loadConfig()
	if cfg.FQDN == "" {
		return errors.New("a public hostname is required " +
			"(--fqdn or ACTINGWEB_FQDN)")
	}
	if cfg.StateSecret == "" {
		log.Warn("ACTINGWEB_STATE_SECRET is unset, " +
			"OAuth2 state does not survive restarts")
	}

	ctx, stop := signal.NotifyContext(
		cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := permissions.NewRegistry(st, log)
	if err := registry.Init(ctx); err != nil {
		return fmt.Errorf("trust type init failed: %w", err)
	}
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)
	peers := peer.NewClient(cfg, log)

	engine := subscription.NewEngine(st, cfg, eval, hr, log)
	actors := actor.NewService(st, cfg, hr, engine, log)
	trusts := trust.NewManager(st, cfg, hr, eval, registry, peers, log)
	subs := subscription.NewManager(st, cfg, eval, hr, peers, engine, log)
	proc := callback.NewProcessor(st, cfg, subs, peers, log)

	deliverer := fanout.NewManager(st, cfg, peers, trusts, log)
	engine.SetDeliverer(deliverer)

	oauthSrv, err := oauth.NewServer(st, cfg, actors, hr, log)
	if err != nil {
		return fmt.Errorf("oauth server init failed: %w", err)
	}
	trusts.SetTokenRevoker(oauthSrv)
	trusts.SetSubscriptionCanceler(subs)

	mcpSrv := mcp.NewServer(cfg, hr, eval, log)

	srv := web.NewServer(web.Deps{
		Store:     st,
		Config:    cfg,
		Actors:    actors,
		Trusts:    trusts,
		Subs:      subs,
		Callbacks: proc,
		OAuth:     oauthSrv,
		Hooks:     hr,
		Evaluator: eval,
		Registry:  registry,
		MCP:       mcpSrv.Handler(),
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info("actingwebd started",
		"version", build.Version(),
		"root", cfg.Proto+cfg.FQDN,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}

	// Let in-flight callback deliveries finish before the store closes.
	deliverer.Wait()

	return nil
}
