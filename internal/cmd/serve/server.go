package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/plugin/route/admin"
	"github.com/chirino/weave-service/internal/plugin/route/artifacts"
	"github.com/chirino/weave-service/internal/plugin/route/export"
	"github.com/chirino/weave-service/internal/plugin/route/graph"
	"github.com/chirino/weave-service/internal/plugin/route/invites"
	"github.com/chirino/weave-service/internal/plugin/route/memories"
	"github.com/chirino/weave-service/internal/plugin/route/search"
	"github.com/chirino/weave-service/internal/plugin/route/social"
	routesystem "github.com/chirino/weave-service/internal/plugin/route/system"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
	registryroute "github.com/chirino/weave-service/internal/registry/route"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/chirino/weave-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.MemoryStore
	Router     *gin.Engine
	Running    *Listener
	Management *Listener
}

// Shutdown gracefully shuts down both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Management != nil {
		_ = s.Management.Close(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts the API listener.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting weave service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"rateLimit", cfg.RateLimitType,
	)

	backends, err := OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := backends.Store
	routesystem.AddReadinessCheck("database", store.Ping)

	// Artifact uploads are optional; without a store the artifact routes are not mounted.
	var artifactStore registryattach.ArtifactStore
	if cfg.AttachType != "" {
		attachLoader, err := registryattach.Select(cfg.AttachType)
		if err != nil {
			log.Warn("Artifact store not available", "err", err)
		} else if artifactStore, err = attachLoader(ctx); err != nil {
			log.Warn("Failed to initialize artifact store", "err", err)
			artifactStore = nil
		}
	}

	var limiter registryratelimit.Limiter
	limitLoader, err := registryratelimit.Select(cfg.RateLimitType)
	if err != nil {
		return nil, err
	}
	if limiter, err = limitLoader(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Every authenticated route is charged against the caller's rate budget.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthRateLimitMiddleware(resolver, limiter)

	ranker := service.NewRanker(store, backends.Vectorizer, backends.Vectors, cfg.SearchGraphSeeds)
	memories.MountRoutes(router, store, ranker, backends.Vectors, auth)
	graph.MountRoutes(router, store, auth)
	search.MountRoutes(router, ranker, auth)
	artifacts.MountRoutes(router, store, artifactStore, cfg, auth)
	invites.MountRoutes(router, store, auth)
	social.MountRoutes(router, store, auth)
	export.MountRoutes(router, store, auth)

	if cfg.IndexWorkerEnabled {
		go backends.NewIndexWorker(cfg).Start(ctx)
	}
	go service.NewPurgeService(store, backends.Vectors, artifactStore, cfg).Start(ctx)

	// Management routes go on a dedicated listener when --management-port is
	// set, otherwise on the main router.
	mgmtRouter := router
	if cfg.ManagementListenerEnabled {
		mgmtRouter = gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
	}
	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(mgmtRouter); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}
	admin.MountRoutes(mgmtRouter, store)

	var management *Listener
	if cfg.ManagementListenerEnabled {
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		management, err = startListener("management", mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "port", management.Port)
	}

	running, err := startListener("api", cfg.Listener, router)
	if err != nil {
		if management != nil {
			_ = management.Close(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Running:    running,
		Management: management,
	}, nil
}
