package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the external resources the router runs against. A nil Pool
// selects the in-memory store; a nil Redis selects the in-process cache.
type Deps struct {
	Log   *slog.Logger
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Prom  *observability.Prom
}

// NewRouter wires stores, service and handlers and returns the engine plus
// the account service (used at startup for the bootstrap account).
func NewRouter(cfg config.Config, d Deps) (*gin.Engine, *service.Accounts) {
	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	prom := d.Prom
	if prom == nil {
		prom = observability.NewProm()
	}

	// store
	var store service.AccountStore
	ping := map[string]handlers.Check{}
	if d.Pool != nil {
		jobsRepo := postgres.NewJobsRepo(d.Pool, prom)
		store = postgres.NewAccountsRepo(d.Pool, prom, jobsRepo)
		ping["db"] = d.Pool.Ping
	} else {
		store = memory.NewAccountsRepo()
	}

	accountCache, layer := newAccountCache(cfg, d)
	if rc, ok := accountCache.(*cache.Redis); ok {
		ping["redis"] = rc.Ping
	}
	if accountCache == nil {
		log.Info("account cache disabled: postgres store without REDIS_ADDR")
	}

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL())

	accounts := service.NewAccounts(service.Deps{
		Store:       store,
		Tokens:      jwtManager,
		Cache:       accountCache,
		CacheLayer:  layer,
		SharedCache: d.Redis != nil,
		Logger:      log,
		Prom:        prom,
		Hasher:      security.NewHasher(cfg.BcryptCost),
	})

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	if cfg.OTelEnabled {
		r.Use(otelgin.Middleware(observability.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(ping)
	r.GET("/", h.Root)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", prom.Handler())

	// auth
	authHandler := handlers.NewAuthHandler(accounts, accounts, log)

	var loginCounter middlewares.WindowCounter
	if d.Redis != nil {
		loginCounter = cache.NewRedisWindowCounter(d.Redis)
	}
	loginLimiter := middlewares.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, loginCounter)
	loginLimiter.OnLimited = func() { prom.ObserveAuth("rate_limited") }

	r.POST("/token", loginLimiter.RateLimiterMiddleware(middlewares.KeyByUsernameOrIP), authHandler.Token)
	r.POST("/register/", middlewares.RequireJSON(), authHandler.Register)

	// users
	authMW := middlewares.NewAuthMiddleware(jwtManager, accounts)
	usersHandler := handlers.NewUsersHandler(accounts, log)

	users := r.Group("/users", authMW.RequireAuth())
	{
		users.GET("/", usersHandler.List)
		users.GET("/me", usersHandler.Me)
		users.PUT("/me", middlewares.RequireJSON(), usersHandler.UpdateMe)
		users.GET("/:id", usersHandler.GetByID)
		users.PUT("/:id", middlewares.RequireJSON(), usersHandler.UpdateByID)
		users.DELETE("/:id", usersHandler.DeleteByID)
	}

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondNotFound(ctx, "Not Found")
	})

	return r, accounts
}

// newAccountCache picks redis when configured. A per-process cache is only
// safe in front of a per-process store: with a shared database, another
// replica's write could not invalidate it, so that case runs uncached.
func newAccountCache(cfg config.Config, d Deps) (service.AccountCache, string) {
	switch {
	case d.Redis != nil:
		return cache.NewRedis(d.Redis, cfg.CacheTTL), "redis"
	case d.Pool == nil:
		return cache.NewMemory(cfg.CacheTTL), "memory"
	default:
		return nil, ""
	}
}

// Bootstrap creates the configured admin account, if any.
func Bootstrap(ctx context.Context, cfg config.Config, accounts *service.Accounts) error {
	return accounts.EnsureBootstrapAccount(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
}
