// Command gatewayd runs the dual-plane authentication gateway in one
// process: the public edge proxy, the loopback-bound auth API it
// forwards /auth/* to, the optional admin API on its own port, and the
// periodic cleanup scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/adminapi"
	"github.com/arc-auth/gateway/internal/authapi"
	"github.com/arc-auth/gateway/internal/cache"
	"github.com/arc-auth/gateway/internal/config"
	"github.com/arc-auth/gateway/internal/db"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/mailer"
	"github.com/arc-auth/gateway/internal/middleware"
	"github.com/arc-auth/gateway/internal/proxy"
	"github.com/arc-auth/gateway/internal/ratelimiter"
	"github.com/arc-auth/gateway/internal/scheduler"
	"github.com/arc-auth/gateway/internal/token"
)

// Reload cadences for the in-memory snapshots. Pub/sub (when Redis is
// enabled) makes invalidation near-immediate; these pollers are the
// fallback path that works single-instance with no Redis at all.
const (
	jwtConfigPollInterval = 15 * time.Second
	rulesPollInterval     = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.GetLogger()

	database, err := db.NewDatabase(db.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxConnections,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	conn := database.DB()
	jwtRepo := db.NewJwtConfigRepo(conn)
	smtpRepo := db.NewSmtpConfigRepo(conn)
	ruleRepo := db.NewRateLimitRuleRepo(conn)
	routeRepo := db.NewRouteRepo(conn)
	adminRepo := db.NewAdminRepo(conn)
	apiKeyRepo := db.NewApiKeyRepo(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedStore(ctx, cfg, jwtRepo, smtpRepo, ruleRepo); err != nil {
		log.Fatal().Err(err).Msg("store seeding failed")
	}
	bootstrapAdmin(ctx, adminRepo)

	jwtCfg, err := jwtRepo.Get(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reading jwt config failed")
	}
	tokens := token.NewManager(
		jwtCfg.Secret,
		time.Duration(jwtCfg.AccessTokenTTL)*time.Second,
		time.Duration(jwtCfg.RefreshTokenTTL)*time.Second,
		time.Duration(jwtCfg.AutoRefreshThreshold)*time.Second,
	)

	signals, err := cache.NewCache(cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		Enabled:  cfg.Redis.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer signals.Close()

	// Route cache: static config routes plus enabled dynamic routes,
	// ahead of the implicit /auth/* rule to the loopback auth API.
	authAPIBase := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.APIPort)
	routeCache := proxy.NewRouteCache(authAPIBase)
	reloadRoutes := func() {
		dynamic, err := routeRepo.ListEnabled(ctx)
		if err != nil {
			logger.Proxy().Warn().Err(err).Msg("route reload failed")
			return
		}
		routeCache.Set(cfg.Routing.Routes, dynamic)
	}
	reloadRoutes()

	limiter := ratelimiter.New()
	defer limiter.Close()
	ruleSet := ratelimiter.NewRuleSet()
	reloadRules := func() {
		rules, err := ruleRepo.ListEnabled(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit rule reload failed")
			return
		}
		ruleSet.Set(rules)
	}
	reloadRules()

	reloadJwtConfig := func() {
		row, err := jwtRepo.Get(ctx)
		if err != nil {
			logger.Token().Warn().Err(err).Msg("jwt config reload failed")
			return
		}
		tokens.RotateSecret(row.Secret)
		tokens.SetTTLs(
			time.Duration(row.AccessTokenTTL)*time.Second,
			time.Duration(row.RefreshTokenTTL)*time.Second,
			time.Duration(row.AutoRefreshThreshold)*time.Second,
		)
	}

	startReloaders(ctx, signals, reloadRoutes, reloadRules, reloadJwtConfig)

	smtpCfg, err := smtpRepo.Get(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reading smtp config failed")
	}
	mail := mailer.New(mailer.Config{
		Host:     smtpCfg.Host,
		Port:     smtpCfg.Port,
		Username: smtpCfg.User,
		Password: smtpCfg.Pass,
		From:     smtpCfg.From,
	})

	sweeper := scheduler.New(conn)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("cleanup scheduler failed to start")
	}
	defer sweeper.Stop()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	authHandler := authapi.New(
		authapi.NewStore(conn),
		tokens,
		mail,
		cfg.Captcha.Enabled,
		jwtCfg.RotateRefreshOnUse,
	)
	authSrv := buildAuthServer(cfg, authHandler)

	adminHandler := adminapi.New(conn, tokens, signals, adminapi.Invalidation{
		RoutesChanged: reloadRoutes,
		RulesChanged:  reloadRules,
		SecretRotated: tokens.RotateSecret,
	})
	adminSrv := buildAdminServer(cfg, adminHandler)

	authenticator := proxy.NewAuthenticator(tokens, apiKeyRepo)
	edge := proxy.NewProxy(routeCache, authenticator, middleware.DefaultTimeoutConfig().Timeout)
	gatewaySrv := buildGatewayServer(cfg, edge, limiter, ruleSet)

	runServer := func(name string, srv *http.Server) {
		go func() {
			log.Info().Str("addr", srv.Addr).Msgf("%s listening", name)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msgf("%s failed", name)
			}
		}()
	}
	runServer("auth api", authSrv)
	if adminSrv != nil {
		runServer("admin api", adminSrv)
	}
	runServer("edge proxy", gatewaySrv)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, srv := range []*http.Server{gatewaySrv, authSrv, adminSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("forced shutdown")
		}
	}
	cancel()
	log.Info().Msg("shutdown complete")
}

// seedStore makes a fresh database usable: the JWT singleton gets a
// random secret and the configured TTLs, the SMTP singleton gets an
// empty row, and the baseline rate-limit rules are inserted if none
// exist.
func seedStore(ctx context.Context, cfg *config.Config, jwtRepo *db.JwtConfigRepo, smtpRepo *db.SmtpConfigRepo, ruleRepo *db.RateLimitRuleRepo) error {
	err := jwtRepo.EnsureSeeded(ctx,
		time.Duration(cfg.JWT.AccessTokenTTLSeconds)*time.Second,
		time.Duration(cfg.JWT.RefreshTokenTTLSeconds)*time.Second,
		time.Duration(cfg.JWT.AutoRefreshThresholdSeconds)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("seeding jwt config: %w", err)
	}
	if err := smtpRepo.EnsureSeeded(ctx); err != nil {
		return fmt.Errorf("seeding smtp config: %w", err)
	}
	if err := ruleRepo.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seeding rate limit rules: %w", err)
	}
	return nil
}

// bootstrapAdmin issues a one-shot admin registration token on a fresh
// deployment (no admins, no outstanding token) and prints it once. It is
// never persisted in the clear and never logged again.
func bootstrapAdmin(ctx context.Context, admins *db.AdminRepo) {
	n, err := admins.Count(ctx)
	if err != nil || n > 0 {
		return
	}
	outstanding, err := admins.HasUnusedRegistrationToken(ctx)
	if err != nil || outstanding {
		return
	}

	raw, err := admins.CreateRegistrationToken(ctx, 24*time.Hour)
	if err != nil {
		logger.Admin().Warn().Err(err).Msg("could not issue bootstrap registration token")
		return
	}
	fmt.Fprintf(os.Stderr,
		"no admin accounts exist. Register one within 24h via POST /admin/auth/register with token:\n  %s\n", raw)
}

// startReloaders wires each snapshot's refresh paths: a periodic poller
// (always) and a pub/sub subscription (when Redis is enabled).
func startReloaders(ctx context.Context, signals *cache.Cache, reloadRoutes, reloadRules, reloadJwtConfig func()) {
	poll := func(interval time.Duration, reload func()) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reload()
			}
		}
	}
	go poll(proxy.RefreshInterval, reloadRoutes)
	go poll(rulesPollInterval, reloadRules)
	go poll(jwtConfigPollInterval, reloadJwtConfig)

	go signals.Subscribe(ctx, cache.ChannelRoutesChanged, reloadRoutes)
	go signals.Subscribe(ctx, cache.ChannelRateLimitChanged, reloadRules)
	go signals.Subscribe(ctx, cache.ChannelSecretRotated, reloadJwtConfig)
}

// baseEngine assembles the middleware chain shared by the auth and admin
// listeners.
func baseEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(apperrors.Recovery())
	engine.Use(middleware.StructuredLoggerWithConfig(middleware.DefaultStructuredLoggerConfig()))
	engine.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.DefaultSizeLimiter())
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return engine
}

func buildAuthServer(cfg *config.Config, h *authapi.Handler) *http.Server {
	engine := baseEngine()
	h.RegisterRoutes(engine.Group("/auth"))

	// Loopback only: the auth API is reachable solely through the edge
	// proxy's implicit /auth/* forwarding rule.
	return &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Server.APIPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func buildAdminServer(cfg *config.Config, h *adminapi.Handler) *http.Server {
	if cfg.Server.AdminPort == 0 {
		return nil
	}
	engine := baseEngine()
	h.RegisterRoutes(engine)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func buildGatewayServer(cfg *config.Config, edge *proxy.Proxy, limiter *ratelimiter.Limiter, ruleSet *ratelimiter.RuleSet) *http.Server {
	engine := gin.New()

	// ReservedHeaderGuard must precede RequestID: the guard rejects
	// client-supplied X-Request-Id, RequestID then injects the
	// server-owned one.
	engine.Use(proxy.ReservedHeaderGuard())
	engine.Use(middleware.RequestID())
	engine.Use(apperrors.Recovery())
	engine.Use(middleware.StructuredLoggerWithConfig(middleware.DefaultStructuredLoggerConfig()))
	engine.Use(middleware.DefaultSizeLimiter())
	engine.Use(middleware.GzipWithExclusions(middleware.BestSpeed, []string{"/auth/"}))
	engine.Use(ratelimiter.Middleware(limiter, ruleSet))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.NoRoute(edge.Handler())

	// No listener-level write timeout: upgraded and SSE connections are
	// long-lived, and the proxy bounds ordinary requests itself.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GatewayPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
