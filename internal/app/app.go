package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/bookmarks"
	"github.com/skymark/skymark/internal/config"
	"github.com/skymark/skymark/internal/feed"
	"github.com/skymark/skymark/internal/httpserver"
	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/redis"
	"github.com/skymark/skymark/internal/scheduler"
	"github.com/skymark/skymark/internal/sources/pinned"
	redisstore "github.com/skymark/skymark/internal/store/redis"
	"github.com/skymark/skymark/internal/version"
	"github.com/skymark/skymark/internal/xrpc"
)

type App struct {
	cfg            *config.Config
	logger         logger.Logger
	server         *httpserver.Server
	redisClient    *goredis.Client
	auth           *auth.Manager
	refresher      *scheduler.SessionRefresher
	pinnedReloader *scheduler.PinnedReloader
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	client := xrpc.New(xrpc.Options{
		BaseURL:            cfg.PDSBaseURL,
		PublicBaseURL:      cfg.PublicBaseURL,
		MaxRefreshAttempts: cfg.MaxAuthRetries,
		Timeout:            cfg.RequestBudget,
	}, loggerClient)

	authManager := auth.NewManager(client, store, loggerClient)
	// The client refreshes credentials through the manager on a 401.
	client.SetCredentials(authManager)

	repo := bookmarks.NewRepository(client, cfg.Collection, loggerClient)
	assembler := feed.NewAssembler(client, store, cfg.Collection, loggerClient)
	feedCache := feed.NewMemoryCache(cfg.FeedCacheMaxAge, cfg.FeedCacheSize)

	refresher := scheduler.NewSessionRefresher(authManager, loggerClient, cfg.SessionRefreshInterval)
	authManager.OnForcedLogout(func(reason string) {
		loggerClient.Warn("forced logout", logger.String("reason", reason))
		refresher.Stop()
	})

	// Pinned feeds are optional operator configuration.
	var (
		pinnedLoader   *pinned.Loader
		pinnedReloader *scheduler.PinnedReloader
		pinnedTrigger  chan struct{}
	)
	if cfg.PinnedFile != "" {
		loggerClient.Info("pinned feeds file configured",
			logger.String("file", cfg.PinnedFile))
		pinnedLoader = pinned.NewLoader(cfg.PinnedFile)
		pinnedTrigger = make(chan struct{}, 1)
		pinnedReloader = scheduler.NewPinnedReloader(
			pinnedLoader,
			loggerClient,
			cfg.PinnedReloadInterval,
			pinnedTrigger,
		)
	} else {
		loggerClient.Info("pinned feeds file not configured, pinned feeds disabled")
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:              loggerClient,
		StartTime:           time.Now(),
		Version:             version.Version,
		Commit:              version.Commit,
		BuildDate:           version.BuildDate,
		GoVersion:           version.GoVersion,
		TimeNow:             time.Now,
		TrustProxy:          cfg.TrustProxy,
		RedisClient:         redisClient,
		Auth:                authManager,
		Client:              client,
		Repo:                repo,
		Assembler:           assembler,
		FeedCache:           feedCache,
		Pinned:              pinnedLoader,
		LoginRateLimit:      cfg.LoginRateLimit,
		LoginRateWindow:     cfg.LoginRateWindow,
		PinnedReloadTrigger: pinnedTrigger,
		// Outlives the request that triggers it; the refresher owns
		// its own shutdown via Stop.
		StartRefresher: func() { refresher.Start(context.Background()) },
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:            cfg,
		logger:         loggerClient,
		server:         server,
		redisClient:    redisClient,
		auth:           authManager,
		refresher:      refresher,
		pinnedReloader: pinnedReloader,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting skymark v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("skymark %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Check the persisted session up front so a stale token does not
	// surprise the first authenticated request.
	if sess, err := a.auth.CurrentSession(ctx); err != nil {
		a.logger.Warn("failed to load stored session", logger.Error(err))
	} else if sess != nil {
		if a.auth.CheckValidity(ctx, sess) {
			a.logger.Info("stored session is valid",
				logger.String("handle", sess.Handle))
			a.refresher.Start(ctx)
			a.logger.Info("session refresher started",
				logger.Duration("interval", a.cfg.SessionRefreshInterval))
		} else {
			a.logger.Info("stored session no longer valid, login required")
		}
	}

	// Start pinned feeds reloader (if enabled)
	if a.pinnedReloader != nil {
		if err := a.pinnedReloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start pinned feeds reloader: %w", err)
		}
		a.logger.Info("pinned feeds reloader started",
			logger.Duration("interval", a.cfg.PinnedReloadInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.refresher.Stop()

	if a.pinnedReloader != nil {
		a.pinnedReloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ skymark stopped cleanly")
	return nil
}
