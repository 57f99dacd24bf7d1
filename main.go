package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usage-applet/internal/config"
	"usage-applet/internal/controllers"
	"usage-applet/internal/middleware"
	"usage-applet/internal/routes"
	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	printToken := flag.String("print-token", "", "print a stream token for the named client and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, *configPath, *printToken, logger)
	if err != nil {
		logger.Error("usage-applet failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func run(cfg *config.Config, configPath, printToken string, logger *zap.Logger) error {
	tokenExpiry, err := cfg.TokenExpiry()
	if err != nil {
		return err
	}
	auth, err := services.NewAuthService(cfg.Auth.SecretKey, "", tokenExpiry, logger.Named("auth"))
	if err != nil {
		return err
	}

	if printToken != "" {
		if !middleware.NewInputValidator().ValidateClientName(printToken) {
			return fmt.Errorf("invalid client name %q", printToken)
		}
		token, err := auth.GenerateToken(printToken)
		if err != nil {
			return err
		}
		fmt.Printf("ws://%s/ws?token=%s\n", cfg.Server.Addr, token)
		return nil
	}

	samplerCfg, err := cfg.SamplerConfig()
	if err != nil {
		return err
	}
	store, err := services.NewConfigStore(samplerCfg, logger.Named("config"))
	if err != nil {
		return err
	}

	publisher := services.NewPublisher()
	sampler := services.NewSampler(
		services.NewSystemSource(logger.Named("source")),
		store,
		publisher,
		services.SamplerOptions{HistoryLength: cfg.HistoryLength, DegradedAfter: cfg.DegradedAfter},
		logger.Named("sampler"),
	)
	watcher := services.NewConfigWatcher(configPath, store, cfg.HistoryLength, logger.Named("config-watcher"))
	hub := services.NewWebSocketHub(publisher, logger.Named("ws"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, store, publisher, sampler, hub, auth, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sampler.Run(gctx)
	})
	g.Go(func() error {
		// Hot reload is optional; the applet keeps sampling without it.
		if err := watcher.Run(gctx); err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(
	cfg *config.Config,
	store *services.ConfigStore,
	publisher *services.Publisher,
	sampler *services.Sampler,
	hub *services.WebSocketHub,
	auth *services.AuthService,
	logger *zap.Logger,
) *gin.Engine {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	security := middleware.NewSecurityLogger(logger.Named("security"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Use(middleware.IPAllowlistMiddleware(middleware.NewIPAllowlist(cfg.Server.AllowedIPs), security))
	r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(rate.Limit(50), 100), security))

	routes.RegisterSnapshotRoutes(r,
		controllers.NewSnapshotController(publisher),
		controllers.NewHealthController(sampler, hub),
	)
	routes.RegisterConfigRoutes(r, controllers.NewConfigController(store))
	routes.RegisterStreamRoutes(r, controllers.NewStreamController(hub, auth, security, nil, logger.Named("ws")))

	return r
}
