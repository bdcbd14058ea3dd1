package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kirved/linkly/config"
	"github.com/kirved/linkly/internal/cache"
	"github.com/kirved/linkly/internal/filter"
	"github.com/kirved/linkly/internal/handler"
	"github.com/kirved/linkly/internal/logger"
	"github.com/kirved/linkly/internal/middleware"
	"github.com/kirved/linkly/internal/quota"
	"github.com/kirved/linkly/internal/repository"
	"github.com/kirved/linkly/internal/service"
	"github.com/kirved/linkly/internal/utils"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ids, err := utils.NewIDGenerator(cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	if err != nil {
		zl.Fatal("Failed to initialize ID generator", zap.Error(err))
	}

	repo, err := repository.NewLinkRepository(
		cfg.MySQL.DSN(),
		cfg.MySQL.MaxIdleConns,
		cfg.MySQL.MaxOpenConns,
	)
	if err != nil {
		zl.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	redisStore, err := cache.NewRedisStore(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		zl.Fatal("Failed to initialize Redis store", zap.Error(err))
	}
	defer redisStore.Close()

	codeFilter := filter.NewCodeFilter(
		cfg.BloomFilter.Capacity,
		cfg.BloomFilter.FalsePositiveRate,
	)

	quotaLimiter := quota.NewLimiter(
		redisStore,
		cfg.Quota.AnonymousLimit,
		time.Duration(cfg.Quota.WindowSeconds)*time.Second,
		zl,
	)

	linkService := service.NewLinkService(repo, quotaLimiter, codeFilter, ids, zl)
	resolver := service.NewResolver(linkService, codeFilter)

	// Load existing short codes so the redirect path can reject unknown
	// codes without hitting the database.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := linkService.WarmCodeFilter(ctx); err != nil {
		zl.Warn("Failed to warm code filter", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.WithRequestLogging(zl))
	router.Use(middleware.WithOwner(cfg.Auth.JWTSecret))

	linkHandler := handler.NewLinkHandler(linkService, resolver, cfg.Server.BaseURL)

	router.GET("/health", linkHandler.HealthCheck)

	if cfg.RateLimit.Enabled {
		redirectLimiter := middleware.NewRateLimiter(redisStore.Client(), &middleware.RateLimitConfig{
			Limit:  cfg.RateLimit.Limit,
			Window: time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		}, zl)
		router.GET("/:short_code", redirectLimiter.Middleware(), linkHandler.Redirect)
	} else {
		router.GET("/:short_code", linkHandler.Redirect)
	}

	api := router.Group("/api/v1")
	{
		api.POST("/shorten", linkHandler.CreateShortLink)
		api.GET("/info/:short_code", linkHandler.GetLinkInfo)
		api.GET("/qr/:short_code", linkHandler.GetQRCode)
		api.PATCH("/links/:short_code/active", linkHandler.ToggleActive)
		api.DELETE("/links/:short_code", linkHandler.DeleteLink)
		api.POST("/links/bulk/active", linkHandler.BulkToggleActive)
		api.POST("/links/bulk/delete", linkHandler.BulkDelete)
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zl.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}

	zl.Info("Server exited")
}
