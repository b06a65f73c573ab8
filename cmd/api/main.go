package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notify-api/internal/config"
	"github.com/jwalitptl/notify-api/internal/email"
	"github.com/jwalitptl/notify-api/internal/handler"
	accountHandler "github.com/jwalitptl/notify-api/internal/handler/account"
	authHandler "github.com/jwalitptl/notify-api/internal/handler/auth"
	inviteHandler "github.com/jwalitptl/notify-api/internal/handler/invite"
	notificationHandler "github.com/jwalitptl/notify-api/internal/handler/notification"
	"github.com/jwalitptl/notify-api/internal/middleware"
	"github.com/jwalitptl/notify-api/internal/repository/postgres"
	"github.com/jwalitptl/notify-api/internal/router"
	accountService "github.com/jwalitptl/notify-api/internal/service/account"
	authService "github.com/jwalitptl/notify-api/internal/service/auth"
	inviteService "github.com/jwalitptl/notify-api/internal/service/invite"
	notificationService "github.com/jwalitptl/notify-api/internal/service/notification"
	"github.com/jwalitptl/notify-api/pkg/auth"
	"github.com/jwalitptl/notify-api/pkg/logger"
	redisbroker "github.com/jwalitptl/notify-api/pkg/messaging/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(nil)
	zl := lg.Zerolog()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)
	tokenRepo := postgres.NewTokenRepository(baseRepo)
	inviteRepo := postgres.NewInviteRepository(baseRepo)

	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Expiry:        time.Duration(cfg.JWT.ExpiryHours) * time.Hour,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiryHours) * time.Hour,
	})
	emailSvc := email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		BaseURL:  cfg.SMTP.BaseURL,
	})

	notificationSvc := notificationService.NewService(notificationRepo, zl)
	authSvc := authService.NewService(userRepo, tokenRepo, jwtSvc, emailSvc, zl)
	accountSvc := accountService.NewService(userRepo, zl)
	inviteSvc := inviteService.NewService(inviteRepo, notificationSvc, zl)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	h := handler.NewHandler()
	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		accountHandler.NewHandler(accountSvc),
		inviteHandler.NewHandler(inviteSvc),
		notificationHandler.NewHandler(notificationSvc, broker),
		h,
		router.Config{
			RateLimit:     rate.Limit(cfg.Server.RateLimit),
			RateBurst:     cfg.Server.RateBurst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "notify_api",
			ProducerToken: cfg.Notifications.ProducerToken,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
