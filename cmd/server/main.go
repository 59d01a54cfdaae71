// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/craftsquare/campaign-engine/internal/auth"
	"github.com/craftsquare/campaign-engine/internal/config"
	"github.com/craftsquare/campaign-engine/internal/controller"
	"github.com/craftsquare/campaign-engine/internal/db"
	"github.com/craftsquare/campaign-engine/internal/distlock"
	"github.com/craftsquare/campaign-engine/internal/mailer"
	"github.com/craftsquare/campaign-engine/internal/metrics"
	"github.com/craftsquare/campaign-engine/internal/queue"
	"github.com/craftsquare/campaign-engine/internal/repository"
	"github.com/craftsquare/campaign-engine/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	logger.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTPURL, cfg.FromEmail, cfg.FromName)
	if err != nil {
		logger.Fatal("failed to configure smtp mailer", zap.Error(err))
	}

	var publisher queue.Publisher
	if cfg.AMQPURL != "" {
		rabbit, err := queue.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Warn("queue unavailable, dispatch kicks disabled", zap.Error(err))
		} else {
			defer rabbit.Close()
			publisher = rabbit
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	m := metrics.New()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	userRepo := &repository.UserRepository{DB: conn}
	productRepo := &repository.ProductRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		UserRepo:      userRepo,
		ProductRepo:   productRepo,
		Mailer:        smtpMailer,
		Publisher:     publisher,
		Metrics:       m,
		Logger:        logger,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		ClaimTTL:      cfg.ClaimTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	scheduler := &service.Scheduler{
		Campaigns:  campaignRepo,
		Dispatcher: campaignService,
		Locks:      &distlock.Factory{Redis: redisClient, DB: conn, TTL: cfg.ClaimTTL},
		Metrics:    m,
		Interval:   cfg.SchedulerInterval,
		Logger:     logger,
	}
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Logger:          logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", m.Handler())

	r.Route("/email-campaigns", func(r chi.Router) {
		r.Use(auth.RequireAdmin([]byte(cfg.JWTSecret)))
		r.Get("/", campaignController.ListCampaigns)
		r.Get("/{campaignID}", campaignController.GetCampaign)
		r.Get("/{campaignID}/failures", campaignController.ListFailures)
		r.Post("/send-advertisement/{productID}", campaignController.SendAdvertisement)
		r.Post("/send-campaign/{campaignID}", campaignController.SendCampaign)
		r.Post("/test-template/{productID}", campaignController.TestTemplate)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		logger.Info("server running", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
