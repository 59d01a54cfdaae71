// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/craftsquare/campaign-engine/internal/config"
	"github.com/craftsquare/campaign-engine/internal/db"
	"github.com/craftsquare/campaign-engine/internal/mailer"
	"github.com/craftsquare/campaign-engine/internal/metrics"
	"github.com/craftsquare/campaign-engine/internal/model"
	"github.com/craftsquare/campaign-engine/internal/queue"
	"github.com/craftsquare/campaign-engine/internal/repository"
	"github.com/craftsquare/campaign-engine/internal/service"
)

const maxRedeliveries = 3

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

	smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTPURL, cfg.FromEmail, cfg.FromName)
	if err != nil {
		logger.Fatal("failed to configure smtp mailer", zap.Error(err))
	}

	rabbit, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal("failed to connect to queue", zap.Error(err))
	}
	defer rabbit.Close()

	campaignService := &service.CampaignService{
		CampaignRepo:  &repository.CampaignRepository{DB: conn},
		RecipientRepo: &repository.RecipientRepository{DB: conn},
		UserRepo:      &repository.UserRepository{DB: conn},
		ProductRepo:   &repository.ProductRepository{DB: conn},
		Mailer:        smtpMailer,
		Metrics:       metrics.New(),
		Logger:        logger,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		ClaimTTL:      cfg.ClaimTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	deliveries, err := rabbit.Consume()
	if err != nil {
		logger.Fatal("failed to register consumer", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	logger.Info("worker running, waiting for dispatch jobs")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Fatal("delivery channel closed")
			}

			var job queue.DispatchJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				logger.Warn("invalid dispatch job, dropping", zap.Error(err))
				d.Ack(false)
				continue
			}

			if err := drainCampaign(ctx, campaignService, job.CampaignID); err != nil {
				retries := queue.RetryCount(d.Headers)
				logger.Error("dispatch job failed",
					zap.String("job_id", job.JobID),
					zap.Int("campaign_id", job.CampaignID),
					zap.Int("retries", retries),
					zap.Error(err),
				)
				if retries < maxRedeliveries {
					// Republish with the incremented counter; nack-requeue
					// carries no state and would loop a poisoned job forever.
					if pubErr := rabbit.Redeliver(job, retries+1); pubErr != nil {
						logger.Error("failed to re-enqueue dispatch job",
							zap.String("job_id", job.JobID),
							zap.Error(pubErr),
						)
					}
				} else {
					logger.Error("dropping dispatch job after repeated failures",
						zap.String("job_id", job.JobID),
						zap.Int("campaign_id", job.CampaignID),
					)
				}
			}

			d.Ack(false)
		}
	}
}

// drainCampaign runs dispatcher batches until the campaign completes or a
// batch finds nothing left to claim (everything failed or is claimed
// elsewhere); remaining rows are the scheduler's problem.
func drainCampaign(ctx context.Context, svc *service.CampaignService, campaignID int) error {
	for {
		res, err := svc.DispatchBatch(ctx, campaignID)
		if err != nil {
			return err
		}
		if res.Status == model.CampaignStatusCompleted || res.Attempted == 0 {
			return nil
		}
	}
}
