// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/mailer"
	"github.com/craftsquare/campaign-engine/internal/model"
)

// DispatchResult is the progress snapshot returned by one batch run.
type DispatchResult struct {
	CampaignID int    `json:"campaign_id"`
	SentCount  int    `json:"sent_count"`
	TotalUsers int    `json:"total_users"`
	Status     string `json:"status"`
	Remaining  int    `json:"remaining"`
	Attempted  int    `json:"attempted"`
	Failed     int    `json:"failed"`
}

// DispatchBatch performs at most one bounded batch of deliveries for the
// campaign and returns progress.
//
// Progress is persisted after every individual successful send: the
// recipient row first, then the campaign counters. One write per email is
// deliberate; everything already delivered survives a crash mid-batch.
// Delivery failures are recovered locally (attempt recorded, claim released,
// loop continues); a store failure aborts the rest of the batch and leaves
// state consistent. Invoked on a completed campaign, the claim query returns
// nothing and the run is a no-op.
func (s *CampaignService) DispatchBatch(ctx context.Context, campaignID int) (*DispatchResult, error) {
	runID := uuid.NewString()

	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	product, err := s.ProductRepo.GetByID(campaign.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, appErrors.NewProductNotFound(campaign.ProductID)
	}

	// The only transition that happens before any delivery attempt: it marks
	// the campaign as claimed by a dispatch run.
	if campaign.Status == model.CampaignStatusPending {
		if err := s.CampaignRepo.MarkSending(campaign.ID); err != nil {
			return nil, fmt.Errorf("mark campaign %d sending: %w", campaign.ID, err)
		}
		campaign.Status = model.CampaignStatusSending
	}

	batch, err := s.RecipientRepo.ClaimBatch(campaign.ID, s.BatchSize, s.MaxAttempts, s.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("claim batch for campaign %d: %w", campaign.ID, err)
	}
	s.Metrics.BatchesRun.Inc()

	subject, html := mailer.RenderAdvertisement(product, s.PublicBaseURL)

	sentCount := campaign.SentCount
	status := campaign.Status
	failed := 0

	// Sequential on purpose: one in-flight delivery keeps the gateway load
	// bounded and the progress accounting simple.
	for _, rec := range batch {
		now := time.Now()

		if err := s.Mailer.Send(ctx, rec.Email, subject, html); err != nil {
			failed++
			s.Metrics.EmailsFailed.Inc()
			s.Logger.Warn("advertisement delivery failed",
				zap.String("run_id", runID),
				zap.Int("campaign_id", campaign.ID),
				zap.Int("recipient_id", rec.ID),
				zap.Int("attempts", rec.Attempts+1),
				zap.Error(err),
			)
			if err := s.RecipientRepo.RecordFailure(rec.ID, err.Error(), now); err != nil {
				return nil, fmt.Errorf("record failure for recipient %d: %w", rec.ID, err)
			}
			continue
		}

		flipped, err := s.RecipientRepo.MarkSent(rec.ID, now)
		if err != nil {
			return nil, fmt.Errorf("mark recipient %d sent: %w", rec.ID, err)
		}
		if !flipped {
			// A run whose claim outlived ours already delivered and counted
			// this row; counting it again would push sent_count past
			// total_users.
			s.Logger.Warn("recipient already marked sent by a concurrent run",
				zap.String("run_id", runID),
				zap.Int("campaign_id", campaign.ID),
				zap.Int("recipient_id", rec.ID),
			)
			continue
		}

		sc, st, err := s.CampaignRepo.RecordSend(campaign.ID, rec.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("record send on campaign %d: %w", campaign.ID, err)
		}
		sentCount, status = sc, st
		s.Metrics.EmailsSent.Inc()
	}

	s.Logger.Info("dispatch batch finished",
		zap.String("run_id", runID),
		zap.Int("campaign_id", campaign.ID),
		zap.Int("attempted", len(batch)),
		zap.Int("failed", failed),
		zap.Int("sent_count", sentCount),
		zap.Int("total_users", campaign.TotalUsers),
		zap.String("status", status),
	)

	return &DispatchResult{
		CampaignID: campaign.ID,
		SentCount:  sentCount,
		TotalUsers: campaign.TotalUsers,
		Status:     status,
		Remaining:  campaign.TotalUsers - sentCount,
		Attempted:  len(batch),
		Failed:     failed,
	}, nil
}
