// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/mailer"
	"github.com/craftsquare/campaign-engine/internal/metrics"
	"github.com/craftsquare/campaign-engine/internal/model"
	"github.com/craftsquare/campaign-engine/internal/queue"
	"github.com/craftsquare/campaign-engine/internal/repository"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	UserRepo      repository.UserRepositoryInterface
	ProductRepo   repository.ProductRepositoryInterface
	Mailer        mailer.Mailer
	Publisher     queue.Publisher // optional; nil disables the dispatch kick
	Metrics       *metrics.Metrics
	Logger        *zap.Logger

	BatchSize     int
	MaxAttempts   int
	ClaimTTL      time.Duration
	PublicBaseURL string
}

// InitiateResult is returned synchronously to the admin operator; actual
// sending happens later through the dispatcher.
type InitiateResult struct {
	CampaignID int       `json:"campaign_id"`
	TotalUsers int       `json:"total_users"`
	SentCount  int       `json:"sent_count"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type CampaignDetails struct {
	model.Campaign
	Remaining int            `json:"remaining"`
	Stats     map[string]int `json:"stats"`
}

// InitiateCampaign creates the campaign row and fans out one recipient row
// per registered user. No email is sent at this stage.
func (s *CampaignService) InitiateCampaign(productID int) (*InitiateResult, error) {
	product, err := s.ProductRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, appErrors.NewProductNotFound(productID)
	}

	users, err := s.UserRepo.ListAll()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, appErrors.ErrNoRecipients
	}

	campaign := &model.Campaign{
		ProductID:   productID,
		TotalUsers:  len(users),
		SentCount:   0,
		Status:      model.CampaignStatusPending,
		SentUserIDs: []int64{},
	}
	if err := s.CampaignRepo.Create(campaign); err != nil {
		return nil, err
	}

	if err := s.RecipientRepo.BulkInsert(campaign.ID, users); err != nil {
		// Undo the campaign row; otherwise the scheduler would tick an
		// orphan pending campaign with nothing to claim forever.
		if delErr := s.CampaignRepo.Delete(campaign.ID); delErr != nil {
			s.Logger.Error("failed to remove campaign after fan-out failure",
				zap.Int("campaign_id", campaign.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("fan out recipients for campaign %d: %w", campaign.ID, err)
	}

	s.Logger.Info("campaign initiated",
		zap.Int("campaign_id", campaign.ID),
		zap.Int("product_id", productID),
		zap.Int("total_users", len(users)),
	)

	// Best effort: kick the first batch through the queue so it does not
	// wait for the next scheduler tick.
	if s.Publisher != nil {
		if err := s.Publisher.PublishDispatch(campaign.ID); err != nil {
			s.Logger.Warn("failed to enqueue dispatch kick",
				zap.Int("campaign_id", campaign.ID),
				zap.Error(err),
			)
		}
	}

	return &InitiateResult{
		CampaignID: campaign.ID,
		TotalUsers: campaign.TotalUsers,
		SentCount:  0,
		Status:     campaign.Status,
		CreatedAt:  campaign.CreatedAt,
	}, nil
}

// ListCampaigns returns every campaign with its product summary and progress.
func (s *CampaignService) ListCampaigns() ([]model.CampaignSummary, error) {
	return s.CampaignRepo.List()
}

// GetCampaignDetails returns one campaign with per-recipient stats.
func (s *CampaignService) GetCampaignDetails(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.RecipientRepo.Stats(campaignID, s.MaxAttempts)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{
		Campaign:  *campaign,
		Remaining: campaign.Remaining(),
		Stats:     stats,
	}, nil
}

// ListFailures returns the recipients that hit the retry ceiling for a
// campaign, so the operator sees them instead of silent indefinite retry.
func (s *CampaignService) ListFailures(campaignID int) ([]*model.Recipient, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.RecipientRepo.ListExhausted(campaignID, s.MaxAttempts)
}

// SendTestEmail renders the advertisement for a product and sends a single
// copy to the given address. Campaign and recipient state are not touched.
func (s *CampaignService) SendTestEmail(ctx context.Context, productID int, email string) error {
	product, err := s.ProductRepo.GetByID(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return appErrors.NewProductNotFound(productID)
	}

	subject, html := mailer.RenderAdvertisement(product, s.PublicBaseURL)
	return s.Mailer.Send(ctx, email, subject, html)
}
