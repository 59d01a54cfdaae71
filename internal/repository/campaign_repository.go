package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	List() ([]model.CampaignSummary, error)
	ListActive() ([]*model.Campaign, error)
	MarkSending(campaignID int) error
	RecordSend(campaignID, userID int, sentAt time.Time) (sentCount int, status string, err error)
	Delete(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusPending
	}
	query := `
        INSERT INTO campaigns (product_id, total_users, sent_count, status, sent_user_ids, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.ProductID, c.TotalUsers, c.SentCount, c.Status, pq.Array(c.SentUserIDs), c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, product_id, total_users, sent_count, status, sent_user_ids, last_sent_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.ProductID, &c.TotalUsers, &c.SentCount, &c.Status,
		pq.Array(&c.SentUserIDs), &c.LastSentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) List() ([]model.CampaignSummary, error) {
	query := `
        SELECT c.id, c.product_id, c.total_users, c.sent_count, c.status,
               c.last_sent_at, c.created_at, c.updated_at,
               p.title, p.slug
        FROM campaigns c
        JOIN products p ON p.id = c.product_id
        ORDER BY c.id DESC
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []model.CampaignSummary{}
	for rows.Next() {
		var s model.CampaignSummary
		if err := rows.Scan(
			&s.ID, &s.ProductID, &s.TotalUsers, &s.SentCount, &s.Status,
			&s.LastSentAt, &s.CreatedAt, &s.UpdatedAt,
			&s.ProductTitle, &s.ProductSlug,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListActive returns campaigns the scheduler still has work for.
func (r *CampaignRepository) ListActive() ([]*model.Campaign, error) {
	query := `
        SELECT id, product_id, total_users, sent_count, status, sent_user_ids, last_sent_at, created_at, updated_at
        FROM campaigns
        WHERE status IN ($1, $2)
        ORDER BY id
    `
	rows, err := r.DB.Query(query, model.CampaignStatusPending, model.CampaignStatusSending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(
			&c.ID, &c.ProductID, &c.TotalUsers, &c.SentCount, &c.Status,
			pq.Array(&c.SentUserIDs), &c.LastSentAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// MarkSending claims a pending campaign for its first dispatch run. The
// status guard makes the transition a no-op when a racing run got there first.
func (r *CampaignRepository) MarkSending(campaignID int) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	_, err := r.DB.Exec(query, model.CampaignStatusSending, campaignID, model.CampaignStatusPending)
	return err
}

// RecordSend advances the campaign counters for one delivered recipient.
// The whole update runs in a single statement so sent_count stays monotonic
// under concurrent dispatcher runs, and status flips to completed exactly
// when the counter reaches total_users.
func (r *CampaignRepository) RecordSend(campaignID, userID int, sentAt time.Time) (int, string, error) {
	query := `
        UPDATE campaigns
        SET sent_count = sent_count + 1,
            sent_user_ids = CASE
                WHEN $2::bigint = ANY(sent_user_ids) THEN sent_user_ids
                ELSE array_append(sent_user_ids, $2::bigint)
            END,
            status = CASE
                WHEN sent_count + 1 >= total_users THEN 'completed'
                ELSE 'sending'
            END,
            last_sent_at = $3,
            updated_at = NOW()
        WHERE id = $1
        RETURNING sent_count, status
    `
	var sentCount int
	var status string
	err := r.DB.QueryRow(query, campaignID, userID, sentAt).Scan(&sentCount, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, "", appErrors.NewCampaignNotFound(campaignID)
		}
		return 0, "", err
	}
	return sentCount, status, nil
}

// Delete removes a campaign and, through the cascading constraint, any
// recipient rows it fanned out. Used to undo an initiation that failed
// before any sending started.
func (r *CampaignRepository) Delete(campaignID int) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
