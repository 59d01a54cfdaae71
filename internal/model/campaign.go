// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusPending   = "pending"
	CampaignStatusSending   = "sending"
	CampaignStatusCompleted = "completed"
)

type Campaign struct {
	ID          int        `db:"id" json:"id"`
	ProductID   int        `db:"product_id" json:"product_id"`
	TotalUsers  int        `db:"total_users" json:"total_users"`
	SentCount   int        `db:"sent_count" json:"sent_count"`
	Status      string     `db:"status" json:"status"`
	SentUserIDs []int64    `db:"sent_user_ids" json:"sent_user_ids,omitempty"`
	LastSentAt  *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Remaining is how many recipients still need a successful delivery.
func (c *Campaign) Remaining() int {
	return c.TotalUsers - c.SentCount
}

// CampaignSummary is a campaign joined with the product it advertises,
// as returned by the listing endpoint.
type CampaignSummary struct {
	Campaign
	ProductTitle string `json:"product_title"`
	ProductSlug  string `json:"product_slug"`
}
