// internal/model/recipient.go
package model

import "time"

// Recipient is one planned email send: a (campaign, user) pair with the
// address captured at campaign-initiation time.
type Recipient struct {
	ID            int        `db:"id" json:"id"`
	CampaignID    int        `db:"campaign_id" json:"campaign_id"`
	UserID        int        `db:"user_id" json:"user_id"`
	Email         string     `db:"email" json:"email"`
	Sent          bool       `db:"sent" json:"sent"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError     string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
