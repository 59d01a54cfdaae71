package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/craftsquare/campaign-engine/internal/model"
)

type RecipientRepositoryInterface interface {
	BulkInsert(campaignID int, users []model.User) error
	ClaimBatch(campaignID, limit, maxAttempts int, visibility time.Duration) ([]*model.Recipient, error)
	MarkSent(id int, sentAt time.Time) (bool, error)
	RecordFailure(id int, cause string, at time.Time) error
	Stats(campaignID, maxAttempts int) (map[string]int, error)
	ListExhausted(campaignID, maxAttempts int) ([]*model.Recipient, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

// recipientInsertChunk bounds the rows per INSERT statement. Two placeholders
// per row against Postgres's 65535-parameter ceiling leaves plenty of head
// room at this size.
const recipientInsertChunk = 1000

// BulkInsert materializes one unsent recipient row per target user in
// chunked multi-row INSERTs inside a single transaction, so a failure part
// way through an arbitrarily large user directory leaves no partial fan-out.
// The email is captured here and never re-read from the user record at send
// time.
func (r *RecipientRepository) BulkInsert(campaignID int, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(users); start += recipientInsertChunk {
		end := start + recipientInsertChunk
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*2+1)
		args = append(args, campaignID)
		argPos := 2

		for _, u := range chunk {
			values = append(values, fmt.Sprintf("($1, $%d, $%d, FALSE, 0, NOW())", argPos, argPos+1))
			args = append(args, u.ID, u.Email)
			argPos += 2
		}

		query := `
        INSERT INTO campaign_recipients (campaign_id, user_id, email, sent, attempts, created_at)
        VALUES ` + strings.Join(values, ", ")

		if _, err := tx.Exec(query, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ClaimBatch atomically selects and claims up to limit unsent recipients.
// A claimed row carries a visibility timeout so an overlapping dispatcher
// run (manual trigger racing the scheduler) does not pick it up again while
// the delivery attempt is in flight. Rows at the attempt ceiling are
// excluded and surface through ListExhausted instead.
func (r *RecipientRepository) ClaimBatch(campaignID, limit, maxAttempts int, visibility time.Duration) ([]*model.Recipient, error) {
	query := `
        UPDATE campaign_recipients
        SET claimed_until = NOW() + $4::interval
        WHERE id IN (
            SELECT id FROM campaign_recipients
            WHERE campaign_id = $1
              AND sent = FALSE
              AND attempts < $2
              AND (claimed_until IS NULL OR claimed_until < NOW())
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, campaign_id, user_id, email, sent, sent_at, attempts, last_attempt_at, last_error, created_at
    `
	// Round up so a sub-second TTL never degrades to an instantly expired
	// claim.
	interval := fmt.Sprintf("%d seconds", int((visibility+time.Second-1)/time.Second))

	rows, err := r.DB.Query(query, campaignID, maxAttempts, limit, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec := &model.Recipient{}
		var lastError sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.UserID, &rec.Email, &rec.Sent,
			&rec.SentAt, &rec.Attempts, &rec.LastAttemptAt, &lastError, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.LastError = lastError.String
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// MarkSent flips the sent flag exactly once and reports whether this call
// did the flip. False means a racing run whose claim outlived ours already
// delivered the row; the caller must not count the send again.
func (r *RecipientRepository) MarkSent(id int, sentAt time.Time) (bool, error) {
	query := `
        UPDATE campaign_recipients
        SET sent = TRUE, sent_at = $1, claimed_until = NULL
        WHERE id = $2 AND sent = FALSE
    `
	res, err := r.DB.Exec(query, sentAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordFailure counts the attempt and releases the claim so the row is
// re-selected by a later batch, until the attempt ceiling shuts it out.
func (r *RecipientRepository) RecordFailure(id int, cause string, at time.Time) error {
	query := `
        UPDATE campaign_recipients
        SET attempts = attempts + 1, last_error = $1, last_attempt_at = $2, claimed_until = NULL
        WHERE id = $3
    `
	_, err := r.DB.Exec(query, cause, at, id)
	return err
}

// Stats returns sent / unsent / exhausted counts for the detail endpoint.
func (r *RecipientRepository) Stats(campaignID, maxAttempts int) (map[string]int, error) {
	query := `
        SELECT
            COUNT(*) FILTER (WHERE sent),
            COUNT(*) FILTER (WHERE NOT sent AND attempts < $2),
            COUNT(*) FILTER (WHERE NOT sent AND attempts >= $2)
        FROM campaign_recipients
        WHERE campaign_id = $1
    `
	var sent, unsent, exhausted int
	if err := r.DB.QueryRow(query, campaignID, maxAttempts).Scan(&sent, &unsent, &exhausted); err != nil {
		return nil, err
	}
	return map[string]int{
		"sent":      sent,
		"unsent":    unsent,
		"exhausted": exhausted,
	}, nil
}

// ListExhausted returns recipients that hit the retry ceiling, so an
// operator can see who never got the advertisement instead of the rows
// being retried silently forever.
func (r *RecipientRepository) ListExhausted(campaignID, maxAttempts int) ([]*model.Recipient, error) {
	query := `
        SELECT id, campaign_id, user_id, email, sent, sent_at, attempts, last_attempt_at, last_error, created_at
        FROM campaign_recipients
        WHERE campaign_id = $1 AND sent = FALSE AND attempts >= $2
        ORDER BY id
    `
	rows, err := r.DB.Query(query, campaignID, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec := &model.Recipient{}
		var lastError sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.UserID, &rec.Email, &rec.Sent,
			&rec.SentAt, &rec.Attempts, &rec.LastAttemptAt, &lastError, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.LastError = lastError.String
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
