package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/metrics"
	"github.com/craftsquare/campaign-engine/internal/model"
	"github.com/craftsquare/campaign-engine/internal/service"
)

// In-memory fakes mirroring the persistence semantics the dispatcher relies
// on: monotonic counters, one-way sent flags, claim visibility timeouts.

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int

	failRecordSend bool
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
}

func (r *memCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	c.CreatedAt = time.Now()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *memCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) List() ([]model.CampaignSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.CampaignSummary{}
	for _, c := range r.campaigns {
		out = append(out, model.CampaignSummary{Campaign: *c})
	}
	return out, nil
}

func (r *memCampaignRepo) ListActive() ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.CampaignStatusPending || c.Status == model.CampaignStatusSending {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCampaignRepo) Delete(campaignID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, campaignID)
	return nil
}

func (r *memCampaignRepo) MarkSending(campaignID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok && c.Status == model.CampaignStatusPending {
		c.Status = model.CampaignStatusSending
	}
	return nil
}

func (r *memCampaignRepo) RecordSend(campaignID, userID int, sentAt time.Time) (int, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRecordSend {
		return 0, "", fmt.Errorf("campaign store unreachable")
	}
	c, ok := r.campaigns[campaignID]
	if !ok {
		return 0, "", appErrors.NewCampaignNotFound(campaignID)
	}
	c.SentCount++
	found := false
	for _, id := range c.SentUserIDs {
		if id == int64(userID) {
			found = true
			break
		}
	}
	if !found {
		c.SentUserIDs = append(c.SentUserIDs, int64(userID))
	}
	if c.SentCount >= c.TotalUsers {
		c.Status = model.CampaignStatusCompleted
	} else {
		c.Status = model.CampaignStatusSending
	}
	c.LastSentAt = &sentAt
	return c.SentCount, c.Status, nil
}

type memRecipientRepo struct {
	mu     sync.Mutex
	rows   map[int]*model.Recipient
	claims map[int]time.Time
	nextID int

	failClaim      bool
	failBulkInsert bool
}

func newMemRecipientRepo() *memRecipientRepo {
	return &memRecipientRepo{rows: map[int]*model.Recipient{}, claims: map[int]time.Time{}, nextID: 1}
}

func (r *memRecipientRepo) BulkInsert(campaignID int, users []model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBulkInsert {
		return fmt.Errorf("recipient store unreachable")
	}
	for _, u := range users {
		r.rows[r.nextID] = &model.Recipient{
			ID:         r.nextID,
			CampaignID: campaignID,
			UserID:     u.ID,
			Email:      u.Email,
			CreatedAt:  time.Now(),
		}
		r.nextID++
	}
	return nil
}

func (r *memRecipientRepo) ClaimBatch(campaignID, limit, maxAttempts int, visibility time.Duration) ([]*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failClaim {
		return nil, fmt.Errorf("recipient store unreachable")
	}
	now := time.Now()
	out := []*model.Recipient{}
	for id := 1; id < r.nextID && len(out) < limit; id++ {
		rec, ok := r.rows[id]
		if !ok || rec.CampaignID != campaignID || rec.Sent || rec.Attempts >= maxAttempts {
			continue
		}
		if until, claimed := r.claims[id]; claimed && until.After(now) {
			continue
		}
		r.claims[id] = now.Add(visibility)
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRecipientRepo) MarkSent(id int, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok && !rec.Sent {
		rec.Sent = true
		rec.SentAt = &sentAt
		delete(r.claims, id)
		return true, nil
	}
	return false, nil
}

func (r *memRecipientRepo) expireClaim(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims[id] = time.Now().Add(-time.Second)
}

func (r *memRecipientRepo) RecordFailure(id int, cause string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok {
		rec.Attempts++
		rec.LastError = cause
		rec.LastAttemptAt = &at
		delete(r.claims, id)
	}
	return nil
}

func (r *memRecipientRepo) Stats(campaignID, maxAttempts int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"sent": 0, "unsent": 0, "exhausted": 0}
	for _, rec := range r.rows {
		if rec.CampaignID != campaignID {
			continue
		}
		switch {
		case rec.Sent:
			stats["sent"]++
		case rec.Attempts >= maxAttempts:
			stats["exhausted"]++
		default:
			stats["unsent"]++
		}
	}
	return stats, nil
}

func (r *memRecipientRepo) ListExhausted(campaignID, maxAttempts int) ([]*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Recipient{}
	for id := 1; id < r.nextID; id++ {
		rec, ok := r.rows[id]
		if ok && rec.CampaignID == campaignID && !rec.Sent && rec.Attempts >= maxAttempts {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memProductRepo struct {
	products map[int]*model.Product
}

func (r *memProductRepo) GetByID(id int) (*model.Product, error) {
	return r.products[id], nil
}

type memUserRepo struct {
	users []model.User
}

func (r *memUserRepo) ListAll() ([]model.User, error) {
	return r.users, nil
}

// fakeMailer records sends and can be told to fail everything or specific
// addresses. onSend runs once before the next delivery, outside the lock,
// to let a test interleave work while a send is "in flight".
type fakeMailer struct {
	mu       sync.Mutex
	sent     []string
	failAll  bool
	failFor  map[string]bool
	subjects []string
	onSend   func(to string)
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	hook := m.onSend
	m.onSend = nil
	m.mu.Unlock()
	if hook != nil {
		hook(to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll || m.failFor[to] {
		return fmt.Errorf("gateway rejected %s", to)
	}
	m.sent = append(m.sent, to)
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakePublisher struct {
	published []int
	err       error
}

func (p *fakePublisher) PublishDispatch(campaignID int) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, campaignID)
	return nil
}

type fixture struct {
	svc        *service.CampaignService
	campaigns  *memCampaignRepo
	recipients *memRecipientRepo
	mailer     *fakeMailer
	publisher  *fakePublisher
}

func newFixture(userCount int) *fixture {
	users := make([]model.User, 0, userCount)
	for i := 1; i <= userCount; i++ {
		users = append(users, model.User{
			ID:    i,
			Name:  fmt.Sprintf("User %d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
		})
	}

	campaigns := newMemCampaignRepo()
	recipients := newMemRecipientRepo()
	m := &fakeMailer{failFor: map[string]bool{}}
	pub := &fakePublisher{}

	svc := &service.CampaignService{
		CampaignRepo:  campaigns,
		RecipientRepo: recipients,
		UserRepo:      &memUserRepo{users: users},
		ProductRepo: &memProductRepo{products: map[int]*model.Product{
			1: {ID: 1, Title: "Handwoven Sisal Basket", Description: "A sturdy market basket.", PriceCents: 3499, Slug: "handwoven-sisal-basket"},
		}},
		Mailer:        m,
		Publisher:     pub,
		Metrics:       metrics.New(),
		Logger:        zap.NewNop(),
		BatchSize:     100,
		MaxAttempts:   5,
		ClaimTTL:      2 * time.Minute,
		PublicBaseURL: "https://craftsquare.io",
	}

	return &fixture{svc: svc, campaigns: campaigns, recipients: recipients, mailer: m, publisher: pub}
}
