package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/model"
)

func TestDispatchBatchProgressesInBoundedSteps(t *testing.T) {
	f := newFixture(250)

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPending, created.Status)
	assert.Equal(t, 250, created.TotalUsers)
	assert.Equal(t, 0, created.SentCount)

	ctx := context.Background()

	res, err := f.svc.DispatchBatch(ctx, created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 100, res.SentCount)
	assert.Equal(t, model.CampaignStatusSending, res.Status)
	assert.Equal(t, 150, res.Remaining)
	assert.Equal(t, 100, res.Attempted)

	res, err = f.svc.DispatchBatch(ctx, created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 200, res.SentCount)
	assert.Equal(t, model.CampaignStatusSending, res.Status)
	assert.Equal(t, 50, res.Remaining)

	res, err = f.svc.DispatchBatch(ctx, created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 250, res.SentCount)
	assert.Equal(t, model.CampaignStatusCompleted, res.Status)
	assert.Equal(t, 0, res.Remaining)

	assert.Equal(t, 250, f.mailer.sentCount())
}

func TestDispatchBatchSentCountNeverDecreases(t *testing.T) {
	f := newFixture(30)
	f.svc.BatchSize = 10

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	last := 0
	for i := 0; i < 6; i++ {
		res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.SentCount, last)
		assert.LessOrEqual(t, res.SentCount, res.TotalUsers)
		last = res.SentCount
	}
	assert.Equal(t, 30, last)
}

func TestDispatchBatchAllDeliveriesFail(t *testing.T) {
	f := newFixture(5)
	f.mailer.failAll = true

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)

	assert.Equal(t, 0, res.SentCount)
	assert.Equal(t, model.CampaignStatusSending, res.Status)
	assert.Equal(t, 5, res.Attempted)
	assert.Equal(t, 5, res.Failed)

	for _, rec := range f.recipients.rows {
		assert.False(t, rec.Sent)
		assert.Equal(t, 1, rec.Attempts)
	}
}

func TestDispatchBatchRetriesFailedRecipients(t *testing.T) {
	f := newFixture(3)
	f.mailer.failAll = true

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	_, err = f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.mailer.sentCount())

	// Gateway recovers; re-selection delivers everyone.
	f.mailer.failAll = false
	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SentCount)
	assert.Equal(t, model.CampaignStatusCompleted, res.Status)
}

func TestDispatchBatchIsNoOpWhenCompleted(t *testing.T) {
	f := newFixture(4)

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	require.Equal(t, model.CampaignStatusCompleted, res.Status)

	again, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Attempted)
	assert.Equal(t, res.SentCount, again.SentCount)
	assert.Equal(t, model.CampaignStatusCompleted, again.Status)
	assert.Equal(t, 4, f.mailer.sentCount(), "no recipient is re-sent after success")
}

func TestDispatchBatchUnknownCampaign(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.DispatchBatch(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Equal(t, 0, f.mailer.sentCount())
}

func TestDispatchBatchMissingProduct(t *testing.T) {
	f := newFixture(3)

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	// Product disappears between initiation and dispatch.
	f.svc.ProductRepo = &memProductRepo{products: map[int]*model.Product{}}

	_, err = f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDispatchBatchAbortsOnRecipientStoreFailure(t *testing.T) {
	f := newFixture(10)
	f.svc.BatchSize = 10

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	f.recipients.failClaim = true
	_, err = f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.Error(t, err)
	assert.Equal(t, 0, f.mailer.sentCount())

	// The batch aborted, but nothing was lost: recovery resumes where the
	// recipient rows say it should.
	f.recipients.failClaim = false
	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, res.Status)
}

func TestDispatchBatchExcludesExhaustedRecipients(t *testing.T) {
	f := newFixture(3)
	f.svc.MaxAttempts = 2
	f.mailer.failFor["user2@example.com"] = true

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
		require.NoError(t, err)
	}

	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted, "recipient at the retry ceiling is no longer selected")
	assert.Equal(t, 2, res.SentCount)
	assert.Equal(t, model.CampaignStatusSending, res.Status)

	failures, err := f.svc.ListFailures(created.CampaignID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "user2@example.com", failures[0].Email)
	assert.Equal(t, 2, failures[0].Attempts)
	assert.Contains(t, failures[0].LastError, "gateway rejected")
}

func TestDispatchBatchDoesNotDoubleCountWhenClaimExpiresMidSend(t *testing.T) {
	f := newFixture(1)

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	// While the first run's delivery is in flight its claim expires, and a
	// second run takes over the row, delivers it, and counts it.
	f.mailer.onSend = func(string) {
		for id := range f.recipients.rows {
			f.recipients.expireClaim(id)
		}
		res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
		require.NoError(t, err)
		require.Equal(t, 1, res.SentCount)
		require.Equal(t, model.CampaignStatusCompleted, res.Status)
	}

	// The first run resumes after the takeover; its delivery lands but must
	// not be counted a second time.
	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)

	final, err := f.campaigns.GetByID(created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.SentCount)
	assert.LessOrEqual(t, final.SentCount, final.TotalUsers)
	assert.Equal(t, model.CampaignStatusCompleted, final.Status)
	assert.Equal(t, 2, f.mailer.sentCount(),
		"the duplicate lands at the gateway, never in the counters")
}

func TestDispatchBatchDoesNotReclaimInFlightRows(t *testing.T) {
	f := newFixture(5)
	f.svc.BatchSize = 5

	created, err := f.svc.InitiateCampaign(1)
	require.NoError(t, err)

	// First claim takes all five rows.
	batch, err := f.recipients.ClaimBatch(created.CampaignID, 5, 5, f.svc.ClaimTTL)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	// A racing dispatcher run sees nothing claimable.
	res, err := f.svc.DispatchBatch(context.Background(), created.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	assert.Equal(t, 0, f.mailer.sentCount())
}
