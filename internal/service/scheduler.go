// internal/service/scheduler.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/craftsquare/campaign-engine/internal/distlock"
	"github.com/craftsquare/campaign-engine/internal/metrics"
	"github.com/craftsquare/campaign-engine/internal/model"
)

type batchDispatcher interface {
	DispatchBatch(ctx context.Context, campaignID int) (*DispatchResult, error)
}

type activeCampaignLister interface {
	ListActive() ([]*model.Campaign, error)
}

type lockFactory interface {
	For(key string) distlock.Lock
}

// Scheduler periodically runs one dispatcher batch for every campaign that
// is still pending or sending. It is an explicit background task: started on
// process init, stopped gracefully on shutdown.
type Scheduler struct {
	Campaigns  activeCampaignLister
	Dispatcher batchDispatcher
	Locks      lockFactory      // optional; nil skips cross-replica locking
	Metrics    *metrics.Metrics // optional
	Interval   time.Duration
	Logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the polling loop. The first tick fires after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.Logger.Info("campaign scheduler started", zap.Duration("interval", s.Interval))
		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("campaign scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Tick dispatches one batch per active campaign, sequentially. A failure on
// one campaign is logged and must not prevent the others from being
// attempted in the same tick.
func (s *Scheduler) Tick(ctx context.Context) {
	campaigns, err := s.Campaigns.ListActive()
	if err != nil {
		s.Logger.Error("failed to list active campaigns", zap.Error(err))
		return
	}
	if s.Metrics != nil {
		s.Metrics.ActiveCampaigns.Set(float64(len(campaigns)))
	}

	for _, c := range campaigns {
		s.dispatchOne(ctx, c.ID)
	}
}

func (s *Scheduler) dispatchOne(ctx context.Context, campaignID int) {
	if s.Locks != nil {
		lock := s.Locks.For(fmt.Sprintf("campaign:%d", campaignID))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			s.Logger.Error("lock acquire failed",
				zap.Int("campaign_id", campaignID), zap.Error(err))
			return
		}
		if !acquired {
			// another replica is on it
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				s.Logger.Warn("lock release failed",
					zap.Int("campaign_id", campaignID), zap.Error(err))
			}
		}()
	}

	res, err := s.Dispatcher.DispatchBatch(ctx, campaignID)
	if err != nil {
		s.Logger.Error("scheduled dispatch failed",
			zap.Int("campaign_id", campaignID), zap.Error(err))
		return
	}

	if res.Attempted > 0 {
		s.Logger.Info("scheduled dispatch progressed",
			zap.Int("campaign_id", campaignID),
			zap.Int("sent_count", res.SentCount),
			zap.Int("remaining", res.Remaining),
			zap.String("status", res.Status),
		)
	}
}
