package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/application"
)

const sweepBatchSize = 100

// SettlementWorker periodically completes refunds that have sat in
// pending_refund past the payout window. It is the "system" trigger
// for transitions a reconciliation job owns rather than a user.
type SettlementWorker struct {
	cron         *cron.Cron
	service      *application.ReservationService
	schedule     string
	payoutWindow time.Duration
	logger       *zap.Logger
}

// NewSettlementWorker creates a SettlementWorker with the given cron
// schedule and payout window.
func NewSettlementWorker(service *application.ReservationService, schedule string, payoutWindow time.Duration, logger *zap.Logger) *SettlementWorker {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &SettlementWorker{
		cron:         c,
		service:      service,
		schedule:     schedule,
		payoutWindow: payoutWindow,
		logger:       logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (w *SettlementWorker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.sweep); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("settlement worker started",
		zap.String("schedule", w.schedule),
		zap.Duration("payout_window", w.payoutWindow),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep.
func (w *SettlementWorker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("settlement worker stopped")
}

func (w *SettlementWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	advanced, err := w.service.SweepPendingRefunds(ctx, w.payoutWindow, sweepBatchSize)
	if err != nil {
		w.logger.Error("refund sweep failed", zap.Error(err))
		return
	}
	if advanced > 0 {
		w.logger.Info("refund sweep advanced reservations", zap.Int("count", advanced))
	}
}
