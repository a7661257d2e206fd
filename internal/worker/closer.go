// Package worker runs periodic ledger maintenance.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/ledger"
)

// Ledger is the part of the bridge client the closer needs.
type Ledger interface {
	ProposalIDs(ctx context.Context, status ledger.Status) ([]int64, error)
	Proposal(ctx context.Context, id int64) (*ledger.Proposal, error)
	Close(ctx context.Context, id int64) (ledger.Result, error)
}

// Closer periodically closes active proposals whose voting deadline has
// passed.
type Closer struct {
	ledger   Ledger
	logger   *zap.Logger
	interval time.Duration
	backoff  time.Duration
	now      func() time.Time

	// retryAt holds proposals whose last close attempt failed.
	retryAt map[int64]time.Time

	stopChan chan struct{}
	done     chan struct{}
	ticker   *time.Ticker
}

func NewCloser(l Ledger, interval time.Duration, logger *zap.Logger) *Closer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Closer{
		ledger:   l,
		logger:   logger.Named("closer"),
		interval: interval,
		backoff:  30 * time.Minute,
		now:      time.Now,
		retryAt:  make(map[int64]time.Time),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. A zero interval disables the closer.
func (w *Closer) Start() {
	if w == nil || w.interval <= 0 {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
	w.logger.Info("proposal closer started", zap.Duration("interval", w.interval))
}

// Stop ends the loop and waits for a running tick to finish.
func (w *Closer) Stop() {
	if w == nil || w.ticker == nil {
		return
	}
	close(w.stopChan)
	w.ticker.Stop()
	<-w.done
}

func (w *Closer) loop() {
	defer close(w.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

// tick closes every ended active proposal and returns how many were closed.
func (w *Closer) tick(ctx context.Context) int {
	now := w.now()
	ids, err := w.ledger.ProposalIDs(ctx, ledger.StatusActive)
	if err != nil {
		w.logger.Warn("failed to list active proposals", zap.Error(err))
		return 0
	}

	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return closed
		}
		if at, ok := w.retryAt[id]; ok && now.Before(at) {
			continue
		}

		p, err := w.ledger.Proposal(ctx, id)
		if err != nil {
			if !errors.Is(err, ledger.ErrNotFound) {
				w.logger.Warn("failed to load proposal", zap.Int64("proposal", id), zap.Error(err))
			}
			continue
		}
		if !p.Ended(now) {
			continue
		}

		res, err := w.ledger.Close(ctx, id)
		if err == nil && !res.Success {
			err = errors.New(res.Error)
		}
		if err != nil {
			w.logger.Warn("failed to close proposal", zap.Int64("proposal", id), zap.Error(err))
			// Back off so a stuck proposal is not retried every tick.
			w.retryAt[id] = now.Add(w.backoff)
			continue
		}
		delete(w.retryAt, id)
		closed++
		w.logger.Info("closed ended proposal",
			zap.Int64("proposal", id),
			zap.String("park", p.ParkName),
			zap.String("transaction", res.TransactionID),
		)
	}
	return closed
}
