package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
)

// ExecutionNotifier is told about every deferred order the sweeper
// processes, so the service layer can publish events without the engine
// depending on it.
type ExecutionNotifier interface {
	DeferredOrderProcessed(ctx context.Context, exec *Execution)
}

// Sweeper periodically executes deferred orders whose waiting period has
// passed. Each order runs in its own unit of work, so one failure never
// blocks the rest of the batch.
type Sweeper struct {
	interval time.Duration
	batch    int
	engine   *Engine
	notifier ExecutionNotifier
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper that checks for due orders every interval
// and executes up to batch of them per tick.
func NewSweeper(interval time.Duration, batch int, engine *Engine, notifier ExecutionNotifier, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		interval: interval,
		batch:    batch,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// tick executes the due orders and returns how many it processed,
// FAILED ones included.
func (s *Sweeper) tick(ctx context.Context) int {
	ids, err := s.engine.DueOrders(ctx, s.batch)
	if err != nil {
		s.logger.Error("list due orders", slog.String("error", err.Error()))
		return 0
	}

	processed := 0
	for _, id := range ids {
		exec, err := s.engine.ExecuteDeferredOrder(ctx, id)
		if exec != nil {
			processed++
			if s.notifier != nil {
				s.notifier.DeferredOrderProcessed(ctx, exec)
			}
		}
		switch {
		case err == nil, errors.Is(err, domain.ErrAlreadyProcessed):
			// Already processed means it was executed through the API
			// between listing and now.
		case exec != nil:
			s.logger.Warn("deferred order failed",
				slog.String("order_id", id),
				slog.String("reason", err.Error()),
			)
		default:
			s.logger.Error("execute deferred order",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return processed
}
