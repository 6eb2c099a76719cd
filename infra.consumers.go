package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// consumerRetryDelay is the pause after a failed pop.
const consumerRetryDelay = time.Second

var _ Consumer = (*archiveConsumer)(nil)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// archiveConsumer replays the books change feed into the archive.
type archiveConsumer struct {
	logger  *zap.Logger
	clock   TickerClocker
	queue   Queuer
	archive BookArchive
	delay   time.Duration
}

func NewArchiveConsumer(logger *zap.Logger, clock TickerClocker, q Queuer, archive BookArchive) *archiveConsumer {
	return &archiveConsumer{logger: logger, clock: clock, queue: q, archive: archive, delay: consumerRetryDelay}
}

// Consume pops events until the context is done. Failures on one event are
// logged and never stop the loop.
func (ac *archiveConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, event, err := ac.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			ac.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			ac.logger.Error("consumer: error on queue pop call", zap.String("qid", qid), zap.Error(err))
			if !ac.wait(ctx) {
				ac.logger.Info("consumer: backoff: context is done: exit", zap.String("reason", ctx.Err().Error()))
				return nil
			}
			continue
		}

		ac.apply(ctx, event)
	}
}

// wait pauses for the retry delay and reports false if the context ends first.
func (ac *archiveConsumer) wait(ctx context.Context) bool {
	ticker := ac.clock.NewTicker(ac.delay)
	defer ticker.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
		return true
	}
}

func (ac *archiveConsumer) apply(ctx context.Context, event BookEvent) {
	switch event.Kind {
	case SavedEvent, QuantityEvent:
		if err := ac.archive.Put(ctx, event.Book); err != nil {
			ac.logger.Error("consumer: failed to archive", zap.String("kind", event.Kind), zap.Any("book", event.Book), zap.Error(err))
		}
	case DeletedEvent:
		if err := ac.archive.Remove(ctx, event.Book.ID); err != nil {
			ac.logger.Error("consumer: failed to remove", zap.Int64("book.id", event.Book.ID), zap.Error(err))
		}
	default:
		ac.logger.Warn("consumer: received event of unknown kind", zap.String("kind", event.Kind), zap.Int64("book.id", event.Book.ID))
	}
}
