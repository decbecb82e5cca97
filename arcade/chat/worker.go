// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker drains the pending-message queue into the relational store.
// Messages stay readable from Redis the whole time, so a crash between
// pop and insert loses at most one batch of durability lag, never the
// live view.
type Worker struct {
	log      *zap.Logger
	messages Messages
	store    *Store

	batchSize int
	popWait   time.Duration
	retryWait time.Duration
}

// NewWorker returns a persistence worker over the chat store.
func NewWorker(log *zap.Logger, messages Messages, store *Store) *Worker {
	return &Worker{
		log:       log,
		messages:  messages,
		store:     store,
		batchSize: 100,
		popWait:   time.Second,
		retryWait: time.Second,
	}
}

// Run pops batches until the context is canceled.
func (worker *Worker) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		batch, err := worker.store.PopPending(ctx, worker.batchSize, worker.popWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			worker.log.Warn("pending pop failed", zap.Error(err))
			if !sleep(ctx, worker.retryWait) {
				return nil
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		if err := worker.messages.InsertBatch(ctx, batch); err != nil {
			worker.log.Error("message batch insert failed",
				zap.Int("count", len(batch)),
				zap.Error(err))
			// The batch is already off the queue; put it back so a
			// store outage delays persistence instead of dropping it.
			if err := worker.store.RequeuePending(ctx, batch); err != nil {
				worker.log.Error("pending requeue failed",
					zap.Int("count", len(batch)),
					zap.Error(err))
			}
			if !sleep(ctx, worker.retryWait) {
				return nil
			}
			continue
		}
		mon.IntVal("chat_persisted_batch").Observe(int64(len(batch)))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
