package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
)

// cartPush is one full-cart write. Later pushes supersede earlier ones.
type cartPush struct {
	seq     uint64
	token   string
	userID  string
	entries []api.CartEntry
}

// PushStats counts cart writes handled by the queue
type PushStats struct {
	Enqueued  uint64
	Sent      uint64
	Failed    uint64
	Coalesced uint64
	LastSeq   uint64 // sequence number of the last write that reached the server
}

type saveFunc func(ctx context.Context, token, userID string, entries []api.CartEntry) error

// pushQueue serializes cart writes through one worker. Only the newest
// pending write is kept, so the last state enqueued is the last state sent.
type pushQueue struct {
	mu       sync.Mutex
	pending  *cartPush
	seq      uint64
	idle     chan struct{} // non-nil while work is pending or in flight
	stats    PushStats
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	save     saveFunc
	debounce time.Duration
	timeout  time.Duration
	logger   core.Logger
	metrics  core.Metrics
}

func newPushQueue(save saveFunc, debounce time.Duration, logger core.Logger, metrics core.Metrics) *pushQueue {
	q := &pushQueue{
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		save:     save,
		debounce: debounce,
		timeout:  2 * time.Minute,
		logger:   logger,
		metrics:  metrics,
	}
	go q.run()
	return q
}

// enqueue replaces any pending write with this one and returns its sequence
func (q *pushQueue) enqueue(token, userID string, entries []api.CartEntry) uint64 {
	q.mu.Lock()
	q.seq++
	if q.pending != nil {
		q.stats.Coalesced++
	}
	q.pending = &cartPush{seq: q.seq, token: token, userID: userID, entries: entries}
	q.stats.Enqueued++
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	seq := q.seq
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return seq
}

func (q *pushQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}

		if q.debounce > 0 {
			timer := time.NewTimer(q.debounce)
			select {
			case <-timer.C:
			case <-q.stop:
				timer.Stop()
				q.drain()
				return
			}
		}
		q.drain()
	}
}

// drain sends until nothing is pending, then marks the queue idle
func (q *pushQueue) drain() {
	for {
		q.mu.Lock()
		job := q.pending
		q.pending = nil
		if job == nil {
			if q.idle != nil {
				close(q.idle)
				q.idle = nil
			}
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		err := q.send(job)

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Sent++
			q.stats.LastSeq = job.seq
		}
		q.mu.Unlock()
	}
}

func (q *pushQueue) send(job *cartPush) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cart push panicked: %v", r)
			q.logger.Error("Cart push panicked", map[string]interface{}{
				"operation": "cart_push",
				"seq":       job.seq,
				"error":     err,
			})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err = q.save(ctx, job.token, job.userID, job.entries)
	duration := time.Since(start)

	if err != nil {
		// The in-memory cart stays as it is; the next mutation resends
		// the full state.
		q.logger.Error("Cart push failed", map[string]interface{}{
			"operation":   "cart_push",
			"user_id":     job.userID,
			"seq":         job.seq,
			"lines":       len(job.entries),
			"error":       err,
			"duration_ms": duration.Milliseconds(),
		})
		q.metrics.Counter(ctx, "storefront.cart.push", 1, map[string]string{"result": "failure"})
		return err
	}

	q.logger.Debug("Cart pushed", map[string]interface{}{
		"operation":   "cart_push",
		"user_id":     job.userID,
		"seq":         job.seq,
		"lines":       len(job.entries),
		"duration_ms": duration.Milliseconds(),
	})
	q.metrics.Counter(ctx, "storefront.cart.push", 1, map[string]string{"result": "success"})
	q.metrics.Histogram(ctx, "storefront.cart.push.duration_ms", float64(duration.Milliseconds()), nil)
	return nil
}

// flush waits until every enqueued write has been attempted
func (q *pushQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *pushQueue) snapshotStats() PushStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// close stops the worker after the pending write, if any, is attempted
func (q *pushQueue) close(ctx context.Context) error {
	err := q.flush(ctx)
	q.stopOnce.Do(func() { close(q.stop) })
	select {
	case <-q.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
