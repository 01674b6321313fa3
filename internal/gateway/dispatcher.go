// internal/gateway/dispatcher.go
package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const pendingResultTTL = time.Minute

// Dispatcher fans the gateway's result stream out to the position engines
// waiting on individual intents. Results that arrive before their waiter
// registers are parked briefly so the submit/await handshake has no race.
type Dispatcher struct {
	gw     Gateway
	logger *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan Result
	pending map[string]pendingResult
}

type pendingResult struct {
	result     Result
	receivedAt time.Time
}

// NewDispatcher creates a dispatcher over the gateway's result stream.
// Run must be started for results to flow.
func NewDispatcher(gw Gateway, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		gw:      gw,
		logger:  logger.Named("dispatcher"),
		waiters: make(map[string]chan Result),
		pending: make(map[string]pendingResult),
	}
}

// Run consumes gateway results until ctx is cancelled or the stream closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	sweep := time.NewTicker(pendingResultTTL)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-d.gw.Results():
			if !ok {
				return nil
			}
			d.deliver(res)
		case <-sweep.C:
			d.prunePending()
		}
	}
}

// Await returns a channel that receives the result for intentID. The
// channel is buffered; the result is delivered at most once. Callers that
// stop waiting (timeout) must call Forget.
func (d *Dispatcher) Await(intentID string) <-chan Result {
	ch := make(chan Result, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[intentID]; ok {
		delete(d.pending, intentID)
		ch <- p.result
		return ch
	}
	d.waiters[intentID] = ch
	return ch
}

// Forget drops interest in an intent. A result arriving afterwards is
// logged and discarded.
func (d *Dispatcher) Forget(intentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waiters, intentID)
	delete(d.pending, intentID)
}

func (d *Dispatcher) deliver(res Result) {
	d.mu.Lock()
	ch, ok := d.waiters[res.IntentID]
	if ok {
		delete(d.waiters, res.IntentID)
	} else {
		d.pending[res.IntentID] = pendingResult{result: res, receivedAt: time.Now()}
	}
	d.mu.Unlock()

	if ok {
		ch <- res
	}
}

func (d *Dispatcher) prunePending() {
	cutoff := time.Now().Add(-pendingResultTTL)

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, p := range d.pending {
		if p.receivedAt.Before(cutoff) {
			// Usually a fill that landed after its engine gave up waiting.
			d.logger.Warn("Discarding unclaimed gateway result",
				zap.String("intent_id", id),
				zap.Bool("filled", p.result.Filled))
			delete(d.pending, id)
		}
	}
}
