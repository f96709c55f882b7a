package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SeenMarker persists the seen state of a message on the server.
type SeenMarker interface {
	MarkSeen(ctx context.Context, messageID string) error
}

// Options tunes an Acker.
type Options struct {
	// QueueSize bounds pending acknowledgements; extra ones are dropped.
	QueueSize int
	// RatePerSecond paces calls to the server. Zero or less disables pacing.
	RatePerSecond float64
	Burst         int
	// Timeout bounds a single MarkSeen call.
	Timeout time.Duration
}

// Acker drains seen acknowledgements in the background. Enqueue never
// blocks and failures are logged, never returned: a lost acknowledgement
// only affects the server's bookkeeping.
type Acker struct {
	marker  SeenMarker
	limiter *rate.Limiter
	queue   chan string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAcker creates a new acknowledgement worker.
func NewAcker(marker SeenMarker, opts Options, logger *zap.Logger) *Acker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Acker{
		marker:  marker,
		limiter: rate.NewLimiter(limit, opts.Burst),
		queue:   make(chan string, opts.QueueSize),
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Start begins draining the queue.
func (a *Acker) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)
}

// Stop stops the worker and waits for an in-flight call to return.
// Acknowledgements still queued are dropped.
func (a *Acker) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Enqueue schedules a seen acknowledgement for messageID. It reports false
// when the queue is full and the acknowledgement was dropped.
func (a *Acker) Enqueue(messageID string) bool {
	select {
	case a.queue <- messageID:
		return true
	default:
		a.logger.Warn("seen queue full, dropping acknowledgement", zap.String("msg_id", messageID))
		return false
	}
}

func (a *Acker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case id := <-a.queue:
			a.ack(ctx, id)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Acker) ack(ctx context.Context, messageID string) {
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.marker.MarkSeen(callCtx, messageID); err != nil {
		a.logger.Warn("mark seen failed", zap.Error(err), zap.String("msg_id", messageID))
		return
	}
	a.logger.Debug("message marked seen", zap.String("msg_id", messageID))
}
