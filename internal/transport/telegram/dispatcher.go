package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"chatgate/internal/domain"
	"chatgate/internal/gateway"
)

// Handler is what the dispatcher runs per addressed message.
type Handler interface {
	Dispatch(ctx context.Context, ev domain.InboundEvent, sink gateway.Sink) error
}

var (
	// ErrBusy is returned by Submit when every worker slot stays taken.
	ErrBusy = errors.New("telegram: dispatcher busy")
	// ErrClosed is returned once Shutdown has started.
	ErrClosed = errors.New("telegram: dispatcher closed")
)

// Dispatcher hands updates to the gateway in the background so webhook
// requests can be acknowledged before generation finishes.
type Dispatcher struct {
	parser  *Parser
	handler Handler
	sink    gateway.Sink
	sem     *semaphore.Weighted
	wait    time.Duration
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	base    context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

// NewDispatcher runs at most workers messages at once.
func NewDispatcher(parser *Parser, handler Handler, sink gateway.Sink, workers int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 16
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		parser:  parser,
		handler: handler,
		sink:    sink,
		sem:     semaphore.NewWeighted(int64(workers)),
		wait:    2 * time.Second,
		base:    base,
		cancel:  cancel,
		logger:  logger.With().Str("component", "telegram_dispatcher").Logger(),
	}
}

// Submit schedules u. Updates not addressed to the bot are dropped and
// reported as accepted=false. It gives up with ErrBusy when no worker frees
// up shortly, so the webhook can ask Telegram to redeliver.
func (d *Dispatcher) Submit(ctx context.Context, u tgbotapi.Update, requestID string) (accepted bool, err error) {
	return d.submit(ctx, u, requestID, d.wait)
}

// submit waits up to wait for a worker slot, or until ctx ends when wait
// is not positive.
func (d *Dispatcher) submit(ctx context.Context, u tgbotapi.Update, requestID string, wait time.Duration) (bool, error) {
	ev, ok := d.parser.Event(u)
	if !ok {
		return false, nil
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ev.RequestID = requestID

	acquireCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := d.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.logger.Warn().Str("request_id", requestID).Int("update_id", u.UpdateID).Msg("no free worker")
		return false, ErrBusy
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.sem.Release(1)
		return false, ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		if err := d.handler.Dispatch(d.base, ev, d.sink); err != nil {
			d.logger.Error().Err(err).Str("request_id", ev.RequestID).Str("user_id", ev.UserID).Msg("message handling failed")
		}
	}()
	return true, nil
}

// Poll reads updates by long polling until ctx ends. It is the alternative
// to the webhook for local runs.
func (d *Dispatcher) Poll(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			// The update offset has already moved past u, so wait for a
			// worker instead of dropping it.
			if _, err := d.submit(ctx, u, "", 0); err != nil {
				d.logger.Warn().Err(err).Int("update_id", u.UpdateID).Msg("update dropped")
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, ErrClosed) {
					return nil
				}
			}
		}
	}
}

// Shutdown waits for in-flight messages until ctx ends, then cancels them.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
