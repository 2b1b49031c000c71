package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chatgate/internal/domain"
	"chatgate/internal/gateway"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	block  chan struct{}
}

func (h *recordingHandler) Dispatch(ctx context.Context, ev domain.InboundEvent, sink gateway.Sink) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return nil
}

func TestDispatcherRunsAddressedUpdates(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(NewParser("TutorBot"), h, nil, 2, zerolog.Nop())

	accepted, err := d.Submit(context.Background(), groupMessage("@TutorBot hi", mention(0, 9)), "req-1")
	if err != nil || !accepted {
		t.Fatalf("Submit = %v, %v", accepted, err)
	}
	accepted, err = d.Submit(context.Background(), groupMessage("chatter"), "req-2")
	if err != nil || accepted {
		t.Fatalf("unaddressed Submit = %v, %v", accepted, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(h.events) != 1 || h.events[0].RequestID != "req-1" || h.events[0].Text != "hi" {
		t.Fatalf("events = %+v", h.events)
	}
}

func TestDispatcherBusy(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	d := NewDispatcher(NewParser("TutorBot"), h, nil, 1, zerolog.Nop())
	d.wait = 10 * time.Millisecond

	if _, err := d.Submit(context.Background(), groupMessage("@TutorBot one", mention(0, 9)), ""); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := d.Submit(context.Background(), groupMessage("@TutorBot two", mention(0, 9)), ""); err != ErrBusy {
		t.Fatalf("second Submit err = %v, want ErrBusy", err)
	}
	close(h.block)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestPollWaitsForFreeWorker(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	d := NewDispatcher(NewParser("TutorBot"), h, nil, 1, zerolog.Nop())
	d.wait = 10 * time.Millisecond

	updates := make(chan tgbotapi.Update, 2)
	updates <- groupMessage("@TutorBot one", mention(0, 9))
	updates <- groupMessage("@TutorBot two", mention(0, 9))
	close(updates)

	polled := make(chan error, 1)
	go func() { polled <- d.Poll(context.Background(), updates) }()

	// Keep the only worker busy for longer than the webhook wait.
	time.Sleep(50 * time.Millisecond)
	close(h.block)

	select {
	case err := <-polled:
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return")
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != 2 {
		t.Fatalf("handled %d of 2 polled updates", len(h.events))
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(NewParser("TutorBot"), h, nil, 2, zerolog.Nop())
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	accepted, err := d.Submit(context.Background(), groupMessage("@TutorBot late", mention(0, 9)), "")
	if accepted || !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Shutdown = %v, %v", accepted, err)
	}
	if len(h.events) != 0 {
		t.Fatalf("events = %+v", h.events)
	}
}
