package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aof-dev/aof/pkg/kernel/trigger"
)

type recordingHandler struct {
	mu   sync.Mutex
	msgs []trigger.Message
}

func (h *recordingHandler) Handle(ctx context.Context, msg trigger.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func TestRegisterRejectsJobWithNoHandler(t *testing.T) {
	s := New(nil)
	_, err := s.Register(Job{Name: "no-handler", Cron: "* * * * *"})
	if err == nil {
		t.Error("expected an error registering a job with a nil handler")
	}
}

func TestRegisterRejectsInvalidCronExpression(t *testing.T) {
	s := New(nil)
	_, err := s.Register(Job{Name: "bad-cron", Cron: "not a cron expression", Handler: &recordingHandler{}})
	if err == nil {
		t.Error("expected an error registering an invalid cron expression")
	}
}

func TestScheduledJobFiresHandler(t *testing.T) {
	h := &recordingHandler{}
	s := New(nil)
	if _, err := s.Register(Job{
		Name:    "every-tick",
		Cron:    "@every 10ms",
		Handler: h,
		Message: trigger.Message{Platform: "schedule", ChannelID: "every-tick", Text: "tick"},
	}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if h.count() == 0 {
		t.Fatal("expected the scheduled job to fire at least once")
	}
}
