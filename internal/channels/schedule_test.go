package channels

import (
	"context"
	"testing"
)

func TestScheduleReplyDoesNotError(t *testing.T) {
	s := NewSchedule(nil)
	if _, err := s.Reply(context.Background(), "chan", "thread", "text"); err != nil {
		t.Errorf("Reply() error = %v, want nil", err)
	}
}

func TestScheduleAddReactionsIsNoop(t *testing.T) {
	s := NewSchedule(nil)
	if err := s.AddReactions(context.Background(), "chan", "msg", []string{"x"}); err != nil {
		t.Errorf("AddReactions() error = %v, want nil", err)
	}
}

func TestSchedulePlatformName(t *testing.T) {
	if (NewSchedule(nil)).PlatformName() != "schedule" {
		t.Error("PlatformName() should identify this adapter as schedule")
	}
}
