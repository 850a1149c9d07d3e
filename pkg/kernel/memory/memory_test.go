package memory

import (
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

func TestInMemoryCapsAtMax(t *testing.T) {
	m := NewInMemory(3)
	for i := 0; i < 5; i++ {
		_ = m.Append(model.Message{Role: model.RoleUser, Text: string(rune('a' + i))})
	}
	recent, err := m.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	if recent[0].Text != "c" || recent[2].Text != "e" {
		t.Errorf("unexpected ordering: %+v", recent)
	}
}

func TestInMemoryClear(t *testing.T) {
	m := NewInMemory(0)
	_ = m.Append(model.Message{Role: model.RoleUser, Text: "x"})
	_ = m.Clear()
	recent, _ := m.Recent(10)
	if len(recent) != 0 {
		t.Errorf("expected empty after clear, got %d", len(recent))
	}
}
