package expression

import "testing"

func TestMoodHistoryBounded(t *testing.T) {
	var h MoodHistory

	if h.Len() != 0 || h.Last() != "" {
		t.Fatalf("zero history: len=%d last=%q", h.Len(), h.Last())
	}

	h.Push("happy")
	h.Push("sad")
	if got := h.Last(); got != "sad" {
		t.Errorf("Last() = %q, want sad", got)
	}

	h.Push("curious")
	h.Push("alert")
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	want := []string{"sad", "curious", "alert"}
	got := h.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMoodHistoryNamesIsACopy(t *testing.T) {
	var h MoodHistory
	h.Push("happy")

	names := h.Names()
	names[0] = "mutated"
	if h.Last() != "happy" {
		t.Error("mutating the returned slice changed the history")
	}
}
