package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func line(speaker, text string) TranscriptLine {
	return TranscriptLine{Speaker: speaker, Text: text, Timestamp: time.Now(), Confidence: 0.9}
}

func TestCreateDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Create("meeting-1"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := r.Create("meeting-1"); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestUnknownSessionOperations(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Append("nope", line("Alice", "hi")); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Append: expected ErrUnknownSession, got %v", err)
	}
	if _, err := r.Snapshot("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Snapshot: expected ErrUnknownSession, got %v", err)
	}
	if _, err := r.End("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("End: expected ErrUnknownSession, got %v", err)
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	r := NewRegistry()
	if err := r.Create("m"); err != nil {
		t.Fatal(err)
	}

	texts := []string{"one", "two", "three", "four"}
	for i, txt := range texts {
		n, err := r.Append("m", line("Alice", txt))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if n != i+1 {
			t.Errorf("append %d: got length %d, want %d", i, n, i+1)
		}
	}

	snap, err := r.Snapshot("m")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Transcript) != len(texts) {
		t.Fatalf("snapshot has %d lines, want %d", len(snap.Transcript), len(texts))
	}
	for i, txt := range texts {
		if snap.Transcript[i].Text != txt {
			t.Errorf("line %d: got %q, want %q", i, snap.Transcript[i].Text, txt)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Create("m")
	r.Append("m", line("Alice", "original"))

	snap, _ := r.Snapshot("m")
	snap.Transcript[0].Text = "mutated"

	again, _ := r.Snapshot("m")
	if again.Transcript[0].Text != "original" {
		t.Error("mutating a snapshot leaked into the live session")
	}
}

func TestEndRemovesAndAllowsReuse(t *testing.T) {
	r := NewRegistry()
	r.Create("m")
	r.Append("m", line("Alice", "hello"))

	final, err := r.End("m")
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Transcript) != 1 {
		t.Errorf("final state has %d lines, want 1", len(final.Transcript))
	}

	// Same id starts a fresh session with no history.
	if err := r.Create("m"); err != nil {
		t.Fatalf("recreate after end failed: %v", err)
	}
	snap, _ := r.Snapshot("m")
	if len(snap.Transcript) != 0 {
		t.Errorf("recreated session inherited %d lines", len(snap.Transcript))
	}
}

func TestAnnotateEmotionWriteOnce(t *testing.T) {
	r := NewRegistry()
	r.Create("m")
	r.Append("m", line("Alice", "hello"))

	if err := r.AnnotateEmotion("m", 0, "happy", 0.8); err != nil {
		t.Fatal(err)
	}
	if err := r.AnnotateEmotion("m", 0, "frustrated", 0.9); err != nil {
		t.Fatal(err)
	}

	snap, _ := r.Snapshot("m")
	if snap.Transcript[0].Emotion != "happy" {
		t.Errorf("second annotation overwrote the first: %q", snap.Transcript[0].Emotion)
	}
}

func TestAnnotateEmotionOutOfRange(t *testing.T) {
	r := NewRegistry()
	r.Create("m")
	r.Append("m", line("Alice", "hello"))

	if err := r.AnnotateEmotion("m", 5, "happy", 0.8); !errors.Is(err, ErrUnknownLine) {
		t.Errorf("out-of-range index returned %v, want ErrUnknownLine", err)
	}
	if err := r.AnnotateEmotion("m", -1, "happy", 0.8); !errors.Is(err, ErrUnknownLine) {
		t.Errorf("negative index returned %v, want ErrUnknownLine", err)
	}
}

func TestListOverviews(t *testing.T) {
	r := NewRegistry()
	r.Create("b")
	r.Create("a")
	r.Append("a", line("Alice", "hi"))
	r.Append("a", line("Bob", "hey"))

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("got %d sessions, want 2", len(list))
	}
	if list[0].SessionID != "a" || list[1].SessionID != "b" {
		t.Errorf("list not sorted by id: %v", list)
	}
	if list[0].TranscriptLines != 2 {
		t.Errorf("session a reports %d lines, want 2", list[0].TranscriptLines)
	}
}

func TestConcurrentAppendsDoNotDropLines(t *testing.T) {
	r := NewRegistry()
	r.Create("m")

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := r.Append("m", line("Alice", fmt.Sprintf("w%d-%d", w, i))); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	snap, _ := r.Snapshot("m")
	if len(snap.Transcript) != writers*perWriter {
		t.Errorf("got %d lines, want %d", len(snap.Transcript), writers*perWriter)
	}
}

func TestCloseDrainsSessions(t *testing.T) {
	r := NewRegistry()
	r.Create("m")
	r.Close()

	if r.Len() != 0 {
		t.Errorf("registry still holds %d sessions after Close", r.Len())
	}
	if err := r.Create("m2"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("create after Close: got %v", err)
	}
}
