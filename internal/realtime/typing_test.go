package realtime

import (
	"sync"
	"testing"
	"time"
)

type typingRecorder struct {
	mu   sync.Mutex
	sent []bool
}

func (r *typingRecorder) send(isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, isTyping)
	return nil
}

func (r *typingRecorder) events() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestKeystrokeEmitsTrueOnce(t *testing.T) {
	rec := &typingRecorder{}
	notifier := NewTypingNotifier(time.Second, rec.send)

	notifier.Keystroke()
	notifier.Keystroke()
	notifier.Keystroke()

	if got := rec.events(); len(got) != 1 || !got[0] {
		t.Fatalf("expected single true event, got %v", got)
	}
	notifier.Stop()
}

func TestIdleEmitsExactlyOneFalse(t *testing.T) {
	rec := &typingRecorder{}
	notifier := NewTypingNotifier(50*time.Millisecond, rec.send)

	notifier.Keystroke()
	waitFor(t, 2*time.Second, "idle stop event", func() bool {
		return len(rec.events()) == 2
	})

	got := rec.events()
	if !got[0] || got[1] {
		t.Fatalf("expected [true false], got %v", got)
	}

	// Neither the timer nor an explicit Stop may emit a second false.
	notifier.Stop()
	time.Sleep(100 * time.Millisecond)
	if got := rec.events(); len(got) != 2 {
		t.Fatalf("stop event emitted more than once: %v", got)
	}
}

func TestStopOnSendBeatsIdleTimer(t *testing.T) {
	rec := &typingRecorder{}
	notifier := NewTypingNotifier(time.Hour, rec.send)

	notifier.Keystroke()
	notifier.Stop()

	got := rec.events()
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("expected [true false], got %v", got)
	}
}

func TestStopWithoutKeystrokeIsNoop(t *testing.T) {
	rec := &typingRecorder{}
	notifier := NewTypingNotifier(time.Second, rec.send)

	notifier.Stop()
	if got := rec.events(); len(got) != 0 {
		t.Fatalf("idle Stop emitted events: %v", got)
	}
}

func TestKeystrokeAfterStopStartsNewSession(t *testing.T) {
	rec := &typingRecorder{}
	notifier := NewTypingNotifier(time.Hour, rec.send)

	notifier.Keystroke()
	notifier.Stop()
	notifier.Keystroke()
	notifier.Stop()

	got := rec.events()
	want := []bool{true, false, true, false}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
