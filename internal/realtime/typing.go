package realtime

import (
	"sync"
	"time"
)

// TypingNotifier debounces the outbound typing indicator: the first
// keystroke after idle emits is_typing=true, and exactly one
// is_typing=false follows once the idle threshold passes or the message
// is sent, not a repeating stream.
type TypingNotifier struct {
	idle   time.Duration
	sendFn func(isTyping bool) error

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

func NewTypingNotifier(idle time.Duration, sendFn func(bool) error) *TypingNotifier {
	return &TypingNotifier{idle: idle, sendFn: sendFn}
}

// Keystroke records local composition activity.
func (t *TypingNotifier) Keystroke() {
	t.mu.Lock()
	wasActive := t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.Stop)
	t.mu.Unlock()

	if !wasActive {
		t.sendFn(true)
	}
}

// Stop ends the typing session, emitting the stop event at most once.
// Called by the idle timer and on message send.
func (t *TypingNotifier) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.sendFn(false)
}
