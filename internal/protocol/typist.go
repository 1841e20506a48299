package protocol

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long input must pause before typing stops.
const DefaultTypingIdle = 2 * time.Second

// Typist debounces keystrokes into typing frames: one true per burst of
// input and one false once no keystroke arrived for the idle window.
type Typist struct {
	mu     sync.Mutex
	clock  Clock
	idle   time.Duration
	emit   func(typing bool)
	typing bool
	timer  Timer
	gen    uint64
}

// NewTypist returns a debouncer calling emit on every transition. emit runs
// with the debouncer locked and must not call back into it.
func NewTypist(clock Clock, idle time.Duration, emit func(typing bool)) *Typist {
	if clock == nil {
		clock = RealClock{}
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typist{clock: clock, idle: idle, emit: emit}
}

// Keystroke records input activity and restarts the idle window.
func (t *Typist) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.idle, func() { t.expire(gen) })
	if !t.typing {
		t.typing = true
		t.emit(true)
	}
}

func (t *Typist) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.typing {
		return
	}
	t.typing = false
	t.timer = nil
	t.emit(false)
}

// Stop cancels a pending idle window without emitting anything.
func (t *Typist) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.typing = false
}

// Typing reports whether a burst is in progress.
func (t *Typist) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}
