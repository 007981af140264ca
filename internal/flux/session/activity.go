package session

import "sync"

// ActivityKind is a kind of user interaction.
type ActivityKind string

const (
	PointerDown ActivityKind = "pointer-down"
	KeyDown     ActivityKind = "key-down"
	Scroll      ActivityKind = "scroll"
	TouchStart  ActivityKind = "touch-start"
	Click       ActivityKind = "click"
)

// TrackedKinds are the interactions that count as activity.
var TrackedKinds = []ActivityKind{PointerDown, KeyDown, Scroll, TouchStart, Click}

// ActivitySource delivers user interactions.
type ActivitySource interface {
	// Subscribe calls fn for every interaction of the given kinds until the
	// returned func is called.
	Subscribe(kinds []ActivityKind, fn func(ActivityKind)) (unsubscribe func())
}

// ActivityBus is an in-process ActivitySource. Emit calls listeners
// synchronously, outside the bus lock, so a listener may unsubscribe itself.
type ActivityBus struct {
	mu        sync.Mutex
	listeners map[int]activityListener
	nextID    int
}

type activityListener struct {
	kinds map[ActivityKind]bool
	fn    func(ActivityKind)
}

func NewActivityBus() *ActivityBus {
	return &ActivityBus{listeners: make(map[int]activityListener)}
}

func (b *ActivityBus) Subscribe(kinds []ActivityKind, fn func(ActivityKind)) func() {
	set := make(map[ActivityKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = activityListener{kinds: set, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Emit reports one interaction.
func (b *ActivityBus) Emit(kind ActivityKind) {
	b.mu.Lock()
	fns := make([]func(ActivityKind), 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.kinds[kind] {
			fns = append(fns, l.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// Listeners reports how many subscriptions are live.
func (b *ActivityBus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
