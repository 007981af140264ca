package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

// Store is an in-process store. Tabs that share one Store behave like browser
// tabs sharing localStorage. Subscribers are called synchronously after the
// write, outside the lock, in registration order.
type Store struct {
	now func() time.Time

	mu     sync.Mutex
	values map[string]string
	subs   map[int]func(credstore.Event)
	order  []int
	nextID int
	closed bool
}

func NewStore() *Store {
	return &Store{
		now:    time.Now,
		values: make(map[string]string),
		subs:   make(map[int]func(credstore.Event)),
	}
}

// WithNow overrides the event timestamp source.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string, origin idx.ID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return credstore.ErrClosed
	}
	if current, ok := s.values[key]; ok && current == value {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = value
	subs := s.snapshot()
	s.mu.Unlock()

	s.publish(subs, credstore.Event{Key: key, Value: value, Origin: origin, At: s.now()})
	return nil
}

func (s *Store) Delete(_ context.Context, key string, origin idx.ID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return credstore.ErrClosed
	}
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	subs := s.snapshot()
	s.mu.Unlock()

	s.publish(subs, credstore.Event{Key: key, Deleted: true, Origin: origin, At: s.now()})
	return nil
}

func (s *Store) Subscribe(fn func(credstore.Event)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, credstore.ErrClosed
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
	return cancel, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.subs = map[int]func(credstore.Event){}
	s.order = nil
	return nil
}

// snapshot must be called with mu held.
func (s *Store) snapshot() []func(credstore.Event) {
	out := make([]func(credstore.Event), 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subs[id])
	}
	return out
}

func (s *Store) publish(subs []func(credstore.Event), ev credstore.Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

var _ credstore.Store = (*Store)(nil)
