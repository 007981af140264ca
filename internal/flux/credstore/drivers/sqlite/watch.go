package sqlite

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

type subscription struct {
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Subscribe delivers events appended after the call, whichever process wrote
// them. Delivery happens on a dedicated goroutine in log order.
func (s *Store) Subscribe(fn func(credstore.Event)) (func(), error) {
	var last int64
	if err := s.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(seq), 0) FROM credential_events`,
	).Scan(&last); err != nil {
		return nil, err
	}

	sub := &subscription{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, credstore.ErrClosed
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	go s.poll(sub, last, fn)

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.stop()
	}
	return cancel, nil
}

func (s *Store) poll(sub *subscription, last int64, fn func(credstore.Event)) {
	defer close(sub.doneCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.stopCh:
			return
		case <-ticker.C:
		}

		events, err := s.eventsAfter(last)
		if err != nil {
			// The database may be briefly locked by another writer; try again
			// on the next tick.
			continue
		}
		for _, ev := range events {
			select {
			case <-sub.stopCh:
				return
			default:
			}
			last = ev.seq
			fn(ev.Event)
		}
	}
}

type loggedEvent struct {
	credstore.Event
	seq int64
}

func (s *Store) eventsAfter(seq int64) ([]loggedEvent, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT seq, key, value, deleted, origin, created_at
		FROM credential_events
		WHERE seq > ?
		ORDER BY seq`, seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loggedEvent
	for rows.Next() {
		var (
			ev      loggedEvent
			origin  string
			created int64
		)
		if err := rows.Scan(&ev.seq, &ev.Key, &ev.Value, &ev.Deleted, &origin, &created); err != nil {
			return nil, err
		}
		ev.Origin = idx.ID(origin)
		ev.At = time.UnixMilli(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}
