package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

// DefaultNamespace prefixes every key and names the change channel.
const DefaultNamespace = "flux:"

// setScript writes only when the value differs and publishes the change in
// the same step so subscribers never see a write without its event.
var setScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('PUBLISH', ARGV[2], ARGV[3])
return 1
`)

var deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 1 then
	redis.call('PUBLISH', ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// Options configures the connection. Host and Port follow the REDIS_*
// environment variables.
type Options struct {
	Host      string
	Port      string
	Username  string
	Password  string
	Namespace string
}

// Store shares credentials through a redis server so tabs on different hosts
// see one profile. Changes fan out over pub/sub.
type Store struct {
	client    *redis.Client
	namespace string
	now       func() time.Time

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	ps     *redis.PubSub
	doneCh chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { _ = s.ps.Close() })
	<-s.doneCh
}

func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Host + ":" + opts.Port,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Store{
		client:    client,
		namespace: opts.Namespace,
		now:       time.Now,
		subs:      make(map[int]*subscription),
	}, nil
}

func (s *Store) key(k string) string { return s.namespace + k }

func (s *Store) channel() string { return s.namespace + "events" }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", credstore.ErrNotFound
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key, value string, origin idx.ID) error {
	payload, err := json.Marshal(credstore.Event{Key: key, Value: value, Origin: origin, At: s.now()})
	if err != nil {
		return err
	}
	return setScript.Run(ctx, s.client, []string{s.key(key)}, value, s.channel(), payload).Err()
}

func (s *Store) Delete(ctx context.Context, key string, origin idx.ID) error {
	payload, err := json.Marshal(credstore.Event{Key: key, Deleted: true, Origin: origin, At: s.now()})
	if err != nil {
		return err
	}
	return deleteScript.Run(ctx, s.client, []string{s.key(key)}, s.channel(), payload).Err()
}

// Subscribe waits for the subscription to be confirmed so no change published
// after it returns is missed.
func (s *Store) Subscribe(fn func(credstore.Event)) (func(), error) {
	ctx := context.Background()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, credstore.ErrClosed
	}
	s.mu.Unlock()

	ps := s.client.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{ps: ps, doneCh: make(chan struct{})}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		defer close(sub.doneCh)
		for msg := range ps.Channel() {
			var ev credstore.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.stop()
	}
	return cancel, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = map[int]*subscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return s.client.Close()
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ credstore.Store = (*Store)(nil)
