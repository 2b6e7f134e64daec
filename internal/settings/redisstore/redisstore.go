// Package redisstore mirrors settings stores into Redis so that several
// processes can share one configuration. String lists are kept as Redis
// lists, every other value as a JSON string. Changes are announced on the
// "<prefix>:changed" pub/sub channel as "<schema>/<key>".
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

const pushTimeout = 2 * time.Second

// Connect parses url, creates a client and pings it with exponential backoff
// until maxWait has elapsed.
func Connect(ctx context.Context, url string, maxWait time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}

	client := redis.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	ping := func() error {
		return client.Ping(ctx).Err()
	}

	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}

	return client, nil
}

// Mirror synchronises a settings group with Redis.
type Mirror struct {
	client *redis.Client
	prefix string
	group  *settings.Group
	log    zerolog.Logger

	handlers map[string]settings.HandlerID
}

// New creates a mirror. prefix namespaces all keys.
func New(client *redis.Client, prefix string, group *settings.Group, log zerolog.Logger) *Mirror {
	return &Mirror{
		client:   client,
		prefix:   prefix,
		group:    group,
		log:      log.With().Str("component", "redisstore").Logger(),
		handlers: make(map[string]settings.HandlerID),
	}
}

// Channel returns the change notification channel name.
func (m *Mirror) Channel() string { return m.prefix + ":changed" }

func (m *Mirror) key(id, name string) string {
	return m.prefix + ":" + id + ":" + name
}

// Push writes every key of every store and announces each one.
func (m *Mirror) Push(ctx context.Context) error {
	var errs []error

	for _, id := range m.group.IDs() {
		for _, name := range m.group.Store(id).Schema().Names() {
			if err := m.PushKey(ctx, id, name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// PushKey writes one key and publishes its name.
func (m *Mirror) PushKey(ctx context.Context, id, name string) error {
	s := m.group.Store(id)
	if s == nil {
		return fmt.Errorf("%w: schema %s", settings.ErrUnknownKey, id)
	}

	k, ok := s.Schema().Key(name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", settings.ErrUnknownKey, id, name)
	}

	v, err := s.Get(name)
	if err != nil {
		return err
	}

	rk := m.key(id, name)
	pipe := m.client.TxPipeline()

	if k.Kind == settings.KindStrv {
		pipe.Del(ctx, rk)

		if list := v.([]string); len(list) > 0 {
			items := make([]any, len(list))
			for i, e := range list {
				items[i] = e
			}

			pipe.RPush(ctx, rk, items...)
		}
	} else {
		raw, err := sonic.MarshalString(v)
		if err != nil {
			return fmt.Errorf("redisstore: encode %s/%s: %w", id, name, err)
		}

		pipe.Set(ctx, rk, raw, 0)
	}

	pipe.Publish(ctx, m.Channel(), id+"/"+name)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: push %s/%s: %w", id, name, err)
	}

	return nil
}

// Pull reads every key present in Redis into the local stores. Keys absent
// from Redis keep their local value.
func (m *Mirror) Pull(ctx context.Context) error {
	var errs []error

	for _, id := range m.group.IDs() {
		for _, name := range m.group.Store(id).Schema().Names() {
			if err := m.PullKey(ctx, id, name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// PullKey reads one key into its store, firing the store's change handlers
// when the value differs.
func (m *Mirror) PullKey(ctx context.Context, id, name string) error {
	s := m.group.Store(id)
	if s == nil {
		return fmt.Errorf("%w: schema %s", settings.ErrUnknownKey, id)
	}

	k, ok := s.Schema().Key(name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", settings.ErrUnknownKey, id, name)
	}

	rk := m.key(id, name)

	if k.Kind == settings.KindStrv {
		n, err := m.client.Exists(ctx, rk).Result()
		if err != nil {
			return fmt.Errorf("redisstore: pull %s/%s: %w", id, name, err)
		}

		if n == 0 {
			return nil
		}

		list, err := m.client.LRange(ctx, rk, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("redisstore: pull %s/%s: %w", id, name, err)
		}

		return s.Set(name, list)
	}

	raw, err := m.client.Get(ctx, rk).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("redisstore: pull %s/%s: %w", id, name, err)
	}

	var v any
	if err := sonic.UnmarshalString(raw, &v); err != nil {
		return fmt.Errorf("redisstore: decode %s/%s: %w", id, name, err)
	}

	return s.Set(name, v)
}

// Attach pushes every local change of the group's stores to Redis.
func (m *Mirror) Attach() {
	for _, id := range m.group.IDs() {
		if _, ok := m.handlers[id]; ok {
			continue
		}

		m.handlers[id] = m.group.Store(id).ConnectAny(func(name string) {
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			defer cancel()

			if err := m.PushKey(ctx, id, name); err != nil {
				m.log.Error().Err(err).Str("schema", id).Str("key", name).Msg("push failed")
			}
		})
	}
}

// Detach stops pushing local changes.
func (m *Mirror) Detach() {
	for id, h := range m.handlers {
		m.group.Store(id).Disconnect(h)
		delete(m.handlers, id)
	}
}

// Watch applies remote changes until ctx is done. Echoes of local pushes are
// harmless: an unchanged value does not notify.
func (m *Mirror) Watch(ctx context.Context) error {
	sub := m.client.Subscribe(ctx, m.Channel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redisstore: subscribe: %w", err)
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			id, name, found := strings.Cut(msg.Payload, "/")
			if !found {
				m.log.Warn().Str("payload", msg.Payload).Msg("malformed change notification")
				continue
			}

			if err := m.PullKey(ctx, id, name); err != nil {
				m.log.Error().Err(err).Str("schema", id).Str("key", name).Msg("pull failed")
			}
		}
	}
}
