package rtstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "rt:"
	redisChangeChan = "rt:changes"
)

// Redis — адаптер Store поверх go-redis: значение лежит по ключу
// rt:<path>, уведомления идут через pub/sub канал rt:changes.
// Порядок записей одного клиента в один путь сохраняется (одно соединение).
type Redis struct {
	client *redis.Client

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	pubsub   *redis.PubSub
	stop     chan struct{}
}

type redisChange struct {
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	r := &Redis{
		client:   c,
		watchers: make(map[*watcher]struct{}),
		stop:     make(chan struct{}),
	}
	r.pubsub = c.Subscribe(context.Background(), redisChangeChan)
	go r.fanout()
	return r, nil
}

func (r *Redis) Set(ctx context.Context, path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+path, b, 0).Err(); err != nil {
		return err
	}
	return r.publish(ctx, redisChange{Path: path, Value: b})
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+path).Err(); err != nil {
		return err
	}
	return r.publish(ctx, redisChange{Path: path, Deleted: true})
}

func (r *Redis) Get(ctx context.Context, path string, dst any) (bool, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+path).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if dst == nil {
		return true, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (r *Redis) Children(ctx context.Context, prefix string) ([]string, error) {
	pfx := strings.TrimSuffix(prefix, "/") + "/"
	match := redisKeyPrefix + pfx + "*"

	seen := make(map[string]struct{})
	var out []string
	iter := r.client.Scan(ctx, 0, match, 256).Iterator()
	for iter.Next(ctx) {
		p := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		rest := p[len(pfx):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		child := pfx + rest
		if _, ok := seen[child]; !ok {
			seen[child] = struct{}{}
			out = append(out, child)
		}
	}
	return out, iter.Err()
}

func (r *Redis) Watch(ctx context.Context, prefix string) (<-chan Change, func()) {
	w := &watcher{prefix: strings.TrimSuffix(prefix, "/"), ch: make(chan Change, watcherBufferSize)}

	r.mu.Lock()
	r.watchers[w] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, w)
			r.mu.Unlock()
			w.close()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-r.stop:
			}
		}()
	}
	return w.ch, cancel
}

func (r *Redis) Close() error {
	close(r.stop)
	_ = r.pubsub.Close()

	r.mu.Lock()
	for w := range r.watchers {
		w.close()
	}
	r.watchers = make(map[*watcher]struct{})
	r.mu.Unlock()

	return r.client.Close()
}

func (r *Redis) publish(ctx context.Context, c redisChange) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisChangeChan, b).Err()
}

// fanout раздаёт pub/sub сообщения локальным подписчикам.
func (r *Redis) fanout() {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rc redisChange
			if err := json.Unmarshal([]byte(msg.Payload), &rc); err != nil {
				slog.Debug("rtstore: bad change payload", "err", err)
				continue
			}
			out := Change{Path: rc.Path}
			if !rc.Deleted {
				out.Value = rc.Value
			}
			r.mu.Lock()
			for w := range r.watchers {
				if !pathUnder(out.Path, w.prefix) {
					continue
				}
				select {
				case w.ch <- out:
				default:
					slog.Warn("rtstore watcher overflow, change dropped", "path", out.Path)
				}
			}
			r.mu.Unlock()
		}
	}
}
