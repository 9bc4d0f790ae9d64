package rtstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

const watcherBufferSize = 64

// Memory — внутрипроцессная реализация Store для тестов и single-node
// режима. Дерево хранится плоско: полный путь -> JSON.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[*watcher]struct{}
	closed   bool
}

type watcher struct {
	prefix    string
	ch        chan Change
	closeOnce sync.Once
}

func (w *watcher) close() {
	w.closeOnce.Do(func() { close(w.ch) })
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[*watcher]struct{}),
	}
}

func (m *Memory) Set(ctx context.Context, path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = b
	m.notifyLocked(Change{Path: path, Value: b})
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[path]; !ok {
		return nil // удаление отсутствующего пути — no-op
	}
	delete(m.data, path)
	m.notifyLocked(Change{Path: path, Value: nil})
	return nil
}

func (m *Memory) Get(ctx context.Context, path string, dst any) (bool, error) {
	m.mu.RLock()
	b, ok := m.data[path]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if dst == nil {
		return true, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *Memory) Children(ctx context.Context, prefix string) ([]string, error) {
	pfx := strings.TrimSuffix(prefix, "/") + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for p := range m.data {
		if !strings.HasPrefix(p, pfx) {
			continue
		}
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
	return out, nil
}

func (m *Memory) Watch(ctx context.Context, prefix string) (<-chan Change, func()) {
	w := &watcher{prefix: strings.TrimSuffix(prefix, "/"), ch: make(chan Change, watcherBufferSize)}

	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, w)
			m.mu.Unlock()
			w.close()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return w.ch, cancel
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for w := range m.watchers {
		w.close()
	}
	m.watchers = make(map[*watcher]struct{})
	return nil
}

// notifyLocked: best-effort, переполненный подписчик теряет событие.
func (m *Memory) notifyLocked(c Change) {
	for w := range m.watchers {
		if !pathUnder(c.Path, w.prefix) {
			continue
		}
		select {
		case w.ch <- c:
		default:
			slog.Warn("rtstore watcher overflow, change dropped", "path", c.Path)
		}
	}
}

func pathUnder(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
