package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const memoryQueueDepth = 256

// Memory — внутрипроцессная очередь: ограниченный буфер, один consumer.
// Используется в тестах и в single-node режиме без redis.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	jobs     chan Job
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		handlers: make(map[string]Handler),
		jobs:     make(chan Job, memoryQueueDepth),
	}
}

// Memory выступает и клиентом, и сервером.
var (
	_ Client = (*Memory)(nil)
	_ Server = (*Memory)(nil)
)

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return errors.New("queue closed")
	}

	select {
	case m.jobs <- job:
		return nil
	default:
		// очередь полна: job теряется, локальное состояние не откатывается
		return errors.New("queue full")
	}
}

func (m *Memory) Register(jobType string, h Handler) {
	m.mu.Lock()
	m.handlers[jobType] = h
	m.mu.Unlock()
}

func (m *Memory) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-m.jobs:
			m.mu.RLock()
			h := m.handlers[job.Type]
			m.mu.RUnlock()
			if h == nil {
				slog.Warn("queue: no handler", "type", job.Type)
				continue
			}
			if err := h(ctx, job); err != nil {
				// без авто-retry: залогировали и поехали дальше
				slog.Error("queue: job failed", "type", job.Type, "err", err)
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Drain синхронно обрабатывает всё, что лежит в буфере. Для тестов.
func (m *Memory) Drain(ctx context.Context) {
	for {
		select {
		case job := <-m.jobs:
			m.mu.RLock()
			h := m.handlers[job.Type]
			m.mu.RUnlock()
			if h != nil {
				if err := h(ctx, job); err != nil {
					slog.Error("queue: job failed", "type", job.Type, "err", err)
				}
			}
		default:
			return
		}
	}
}
