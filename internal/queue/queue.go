// Package queue — порт фоновой очереди для reconciliation-задач.
// Интерактивный путь только кладёт job и не ждёт результата.
package queue

import "context"

type Job struct {
	Type    string
	Payload []byte
}

// Handler обрабатывает Job. Handler-ы обязаны быть идемпотентными:
// доставка at-least-once в зависимости от адаптера.
type Handler func(ctx context.Context, job Job) error

type Client interface {
	// Enqueue — fire-and-forget с точки зрения вызывающего.
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

type Server interface {
	Register(jobType string, h Handler)
	// Run блокируется до отмены ctx.
	Run(ctx context.Context) error
}
