package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// AsynqClient — адаптер Client поверх hibiken/asynq (redis в роли брокера).
// MaxRetry(0): у reconciliation-задач нет автоматических retry — неудача
// логируется и теряется, терминальное локальное состояние не откатывается.
type AsynqClient struct {
	client *asynq.Client
}

func NewAsynqClient(redisURL string) (*AsynqClient, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqClient{client: asynq.NewClient(opt)}, nil
}

var _ Client = (*AsynqClient)(nil)

func (c *AsynqClient) Enqueue(ctx context.Context, job Job) error {
	t := asynq.NewTask(job.Type, job.Payload)
	_, err := c.client.EnqueueContext(ctx, t, asynq.MaxRetry(0))
	return err
}

func (c *AsynqClient) Close() error { return c.client.Close() }

// AsynqServer — адаптер Server.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewAsynqServer(redisURL string, concurrency int) (*AsynqServer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Error("queue: job failed", "type", task.Type(), "err", err)
		}),
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux()}, nil
}

var _ Server = (*AsynqServer)(nil)

func (s *AsynqServer) Register(jobType string, h Handler) {
	s.mux.HandleFunc(jobType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Job{Type: t.Type(), Payload: t.Payload()})
	})
}

func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return ctx.Err()
}
