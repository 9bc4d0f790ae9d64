// Package rtstore — общий изменяемый store: path-адресуемое дерево с
// точечными write/delete и push-уведомлениями по подписке. Пути — это
// wire-контракт (см. paths.go), подписчики завязаны на точные префиксы.
package rtstore

import "context"

// Change — уведомление об изменении одного пути. Value == nil означает delete.
type Change struct {
	Path  string
	Value []byte // JSON-снапшот значения целиком
}

func (c Change) Deleted() bool { return c.Value == nil }

type Store interface {
	// Set пишет JSON-снапшот значения по пути. Записи одного клиента в один
	// путь применяются в порядке отправки; между путями порядка нет.
	Set(ctx context.Context, path string, v any) error

	Delete(ctx context.Context, path string) error

	// Get читает значение один раз. found == false — пути нет; это не ошибка.
	Get(ctx context.Context, path string, dst any) (found bool, err error)

	// Children возвращает пути прямых потомков префикса.
	Children(ctx context.Context, prefix string) ([]string, error)

	// Watch — ленивый бесконечный поток изменений под префиксом. Отмена ctx
	// или cancel закрывает канал. Доставка best-effort: медленный подписчик
	// теряет уведомления, а не блокирует писателей.
	Watch(ctx context.Context, prefix string) (<-chan Change, func())

	Close() error
}
