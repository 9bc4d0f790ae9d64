package reconcile

import "sync"

// Totals — производные суммы по владельцу (history + leaderboard).
type Totals struct {
	TasksDone    int64
	TotalSeconds int64
}

// Aggregates — двухфазный локальный кеш агрегатов: оптимистичная дельта
// применяется сразу и помечена pending; авторитетный refresh заменяет
// значение целиком и сбрасывает pending. Дельты с refresh-ом никогда не
// сливаются — иначе двойной счёт.
type Aggregates struct {
	mu      sync.RWMutex
	base    map[string]Totals
	pending map[string]Totals
}

func NewAggregates() *Aggregates {
	return &Aggregates{
		base:    make(map[string]Totals),
		pending: make(map[string]Totals),
	}
}

// ApplyDelta — оптимистичное += до прихода авторитетных данных.
func (a *Aggregates) ApplyDelta(ownerID string, durationSeconds int64) {
	a.mu.Lock()
	p := a.pending[ownerID]
	p.TasksDone++
	p.TotalSeconds += durationSeconds
	a.pending[ownerID] = p
	a.mu.Unlock()
}

// Refresh — wholesale-замена авторитетным значением; pending сбрасывается.
func (a *Aggregates) Refresh(ownerID string, authoritative Totals) {
	a.mu.Lock()
	a.base[ownerID] = authoritative
	delete(a.pending, ownerID)
	a.mu.Unlock()
}

// Snapshot — наблюдаемое значение: база плюс непогашенная дельта.
func (a *Aggregates) Snapshot(ownerID string) Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b := a.base[ownerID]
	p := a.pending[ownerID]
	return Totals{
		TasksDone:    b.TasksDone + p.TasksDone,
		TotalSeconds: b.TotalSeconds + p.TotalSeconds,
	}
}

// Pending сообщает, висит ли по владельцу незакрытая дельта.
func (a *Aggregates) Pending(ownerID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.pending[ownerID]
	return ok
}
