// Package reconcile — фоновый перенос терминальных переходов задач в
// долговременное хранилище и обновление производных агрегатов.
package reconcile

import (
	"encoding/json"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/queue"
)

const JobTypeTaskFinished = "task:finished"

// TaskFinishedJob — факт завершения (completed|quit), уезжающий в очередь.
// Интерактивный путь уже закоммитил локальное состояние и ответа не ждёт.
type TaskFinishedJob struct {
	TaskID      string            `json:"taskId"`
	OwnerID     string            `json:"ownerId"`
	RoomID      string            `json:"roomId"`
	TaskName    string            `json:"taskName"`
	DisplayName string            `json:"displayName"`
	Status      domain.TaskStatus `json:"status"`
	Duration    int64             `json:"duration"`
}

func (j TaskFinishedJob) Encode() (queue.Job, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return queue.Job{}, err
	}
	return queue.Job{Type: JobTypeTaskFinished, Payload: b}, nil
}

func DecodeTaskFinished(job queue.Job) (TaskFinishedJob, error) {
	var j TaskFinishedJob
	err := json.Unmarshal(job.Payload, &j)
	return j, err
}
