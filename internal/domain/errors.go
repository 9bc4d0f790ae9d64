package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrSlugTaken         = errors.New("room slug already taken")
	ErrTaskAlreadyActive = errors.New("owner already has an active task")
	ErrTaskNotFound      = errors.New("task not found")
	ErrNotInRoom         = errors.New("user not in the room")
	ErrTaskNameTooLong   = errors.New("task name exceeds limit")

	// ErrAlreadyCompleted — не ошибка для вызывающего: повторный перенос
	// завершённой задачи это no-op.
	ErrAlreadyCompleted = errors.New("task already completed")
)
