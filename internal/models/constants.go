package models

import "time"

const (
	// SharerUserHeader заголовок с идентификатором вызывающего пользователя
	SharerUserHeader = "X-Sharer-User-Id"

	// DefaultPageFrom смещение по умолчанию для списков
	DefaultPageFrom = 0

	// DefaultPageSize размер страницы по умолчанию
	DefaultPageSize = 10

	// DefaultLockTTL время жизни блокировки вещи
	DefaultLockTTL = 10 * time.Second
)

const (
	ConflictBoundaryStart = "start"
	ConflictBoundaryEnd   = "end"
)
