package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrLockHeld           = errors.New("lock already held")
	ErrUnknownMarketplace = errors.New("unknown marketplace")
	ErrInvalidRecord      = errors.New("invalid record")
)
