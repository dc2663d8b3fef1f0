package apperr

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrPermissionUnavailable = errors.New("folder permission unavailable")
	ErrHashCollision         = errors.New("url hash collision")
)
