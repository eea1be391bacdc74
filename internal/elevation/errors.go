package elevation

import "errors"

var (
	ErrValidation   = errors.New("elevation: validation failed")
	ErrConflict     = errors.New("elevation: active grant exists")
	ErrInvalidState = errors.New("elevation: grant is not active")
	ErrNotFound     = errors.New("elevation: not found")
)
