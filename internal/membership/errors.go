package membership

import "errors"

var (
	ErrNotFound     = errors.New("membership: not found")
	ErrConflict     = errors.New("membership: already exists")
	ErrInvalidInput = errors.New("membership: invalid input")
	ErrUnauthorized = errors.New("membership: unauthorized")
)
