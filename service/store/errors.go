package store

import "errors"

// ErrInvalidInput is returned for records that cannot be persisted.
var ErrInvalidInput = errors.New("invalid input")
