package repository

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record changed since it was read")
	ErrDuplicate       = errors.New("duplicate record")
)
