package storage

import "errors"

var (
	ErrNotFound    = errors.New("item not found")
	ErrDuplicateID = errors.New("duplicate id")
)
