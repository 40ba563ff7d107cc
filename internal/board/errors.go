package board

import "errors"

var (
	ErrInvalidSize    = errors.New("canvas dimensions must be positive")
	ErrInvalidColor   = errors.New("invalid color")
	ErrNotDrawing     = errors.New("no stroke in progress")
	ErrAlreadyDrawing = errors.New("stroke already in progress")
)
