package kanban

import "errors"

// ErrListNotSpecified is returned by mutation operations that require a
// target list_id and didn't receive one. Never silently defaulted.
var ErrListNotSpecified = errors.New("kanban: list not specified")

// ErrListNotFound is returned when a specified list_id doesn't exist on
// the board.
var ErrListNotFound = errors.New("kanban: list not found")

// ErrCardNotFound is returned by operations addressing a card that doesn't
// exist.
var ErrCardNotFound = errors.New("kanban: card not found")
