package actions

import "errors"

// ErrUnknownAction marks a token the parser could not place on any
// hardware path. It surfaces in skip reasons, never as a returned error.
var ErrUnknownAction = errors.New("unknown action")
