package display

import "errors"

// ErrClosed means the link was closed and takes no more traffic.
var ErrClosed = errors.New("display link closed")
