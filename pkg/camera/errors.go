package camera

import "errors"

// ErrUnavailable means the device is closed, absent, or returning no
// frames.
var ErrUnavailable = errors.New("camera unavailable")
