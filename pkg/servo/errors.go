package servo

import "errors"

var (
	// ErrUnknownActuator means the ID has no calibration record.
	ErrUnknownActuator = errors.New("unknown actuator")

	// ErrUnavailable means the bus is closed or the device is gone.
	ErrUnavailable = errors.New("actuator bus unavailable")
)
