package expression

import "errors"

var (
	// ErrUnknownExpression is returned for a name the table does not hold.
	// The engine's state is unchanged.
	ErrUnknownExpression = errors.New("unknown expression")

	// ErrUnknownGesture is returned for a one-shot gesture name the engine
	// does not know.
	ErrUnknownGesture = errors.New("unknown gesture")

	// ErrNoVisual is returned when a visual-only apply names an
	// expression that carries no LED pattern.
	ErrNoVisual = errors.New("expression has no visual pattern")

	// ErrDeferred means the actuators were busy and the call did nothing.
	// Callers decide whether to retry.
	ErrDeferred = errors.New("expression deferred")

	// ErrInvalidConfig is returned when a table entry fails validation.
	ErrInvalidConfig = errors.New("invalid expression config")
)
