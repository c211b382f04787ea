package speech

import "errors"

var (
	// ErrDeferred means the actuators were busy when the utterance tried
	// to start. Retryable; callers typically retry once.
	ErrDeferred = errors.New("speech deferred, actuators busy")

	// ErrInterrupted means a higher-priority claim preempted the
	// actuators mid-utterance and playback was cut short.
	ErrInterrupted = errors.New("utterance interrupted")

	// ErrNoAudio means Speak was handed an empty sample buffer.
	ErrNoAudio = errors.New("no audio samples")
)
