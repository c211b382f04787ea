package speech

import (
	"math"

	"github.com/wrenlabs/go-wren/pkg/audioio"
)

// Envelope tuning. Smoothing trades mouth snappiness against jitter;
// gain and gamma shape how loudness maps onto jaw opening.
const (
	EnvSmoothing = 0.65
	EnvelopeGain = 2.5
	MouthGamma   = 0.6
)

// envelopeFollower tracks a smoothed loudness envelope over successive
// chunks of already-transformed audio.
type envelopeFollower struct {
	env float64
}

// feed folds one chunk's RMS into the envelope and returns the new value.
func (f *envelopeFollower) feed(chunk []int16) float64 {
	f.env += EnvSmoothing * (audioio.RMS(chunk) - f.env)
	return f.env
}

func (f *envelopeFollower) reset() {
	f.env = 0
}

// mouthAngle maps an envelope value onto a jaw angle in degrees. The
// gamma curve opens the mouth early on quiet speech instead of waiting
// for peaks, and the ceiling caps travel at the servo's comfortable
// range.
func mouthAngle(env, ceiling float64) float64 {
	drive := env * EnvelopeGain
	if drive <= 0 {
		return 0
	}
	if drive > 1 {
		drive = 1
	}
	return ceiling * math.Pow(drive, MouthGamma)
}
