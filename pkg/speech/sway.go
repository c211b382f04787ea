package speech

import (
	"math"

	"github.com/wrenlabs/go-wren/pkg/audioio"
)

// Sway tuning. Frequencies and amplitudes are small on purpose; the head
// should drift with the rhythm of speech, not bob.
const (
	swayChunkMS = 20 // feed cadence, one sink chunk

	// Voice activity hysteresis (dBFS)
	vadOnDB      = -35.0
	vadOffDB     = -45.0
	vadAttackMS  = 40
	vadReleaseMS = 250

	// Sway envelope
	swayGain      = 0.65
	swayAttackMS  = 60
	swayReleaseMS = 280

	// Oscillators (Hz, degrees)
	swayFreqTilt   = 2.0
	swayFreqPan    = 0.55
	swayAmpTiltDeg = 3.0
	swayAmpPanDeg  = 4.5

	// Loudness mapping (dBFS)
	swayDBLow  = -46.0
	swayDBHigh = -18.0
	swayGamma  = 0.9
)

var (
	vadAttackChunks   = max(1, vadAttackMS/swayChunkMS)
	vadReleaseChunks  = max(1, vadReleaseMS/swayChunkMS)
	swayAttackChunks  = max(1, swayAttackMS/swayChunkMS)
	swayReleaseChunks = max(1, swayReleaseMS/swayChunkMS)
)

// swayOscillator turns per-chunk loudness into small neck offsets so the
// head moves with speech instead of freezing mid-utterance. It is fed
// from the pipeline's writer loop, one chunk per tick, and is not safe
// for concurrent use.
type swayOscillator struct {
	vadOn    bool
	vadAbove int
	vadBelow int

	env  float64
	up   int
	down int

	t         float64
	phaseTilt float64
	phasePan  float64
}

func newSwayOscillator() *swayOscillator {
	// Fixed starting phases, offset so pan and tilt never line up.
	return &swayOscillator{phaseTilt: 0.7, phasePan: 2.1}
}

func (s *swayOscillator) reset() {
	*s = swayOscillator{phaseTilt: s.phaseTilt, phasePan: s.phasePan}
}

// step consumes one chunk of transformed audio and returns pan and tilt
// offsets in degrees to add to the utterance's base pose.
func (s *swayOscillator) step(chunk []int16) (pan, tilt float64) {
	db := chunkDBFS(chunk)

	// Voice activity with hysteresis, so pauses between words do not
	// stall the sway.
	if db >= vadOnDB {
		s.vadAbove++
		s.vadBelow = 0
		if !s.vadOn && s.vadAbove >= vadAttackChunks {
			s.vadOn = true
		}
	} else if db <= vadOffDB {
		s.vadBelow++
		s.vadAbove = 0
		if s.vadOn && s.vadBelow >= vadReleaseChunks {
			s.vadOn = false
		}
	}

	var target float64
	if s.vadOn {
		s.up = min(swayAttackChunks, s.up+1)
		s.down = 0
		target = float64(s.up) / float64(swayAttackChunks)
	} else {
		s.down = min(swayReleaseChunks, s.down+1)
		s.up = 0
		target = 1 - float64(s.down)/float64(swayReleaseChunks)
	}
	s.env += swayGain * (target - s.env)
	s.env = clamp(s.env, 0, 1)

	loud := loudnessGain(db)
	s.t += float64(swayChunkMS) / 1000

	pan = swayAmpPanDeg * loud * s.env * math.Sin(2*math.Pi*swayFreqPan*s.t+s.phasePan)
	tilt = swayAmpTiltDeg * loud * s.env * math.Sin(2*math.Pi*swayFreqTilt*s.t+s.phaseTilt)
	return pan, tilt
}

func chunkDBFS(chunk []int16) float64 {
	if len(chunk) == 0 {
		return -100
	}
	return 20 * math.Log10(audioio.RMS(chunk)+1e-12)
}

func loudnessGain(db float64) float64 {
	t := clamp((db-swayDBLow)/(swayDBHigh-swayDBLow), 0, 1)
	return math.Pow(t, swayGamma)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
