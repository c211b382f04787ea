package speech

import (
	"math"
	"testing"

	"github.com/wrenlabs/go-wren/pkg/audioio"
)

const toneRate = 22050

// sine returns n samples of a half-amplitude tone at freq Hz.
func sine(freq float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/toneRate))
	}
	return out
}

func maxAbs(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func zeroCrossings(samples []int16) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			n++
		}
	}
	return n
}

func rmsFloat(in []float64) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, s := range in {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(in)))
}

func TestTransformNeutralIsIdentity(t *testing.T) {
	in := sine(220, 2048)
	out, err := Transform(in, toneRate, NeutralProfile())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length changed: %d -> %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed: %d -> %d", i, in[i], out[i])
		}
	}
}

func TestTransformEmptyInput(t *testing.T) {
	out, err := Transform(nil, toneRate, VoiceProfile{Speed: 2, Volume: 1})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d samples from empty input", len(out))
	}
}

func TestTempoScalesDuration(t *testing.T) {
	in := sine(220, toneRate) // one second

	for _, tc := range []struct {
		speed float64
		want  int
	}{
		{2.0, toneRate / 2},
		{0.5, toneRate * 2},
	} {
		out, err := Transform(in, toneRate, VoiceProfile{Speed: tc.speed, Volume: 1})
		if err != nil {
			t.Fatalf("Transform speed %.1f: %v", tc.speed, err)
		}
		if len(out) != tc.want {
			t.Errorf("speed %.1f: got %d samples, want %d", tc.speed, len(out), tc.want)
		}
		if rms := audioio.RMS(out); rms < 0.2 || rms > 0.5 {
			t.Errorf("speed %.1f: rms %.3f outside [0.2, 0.5]", tc.speed, rms)
		}
	}
}

func TestPitchShiftKeepsDuration(t *testing.T) {
	in := sine(220, 8192)
	out, err := Transform(in, toneRate, VoiceProfile{Speed: 1, Volume: 1, PitchSemitones: 12})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("pitch shift changed length: %d -> %d", len(in), len(out))
	}

	// An octave up should roughly double the zero crossing count.
	base := zeroCrossings(in)
	got := zeroCrossings(out)
	if got < base*16/10 || got > base*25/10 {
		t.Errorf("zero crossings %d not near double of %d", got, base)
	}
}

func TestVolumeScalesAndClips(t *testing.T) {
	in := sine(220, 2048)

	half, err := Transform(in, toneRate, VoiceProfile{Speed: 1, Volume: 0.5})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if peak := maxAbs(half); peak < 7800 || peak > 8100 {
		t.Errorf("half volume peak %d, want about 8000", peak)
	}

	loud, err := Transform(in, toneRate, VoiceProfile{Speed: 1, Volume: 4})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if peak := maxAbs(loud); peak != 32767 {
		t.Errorf("overdriven peak %d, want clipped 32767", peak)
	}
}

func TestResampleExactLength(t *testing.T) {
	in := make([]float64, 4410)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/toneRate)
	}

	for _, tc := range []struct {
		outRate float64
		want    int
	}{
		{44100, 8820},
		{11025, 2205},
	} {
		out, err := resample(in, toneRate, tc.outRate)
		if err != nil {
			t.Fatalf("resample to %.0f: %v", tc.outRate, err)
		}
		if len(out) != tc.want {
			t.Errorf("resample to %.0f: got %d samples, want %d", tc.outRate, len(out), tc.want)
		}
		if rms := rmsFloat(out); rms < 0.25 || rms > 0.45 {
			t.Errorf("resample to %.0f: rms %.3f outside [0.25, 0.45]", tc.outRate, rms)
		}
	}
}

func TestStretchLinear(t *testing.T) {
	out := stretchLinear([]float64{0, 1}, 3)
	want := []float64{0, 0.5, 1}
	if len(out) != len(want) {
		t.Fatalf("got %d samples, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}

	flat := stretchLinear([]float64{2}, 4)
	for i, s := range flat {
		if s != 2 {
			t.Errorf("sample %d: got %v, want 2", i, s)
		}
	}
}

func TestStretchOLALengthAndLevel(t *testing.T) {
	in := make([]float64, 8820)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/toneRate)
	}
	base := rmsFloat(in)

	for _, outLen := range []int{6615, 11025} {
		out := stretchOLA(in, outLen, 882)
		if len(out) != outLen {
			t.Fatalf("stretch to %d: got %d samples", outLen, len(out))
		}
		if rms := rmsFloat(out); rms < base*0.6 || rms > base*1.4 {
			t.Errorf("stretch to %d: rms %.3f strayed from %.3f", outLen, rms, base)
		}
	}
}
