package speech

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/wrenlabs/go-wren/pkg/audioio"
)

// olaWindowMS is the analysis window for the duration-restoring stretch.
const olaWindowMS = 40

// Transform applies a voice profile to mono PCM16 samples, in order:
// pitch shift, tempo scaling, volume scaling. The nominal sample rate is
// unchanged; tempo scaling changes the sample count so playback at the
// same rate runs faster or slower.
func Transform(samples []int16, sampleRate int, profile VoiceProfile) ([]int16, error) {
	if len(samples) == 0 || profile.neutral() {
		return samples, nil
	}
	floats := audioio.SamplesToFloat(samples)
	floats, err := transformFloats(floats, sampleRate, profile)
	if err != nil {
		return nil, err
	}
	return audioio.FloatToSamples(floats), nil
}

// Resample converts mono PCM16 between sample rates.
func Resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	if len(samples) == 0 || fromRate == toRate {
		return samples, nil
	}
	out, err := resample(audioio.SamplesToFloat(samples), float64(fromRate), float64(toRate))
	if err != nil {
		return nil, err
	}
	return audioio.FloatToSamples(out), nil
}

func transformFloats(in []float64, sampleRate int, profile VoiceProfile) ([]float64, error) {
	out, err := pitchShift(in, sampleRate, profile.PitchSemitones)
	if err != nil {
		return nil, err
	}
	out, err = tempoScale(out, sampleRate, profile.Speed)
	if err != nil {
		return nil, err
	}
	return scaleVolume(out, profile.Volume), nil
}

// pitchShift raises or lowers pitch by the given semitones while keeping
// duration. The signal is resampled by 2^(semitones/12), which shifts the
// pitch but shortens or lengthens it, then an overlap-add stretch restores
// the original sample count.
func pitchShift(in []float64, sampleRate int, semitones float64) ([]float64, error) {
	if semitones == 0 || len(in) == 0 {
		return in, nil
	}
	factor := math.Pow(2, semitones/12)
	shifted, err := resample(in, float64(sampleRate), float64(sampleRate)/factor)
	if err != nil {
		return nil, err
	}
	win := sampleRate * olaWindowMS / 1000
	return stretchOLA(shifted, len(in), win), nil
}

// tempoScale changes playback speed by resampling the buffer so that
// playing it at the unchanged sink rate runs speed times faster. Pitch
// moves with it, matching how the voice hardware has always sounded.
func tempoScale(in []float64, sampleRate int, speed float64) ([]float64, error) {
	if speed == 1 || len(in) == 0 {
		return in, nil
	}
	return resample(in, float64(sampleRate), float64(sampleRate)/speed)
}

// scaleVolume multiplies amplitude. Clipping happens once at the final
// int16 conversion.
func scaleVolume(in []float64, factor float64) []float64 {
	if factor == 1 {
		return in
	}
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = s * factor
	}
	return out
}

// resampleTailPad is silence appended before the one-shot Process call.
// The resampler is a streaming filter with internal latency; the padding
// pushes the tail of the real signal out so it is not lost.
const resampleTailPad = 4096

// resample converts in from inRate to outRate using the high-quality
// band-limited resampler. The output length is exactly the rate ratio
// applied to the input length.
func resample(in []float64, inRate, outRate float64) ([]float64, error) {
	if len(in) == 0 || inRate == outRate {
		return in, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  inRate,
		OutputRate: outRate,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("speech: resampler %v->%v: %w", inRate, outRate, err)
	}
	padded := make([]float64, len(in)+resampleTailPad)
	copy(padded, in)
	out, err := rs.Process(padded)
	if err != nil {
		return nil, fmt.Errorf("speech: resample: %w", err)
	}
	want := int(math.Round(float64(len(in)) * outRate / inRate))
	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return out, nil
}

// stretchOLA time-stretches in to exactly outLen samples with a Hann
// windowed overlap-add, preserving pitch. Inputs too short for windowing
// fall back to linear interpolation.
func stretchOLA(in []float64, outLen, win int) []float64 {
	if outLen <= 0 {
		return nil
	}
	if len(in) == 0 {
		return make([]float64, outLen)
	}
	if win < 32 || len(in) < 2*win || outLen < 2*win {
		return stretchLinear(in, outLen)
	}

	hop := win / 2
	window := hann(win)
	ratio := float64(len(in)-win) / float64(max(1, outLen-win))

	out := make([]float64, outLen+win)
	norm := make([]float64, outLen+win)
	for oPos := 0; oPos < outLen; oPos += hop {
		aPos := int(math.Round(float64(oPos) * ratio))
		if aPos > len(in)-win {
			aPos = len(in) - win
		}
		for j := 0; j < win; j++ {
			out[oPos+j] += in[aPos+j] * window[j]
			norm[oPos+j] += window[j]
		}
	}
	for i := 0; i < outLen; i++ {
		if norm[i] > 1e-9 {
			out[i] /= norm[i]
		}
	}
	return out[:outLen]
}

// stretchLinear resizes in to outLen by linear interpolation. It does not
// preserve pitch, which is inaudible at the few-millisecond lengths that
// reach it.
func stretchLinear(in []float64, outLen int) []float64 {
	out := make([]float64, outLen)
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}
	scale := float64(len(in)-1) / float64(max(1, outLen-1))
	for i := range out {
		t := float64(i) * scale
		idx := int(t)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := t - float64(idx)
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
