package audioio

import "time"

// AudioChunk is a block of PCM16 audio on its way to the speaker.
type AudioChunk struct {
	// Samples contains PCM16 audio samples (little-endian, interleaved).
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns how long this chunk plays for.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(float64(frames) / float64(c.SampleRate) * float64(time.Second))
}

// Mono folds the chunk down to one channel. Already-mono chunks come back
// unchanged.
func (c *AudioChunk) Mono() AudioChunk {
	if c.Channels <= 1 {
		return *c
	}
	return AudioChunk{
		Samples:    StereoToMono(c.Samples),
		SampleRate: c.SampleRate,
		Channels:   1,
	}
}
