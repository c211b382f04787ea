package audioio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadWAV parses a RIFF WAV stream into an AudioChunk. Only uncompressed
// PCM16 is supported, which is what Wren's sound cues ship as.
func ReadWAV(r io.Reader) (AudioChunk, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return AudioChunk{}, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return AudioChunk{}, fmt.Errorf("wav: not a RIFF/WAVE stream")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		haveFmt    bool
	)

	for {
		var chunkHdr [8]byte
		if _, err := io.ReadFull(r, chunkHdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return AudioChunk{}, fmt.Errorf("wav: no data chunk")
			}
			return AudioChunk{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunkHdr[0:4])
		size := int(binary.LittleEndian.Uint32(chunkHdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return AudioChunk{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return AudioChunk{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return AudioChunk{}, fmt.Errorf("wav: unsupported format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			if bits != 16 {
				return AudioChunk{}, fmt.Errorf("wav: unsupported bit depth %d, want 16", bits)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return AudioChunk{}, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return AudioChunk{}, fmt.Errorf("wav: read data chunk: %w", err)
			}
			chunk := AudioChunk{}
			chunk.FromBytes(body, sampleRate, channels)
			return chunk, nil

		default:
			// LIST, fact and friends carry nothing we need.
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return AudioChunk{}, fmt.Errorf("wav: skip %s chunk: %w", id, err)
			}
		}
		// Chunks are word-aligned; odd sizes carry a pad byte.
		if size%2 == 1 {
			io.CopyN(io.Discard, r, 1)
		}
	}
}

// ReadWAVFile loads a sound cue from disk.
func ReadWAVFile(path string) (AudioChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioChunk{}, fmt.Errorf("wav: %w", err)
	}
	defer f.Close()
	return ReadWAV(f)
}

// WriteWAV writes the chunk as an uncompressed PCM16 RIFF stream, mostly
// useful for capturing transformed speech while debugging.
func WriteWAV(w io.Writer, chunk AudioChunk) error {
	data := chunk.Bytes()
	dataLen := uint32(len(data))

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(chunk.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(chunk.SampleRate))
	byteRate := uint32(chunk.SampleRate * chunk.Channels * 2)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(chunk.Channels*2))
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}
