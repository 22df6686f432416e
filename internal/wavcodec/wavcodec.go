package wavcodec

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Shidfar/sirius/internal/engine"
)

const bitDepth = 16

// Encode renders raw engine output as a 16-bit PCM WAV byte stream.
// Samples are clamped to [-1, 1] before scaling.
func Encode(raw *engine.RawAudio) ([]byte, error) {
	if raw == nil || raw.SampleRate <= 0 || raw.Channels <= 0 {
		return nil, fmt.Errorf("wavcodec: invalid audio parameters")
	}

	data := make([]int, len(raw.Samples))
	for i, s := range raw.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	buf := &bufferSeeker{}
	enc := wav.NewEncoder(buf, raw.SampleRate, bitDepth, raw.Channels, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: raw.Channels, SampleRate: raw.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return buf.Bytes(), nil
}

// bufferSeeker is an in-memory io.WriteSeeker for the wav encoder, which
// seeks back to patch the RIFF header sizes on Close.
type bufferSeeker struct {
	data []byte
	pos  int
}

func (b *bufferSeeker) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *bufferSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	b.pos = int(next)
	return next, nil
}

func (b *bufferSeeker) Bytes() []byte { return b.data }
