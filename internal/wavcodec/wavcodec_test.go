package wavcodec

import (
	"bytes"
	"math"
	"testing"

	"github.com/go-audio/wav"

	"github.com/Shidfar/sirius/internal/engine"
)

func toneAudio(frames int) *engine.RawAudio {
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/24000))
	}
	return &engine.RawAudio{Samples: samples, SampleRate: 24000, Channels: 1}
}

func TestEncodeProducesDecodableWAV(t *testing.T) {
	raw := toneAudio(24000)
	payload, err := Encode(raw)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected non-empty payload")
	}

	dec := wav.NewDecoder(bytes.NewReader(payload))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	if dec.SampleRate != 24000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected format: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	dur, err := dec.Duration()
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if math.Abs(dur.Seconds()-1.0) > 0.01 {
		t.Fatalf("expected ~1s of audio, got %v", dur)
	}
}

func TestEncodeClampsOutOfRangeSamples(t *testing.T) {
	raw := &engine.RawAudio{Samples: []float32{2.0, -2.0, 0}, SampleRate: 24000, Channels: 1}
	payload, err := Encode(raw)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	dec := wav.NewDecoder(bytes.NewReader(payload))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(buf.Data) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(buf.Data))
	}
	if buf.Data[0] != 32767 || buf.Data[1] != -32767 {
		t.Fatalf("expected clamped extremes, got %v", buf.Data)
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for nil audio")
	}
	if _, err := Encode(&engine.RawAudio{SampleRate: 0, Channels: 1}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}
