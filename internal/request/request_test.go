package request

import (
	"errors"
	"math"
	"strings"
	"testing"
)

type stubRegistry []string

func (r stubRegistry) IsValid(id string) bool {
	for _, v := range r {
		if v == id {
			return true
		}
	}
	return false
}

func newTestDecoder() *Decoder {
	return NewDecoder(
		stubRegistry{"am_onyx", "bm_lewis", "bm_daniel"},
		[]string{"en-us", "en-gb"},
		Limits{MaxTextLen: 64, MinSpeed: 0.5, MaxSpeed: 2.0},
		Defaults{Voice: "am_onyx.4+bm_lewis.6", Lang: "en-us", Speed: 0.99},
	)
}

func TestDecodeFullRequest(t *testing.T) {
	d := newTestDecoder()
	req, err := d.DecodeSynthesize([]byte(`{"text":"hello","voice":"bm_daniel","lang":"en-gb","speed":1.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Text != "hello" || req.Lang != "en-gb" || req.Speed != 1.5 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Voices) != 1 || req.Voices[0].ID != "bm_daniel" || req.Voices[0].Weight != 1.0 {
		t.Fatalf("unexpected voices: %+v", req.Voices)
	}
}

func TestDecodeAppliesDefaults(t *testing.T) {
	d := newTestDecoder()
	req, err := d.DecodeSynthesize([]byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Lang != "en-us" || req.Speed != 0.99 {
		t.Fatalf("expected defaults applied, got %+v", req)
	}
	if len(req.Voices) != 2 {
		t.Fatalf("expected default mix, got %+v", req.Voices)
	}
	if math.Abs(req.Voices[0].Weight-0.4) > 1e-9 {
		t.Fatalf("expected normalized default weights, got %+v", req.Voices)
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := newTestDecoder()
	cases := map[string][]byte{
		"emptyPayload": nil,
		"notJSON":      []byte(`{{{`),
		"missingText":  []byte(`{"voice":"bm_daniel"}`),
		"wrongType":    []byte(`{"text":42}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.DecodeSynthesize(data)
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedError, got %v", err)
			}
		})
	}
}

func TestDecodeValidation(t *testing.T) {
	d := newTestDecoder()
	cases := map[string]struct {
		payload string
		field   string
	}{
		"emptyText":    {`{"text":"  "}`, "text"},
		"longText":     {`{"text":"` + strings.Repeat("a", 65) + `"}`, "text"},
		"badVoice":     {`{"text":"hi","voice":"nobody"}`, "voice"},
		"badVoiceSpec": {`{"text":"hi","voice":"am_onyx.-1"}`, "voice"},
		"badLang":      {`{"text":"hi","lang":"xx"}`, "lang"},
		"slowSpeed":    {`{"text":"hi","speed":0.1}`, "speed"},
		"fastSpeed":    {`{"text":"hi","speed":3.0}`, "speed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.DecodeSynthesize([]byte(tc.payload))
			var invalid *ValidationError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if invalid.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, invalid.Field)
			}
		})
	}
}
