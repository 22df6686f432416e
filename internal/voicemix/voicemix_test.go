package voicemix

import (
	"math"
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

var testVoices = stubRegistry{"am_onyx", "bm_lewis", "bm_daniel", "af_heart"}

func TestParseMix(t *testing.T) {
	entries, err := Parse("am_onyx.4+bm_lewis.6", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "am_onyx" || entries[1].ID != "bm_lewis" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if math.Abs(entries[0].Weight-0.4) > 1e-9 || math.Abs(entries[1].Weight-0.6) > 1e-9 {
		t.Fatalf("unexpected weights: %+v", entries)
	}
}

func TestParseSingleVoiceDefaultsToFullWeight(t *testing.T) {
	entries, err := Parse("bm_daniel", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "bm_daniel" || entries[0].Weight != 1.0 {
		t.Fatalf("unexpected result: %+v", entries)
	}
}

func TestParseNormalizesAndKeepsRatios(t *testing.T) {
	entries, err := Parse("am_onyx.1+af_heart.3", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0.0
	for _, e := range entries {
		sum += e.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights do not sum to 1: %+v", entries)
	}
	ratio := entries[1].Weight / entries[0].Weight
	if math.Abs(ratio-3.0) > 1e-9 {
		t.Fatalf("expected ratio 3, got %g", ratio)
	}
}

func TestParseOmittedWeightMixesEqually(t *testing.T) {
	entries, err := Parse("am_onyx+bm_lewis", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(entries[0].Weight-0.5) > 1e-9 || math.Abs(entries[1].Weight-0.5) > 1e-9 {
		t.Fatalf("expected equal split, got %+v", entries)
	}
}

func TestParseFailures(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"negativeWeight": "am_onyx.-1",
		"unknownVoice":   "nobody.5",
		"danglingPlus":   "am_onyx+",
		"missingID":      ".5",
		"badWeight":      "am_onyx.x",
		"zeroTotal":      "am_onyx.0+bm_lewis.0",
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(spec, testVoices); err == nil {
				t.Fatalf("expected error for %q", spec)
			} else if _, ok := err.(*InvalidSpecError); !ok {
				t.Fatalf("expected InvalidSpecError, got %T", err)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	first, err := Parse("am_onyx.4+bm_lewis.6", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Parse("am_onyx.4+bm_lewis.6", testVoices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("parse is not deterministic: %+v vs %+v", first, second)
		}
	}
}
