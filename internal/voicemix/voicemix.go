package voicemix

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Entry is one voice in a mix together with its normalized share.
type Entry struct {
	ID     string
	Weight float64
}

// Registry reports whether a voice identifier is known to the loaded model.
type Registry interface {
	IsValid(id string) bool
}

// InvalidSpecError reports a voice mix string that cannot be used.
type InvalidSpecError struct {
	Spec   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid voice spec %q: %s", e.Spec, e.Reason)
}

// Parse turns a compact mix such as "am_onyx.4+bm_lewis.6" into a weighted
// voice list. Each "+"-joined segment is an identifier with an optional
// ".weight" suffix; an omitted weight counts as 1.0. Weights are divided by
// their sum so the returned entries always total 1. A nil registry skips the
// identifier check.
func Parse(spec string, reg Registry) ([]Entry, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, &InvalidSpecError{Spec: spec, Reason: "empty spec"}
	}
	segments := strings.Split(spec, "+")
	entries := make([]Entry, 0, len(segments))
	total := 0.0
	for _, seg := range segments {
		id, weight, err := parseSegment(strings.TrimSpace(seg))
		if err != nil {
			return nil, &InvalidSpecError{Spec: spec, Reason: err.Error()}
		}
		if reg != nil && !reg.IsValid(id) {
			return nil, &InvalidSpecError{Spec: spec, Reason: fmt.Sprintf("unknown voice %q", id)}
		}
		entries = append(entries, Entry{ID: id, Weight: weight})
		total += weight
	}
	if total <= 0 {
		return nil, &InvalidSpecError{Spec: spec, Reason: "total weight is zero"}
	}
	for i := range entries {
		entries[i].Weight /= total
	}
	return entries, nil
}

func parseSegment(seg string) (string, float64, error) {
	if seg == "" {
		return "", 0, fmt.Errorf("empty segment")
	}
	id := seg
	weight := 1.0
	if dot := strings.IndexByte(seg, '.'); dot >= 0 {
		id = seg[:dot]
		// keep the dot so ".4" parses as 0.4
		raw := seg[dot:]
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", 0, fmt.Errorf("weight %q is not a number", raw)
		}
		weight = w
	}
	if id == "" {
		return "", 0, fmt.Errorf("segment %q has no voice identifier", seg)
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return "", 0, fmt.Errorf("weight %g out of range", weight)
	}
	return id, weight, nil
}
