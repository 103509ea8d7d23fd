package analytics

import "encoding/json"

// EmotionFeatures carries the optional per-turn emotion probabilities in
// whatever shape the upstream voice provider delivered them: absent, a
// JSON-encoded string, or a structured object. The payload is kept verbatim
// and only interpreted by Normalize, so parse failures are absorbed in one
// place.
type EmotionFeatures struct {
	raw json.RawMessage
}

// EmotionMap builds features from an already-structured mapping.
func EmotionMap(scores map[string]float64) EmotionFeatures {
	if scores == nil {
		return EmotionFeatures{}
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return EmotionFeatures{}
	}
	return EmotionFeatures{raw: data}
}

// EmotionPayload wraps a raw provider payload without validating it.
func EmotionPayload(data []byte) EmotionFeatures {
	if len(data) == 0 {
		return EmotionFeatures{}
	}
	return EmotionFeatures{raw: append(json.RawMessage(nil), data...)}
}

// IsZero reports whether no emotion payload is present.
func (e EmotionFeatures) IsZero() bool {
	return len(e.raw) == 0
}

// MarshalJSON emits the payload exactly as it was received.
func (e EmotionFeatures) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte("null"), nil
	}
	return e.raw, nil
}

// UnmarshalJSON accepts any JSON value; interpretation is deferred to Normalize.
func (e *EmotionFeatures) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		e.raw = nil
		return nil
	}
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Normalize converts the payload into a name-to-probability mapping.
// It accepts an object with scores as top-level keys, an object wrapping the
// scores under an "emotion" key, or a JSON-encoded string containing either
// shape. Anything unparseable normalizes to an empty mapping, which the
// scorer turns into the neutral default.
func (e EmotionFeatures) Normalize() map[string]float64 {
	raw := e.raw
	if len(raw) == 0 {
		return map[string]float64{}
	}

	// A string payload holds the actual object encoded once more.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]float64{}
	}

	if wrapped, ok := fields["emotion"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(wrapped, &inner); err == nil {
			fields = inner
		}
	}

	scores := make(map[string]float64, len(fields))
	for name, value := range fields {
		var score float64
		if err := json.Unmarshal(value, &score); err != nil {
			continue
		}
		scores[name] = score
	}
	return scores
}
