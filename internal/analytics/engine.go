// Package analytics computes speech delivery metrics from a complete voice
// interview transcript: filler word frequency, speaking pace, a vocal
// confidence proxy and a chart-ready time series. The engine is a pure batch
// transform: it holds no cross-call state, never mutates its input and is
// safe to invoke concurrently, so callers may memoize results keyed on the
// transcript content.
package analytics

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ExcerptLength is how many characters of a turn survive into its
	// time-series excerpt.
	ExcerptLength = 50

	// ExcerptMarker is appended to every excerpt regardless of the
	// original text length.
	ExcerptMarker = "..."
)

// ErrInvalidTranscript marks a structural contract violation by the caller.
// Noisy but well-formed input (missing emotion data, odd gaps, empty turns)
// degrades to defaults instead and never produces this error.
var ErrInvalidTranscript = errors.New("invalid transcript")

// Engine analyzes transcripts against a fixed filler vocabulary.
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	fillers *fillerMatcher
}

// NewEngine builds an engine with the default filler vocabulary.
func NewEngine() *Engine {
	e, err := NewEngineWithVocabulary(DefaultFillerWords)
	if err != nil {
		// The default vocabulary always compiles.
		panic(err)
	}
	return e
}

// NewEngineWithVocabulary builds an engine scanning for the given filler
// words. Entries are lowercased and deduplicated; multi-word entries are
// matched as literal phrases.
func NewEngineWithVocabulary(vocabulary []string) (*Engine, error) {
	matcher, err := newFillerMatcher(vocabulary)
	if err != nil {
		return nil, err
	}
	return &Engine{fillers: matcher}, nil
}

// Analyze runs the full delivery analysis over an ordered transcript.
// The same input always yields an identical result. The returned error is
// non-nil only for structurally invalid input; an empty or all-agent
// transcript yields an empty (but complete) result.
func (e *Engine) Analyze(turns []ConversationTurn) (*Result, error) {
	if err := validateTranscript(turns); err != nil {
		return nil, err
	}

	counts := e.fillers.newCounts()
	totalFillers := 0

	totalWords := 0
	totalDuration := 0.0
	series := []DataPoint{}

	for i, turn := range turns {
		if turn.Role != RoleUser || turn.Text == "" {
			continue
		}

		totalFillers += e.fillers.scan(turn.Text, counts)

		// Duration is estimated from the gap to the next message in the
		// full transcript, agent turns included.
		duration := turnDuration(turns, i)
		if !durationEligible(duration) {
			continue
		}

		words := wordCount(turn.Text)
		totalWords += words
		totalDuration += duration

		series = append(series, DataPoint{
			Index:      len(series) + 1,
			WPM:        wordsPerMinute(words, duration),
			Confidence: confidenceScore(turn.EmotionFeatures.Normalize()),
			Excerpt:    excerpt(turn.Text),
		})
	}

	averagePace := 0
	if totalDuration > 0 {
		averagePace = wordsPerMinute(totalWords, totalDuration)
	}

	return &Result{
		FillerCounts: counts,
		TotalFillers: totalFillers,
		AveragePace:  averagePace,
		TimeSeries:   series,
	}, nil
}

// validateTranscript rejects input that breaks the caller contract. Order
// problems between adjacent timestamps are left to the duration guard, which
// silently drops the affected turns.
func validateTranscript(turns []ConversationTurn) error {
	for i, turn := range turns {
		switch turn.Role {
		case RoleUser, RoleAgent:
		default:
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidTranscript, i, turn.Role)
		}
		if math.IsNaN(turn.Timestamp) || math.IsInf(turn.Timestamp, 0) || turn.Timestamp < 0 {
			return fmt.Errorf("%w: turn %d has invalid timestamp %v", ErrInvalidTranscript, i, turn.Timestamp)
		}
	}
	return nil
}

// excerpt truncates text for time-series tooltips; the marker is always
// appended, even when nothing was cut.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) > ExcerptLength {
		runes = runes[:ExcerptLength]
	}
	return string(runes) + ExcerptMarker
}
