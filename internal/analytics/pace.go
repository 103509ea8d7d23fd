package analytics

import (
	"math"
	"strings"
)

const (
	// MaxTurnDuration caps the gap to the next message that still counts
	// as speaking time, in seconds. Longer gaps are silences, system
	// pauses or dropped messages and would distort the rate.
	MaxTurnDuration = 60.0

	// MinOptimalWPM and MaxOptimalWPM bound the recommended interview
	// speaking pace.
	MinOptimalWPM = 110
	MaxOptimalWPM = 160
)

// PaceRating classifies an average pace against the recommended range.
type PaceRating string

const (
	PaceTooSlow PaceRating = "too_slow"
	PaceOptimal PaceRating = "optimal"
	PaceTooFast PaceRating = "too_fast"
)

// RatePace classifies words-per-minute against the optimal interview range.
func RatePace(wpm int) PaceRating {
	switch {
	case wpm < MinOptimalWPM:
		return PaceTooSlow
	case wpm > MaxOptimalWPM:
		return PaceTooFast
	default:
		return PaceOptimal
	}
}

// turnDuration estimates how long turn i was spoken: the gap to the next
// message in the full transcript. The final turn has no successor and
// reports 0, which the eligibility guard rejects.
func turnDuration(turns []ConversationTurn, i int) float64 {
	if i+1 >= len(turns) {
		return 0
	}
	return turns[i+1].Timestamp - turns[i].Timestamp
}

// durationEligible reports whether a turn's duration estimate is usable for
// pace and time-series computation.
func durationEligible(d float64) bool {
	return d > 0 && d < MaxTurnDuration
}

// wordCount counts whitespace-delimited tokens.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

// wordsPerMinute converts a word count over a duration in seconds to WPM.
func wordsPerMinute(words int, seconds float64) int {
	return roundRatio(float64(words)*60, seconds)
}

// roundRatio returns num/den rounded to the nearest integer.
func roundRatio(num, den float64) int {
	return int(math.Round(num / den))
}
