package analytics

// Role identifies who spoke a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ConversationTurn is one message of a voice interview transcript.
// Timestamp is in seconds and non-decreasing across a session. Text may be
// empty for turns that carried no speech. The engine never mutates turns.
type ConversationTurn struct {
	Role            Role            `json:"role"`
	Text            string          `json:"text,omitempty"`
	Timestamp       float64         `json:"timestamp"`
	EmotionFeatures EmotionFeatures `json:"emotion_features,omitempty"`
}

// DataPoint is one chart-ready sample of the delivery time series.
type DataPoint struct {
	// Index is a 1-based counter over emitted points, not the turn's
	// position in the raw transcript.
	Index      int    `json:"index"`
	WPM        int    `json:"wpm"`
	Confidence int    `json:"confidence"`
	Excerpt    string `json:"excerpt"`
}

// Result holds the delivery metrics for one complete transcript.
type Result struct {
	// FillerCounts has an entry for every configured filler word, zero or not.
	FillerCounts map[string]int `json:"filler_counts"`
	TotalFillers int            `json:"total_fillers"`
	// AveragePace is words per minute over all duration-eligible turns,
	// 0 when no turn was eligible.
	AveragePace int         `json:"average_pace"`
	TimeSeries  []DataPoint `json:"time_series"`
}

// MeanConfidence returns the rounded arithmetic mean of the time-series
// confidence values. ok is false when the series is empty; callers must
// treat that as insufficient data, not as a zero score.
func (r *Result) MeanConfidence() (mean int, ok bool) {
	if len(r.TimeSeries) == 0 {
		return 0, false
	}
	sum := 0
	for _, p := range r.TimeSeries {
		sum += p.Confidence
	}
	return roundRatio(float64(sum), float64(len(r.TimeSeries))), true
}

// FillerCount pairs a filler word with its occurrence count.
type FillerCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// FillerBreakdown returns the detected filler words sorted by descending
// count (ties by word), omitting words that never occurred.
func (r *Result) FillerBreakdown() []FillerCount {
	breakdown := make([]FillerCount, 0, len(r.FillerCounts))
	for word, count := range r.FillerCounts {
		if count > 0 {
			breakdown = append(breakdown, FillerCount{Word: word, Count: count})
		}
	}
	sortFillerCounts(breakdown)
	return breakdown
}
