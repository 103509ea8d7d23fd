package analytics

// NeutralConfidence is reported when a turn carries no usable emotion data.
const NeutralConfidence = 50

// Emotion names contributing to the vocal confidence proxy. Missing names
// contribute 0.
var (
	positiveEmotions = []string{"Determination", "Calmness", "Satisfaction", "Triumph", "Confidence"}
	negativeEmotions = []string{"Anxiety", "Awkwardness", "Confusion", "Doubt", "Distress"}
)

// confidenceScore derives a 0-100 vocal confidence value from normalized
// emotion probabilities: the positive share of the combined positive and
// negative mass. With no relevant mass it falls back to the neutral default.
func confidenceScore(emotions map[string]float64) int {
	var positive, negative float64
	for _, name := range positiveEmotions {
		positive += emotions[name]
	}
	for _, name := range negativeEmotions {
		negative += emotions[name]
	}

	total := positive + negative
	if total <= 0 {
		return NeutralConfidence
	}
	return roundRatio(positive*100, total)
}
