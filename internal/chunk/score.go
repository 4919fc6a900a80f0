package chunk

import "strings"

// technicalKeywords raise a chunk's importance when present anywhere in the
// text (case-insensitive substring match).
var technicalKeywords = []string{
	"i2c", "spi", "api", "register", "spec",
	"parameter", "return", "example", "protocol",
	"design", "command", "interface",
}

// lowConfidenceMarkers flag placeholder or unreviewed content.
var lowConfidenceMarkers = []string{
	"todo", "draft", "placeholder", "unverified", "wip",
}

// listMarkers detect bullet structure at line starts.
var listMarkers = []string{"\n-", "\n*", "\n•"}

// Score computes a rule-based importance score in [0, 1]. Pure function of
// the text: length tier, technical keyword bonus, list-structure bonus, and
// a penalty for low-confidence markers.
func Score(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0

	switch length := len(text); {
	case length > 400:
		score += 0.3
	case length > 200:
		score += 0.2
	default:
		score += 0.1
	}

	for _, kw := range technicalKeywords {
		if strings.Contains(lower, kw) {
			score += 0.4
			break
		}
	}

	for _, m := range listMarkers {
		if strings.Contains(text, m) {
			score += 0.1
			break
		}
	}

	for _, w := range lowConfidenceMarkers {
		if strings.Contains(lower, w) {
			score -= 0.2
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
