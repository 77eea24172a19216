package escalation

import "strings"

// defaultKeywords trigger automatic escalation detection when no custom
// list is configured.
var defaultKeywords = []string{
	"human",
	"real person",
	"representative",
	"speak to someone",
	"talk to an agent",
	"supervisor",
	"manager",
	"operator",
	"complaint",
}

// Detector flags messages that should escalate to a human without an
// explicit request.
type Detector struct {
	keywords []string
}

// NewDetector builds a keyword detector. An empty list falls back to the
// default keyword set.
func NewDetector(keywords []string) *Detector {
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Detector{keywords: lowered}
}

// Detect reports whether message matches, with a confidence that grows with
// the number of distinct keyword hits and saturates at 1.0.
func (d *Detector) Detect(message string) (reason string, confidence float64, ok bool) {
	lowered := strings.ToLower(message)
	var hits []string
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			hits = append(hits, kw)
		}
	}
	if len(hits) == 0 {
		return "", 0, false
	}
	confidence = float64(len(hits)) / 3
	if confidence > 1 {
		confidence = 1
	}
	return "detected escalation keywords: " + strings.Join(hits, ", "), confidence, true
}
