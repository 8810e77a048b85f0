// Package rework scans ticket text for signals of repeat or failed prior
// work. Detection is keyword-based and explicitly heuristic: it surfaces
// likely rework for review, it does not prove it. The keyword list is
// operator configuration, not code.
package rework

import (
	"fmt"
	"strings"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

const (
	maxQualityScore     = 5.0
	reworkPenalty       = 2.0
	repeatReworkPenalty = 1.0
)

// Classification is the outcome of scanning one ticket's text.
type Classification struct {
	IsRework bool
	// Reason names the first matched keyword and the segment it appeared
	// in, e.g. `keyword "still broken" in comment 3`.
	Reason string
	// Count is the number of independent matching segments: the
	// description counts as one, each matching comment as one.
	Count int
}

// Detector matches ticket text against a configured keyword set.
type Detector struct {
	keywords []string
}

// NewDetector builds a detector. Keywords are matched case-insensitively as
// substrings.
func NewDetector(keywords []string) *Detector {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	return &Detector{keywords: cleaned}
}

// Classify scans the description and every comment body. The first match
// sets IsRework and the reason; every further matching segment bumps Count.
func (d *Detector) Classify(description string, comments []domain.Comment) Classification {
	var result Classification

	if kw, ok := d.firstMatch(description); ok {
		result.IsRework = true
		result.Reason = fmt.Sprintf("keyword %q in description", kw)
		result.Count++
	}
	for i, comment := range comments {
		kw, ok := d.firstMatch(comment.Text)
		if !ok {
			continue
		}
		if !result.IsRework {
			result.IsRework = true
			result.Reason = fmt.Sprintf("keyword %q in comment %d", kw, i+1)
		}
		result.Count++
	}
	return result
}

// QualityScore derives a 0-5 score from a classification: full marks
// without rework, a fixed penalty for rework, a further penalty when more
// than one segment matched, floored at zero.
func QualityScore(c Classification) float64 {
	score := maxQualityScore
	if c.IsRework {
		score -= reworkPenalty
	}
	if c.Count > 1 {
		score -= repeatReworkPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (d *Detector) firstMatch(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			return kw, true
		}
	}
	return "", false
}
