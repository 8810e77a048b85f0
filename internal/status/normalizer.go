// Package status maps each source system's free-form status vocabulary to
// the canonical taxonomy. The mapping is configuration data, not code:
// source vocabularies drift over time and operators extend the table
// without a release.
package status

import (
	"strings"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// Normalizer resolves raw source statuses against a configured lookup
// table. Unknown raw statuses pass through unchanged rather than being
// dropped, so gaps in the table stay observable downstream.
type Normalizer struct {
	table map[string]domain.CanonicalStatus
	// vocabulary keeps the configured spelling per normalized key. Sources
	// match their own status strings case-sensitively, so outbound queries
	// must use the original forms, not the lookup keys.
	vocabulary map[string]string
}

// NewNormalizer builds a normalizer from a raw→canonical table. Keys are
// matched case-insensitively with surrounding whitespace ignored.
func NewNormalizer(table map[string]domain.CanonicalStatus) *Normalizer {
	normalized := make(map[string]domain.CanonicalStatus, len(table))
	vocabulary := make(map[string]string, len(table))
	for raw, canonical := range table {
		key := normalizeKey(raw)
		normalized[key] = canonical
		vocabulary[key] = strings.TrimSpace(raw)
	}
	return &Normalizer{table: normalized, vocabulary: vocabulary}
}

// Normalize maps a raw status to its canonical status. Unmapped values are
// returned verbatim as a CanonicalStatus so operators can spot them.
func (n *Normalizer) Normalize(raw string) domain.CanonicalStatus {
	if canonical, ok := n.table[normalizeKey(raw)]; ok {
		return canonical
	}
	return domain.CanonicalStatus(strings.TrimSpace(raw))
}

// IsMapped reports whether the raw status has an explicit table entry.
func (n *Normalizer) IsMapped(raw string) bool {
	_, ok := n.table[normalizeKey(raw)]
	return ok
}

// RawStatusesFor returns every raw vocabulary string that maps to the given
// canonical status, in the spelling the source was configured with. The
// connector uses this to drive per-status filtered fetches against sources
// that only understand their own vocabulary.
func (n *Normalizer) RawStatusesFor(canonical domain.CanonicalStatus) []string {
	var raws []string
	for key, mapped := range n.table {
		if mapped == canonical {
			raws = append(raws, n.vocabulary[key])
		}
	}
	return raws
}

func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
