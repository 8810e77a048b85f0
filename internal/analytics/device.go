package analytics

import (
	"sort"
	"strings"
)

// DeviceCategorizer infers a coarse device category from free-text device
// info via keyword matching. Like rework detection this is an explicitly
// approximate heuristic; the keyword tables are operator configuration.
type DeviceCategorizer struct {
	categories []deviceCategory
}

type deviceCategory struct {
	name     string
	keywords []string
}

// UncategorizedDevice is the bucket for device info no keyword matched.
const UncategorizedDevice = "other"

// NewDeviceCategorizer builds a categorizer from category to keyword
// tables. Map iteration order is nondeterministic, so categories are
// matched in name order to keep inference stable.
func NewDeviceCategorizer(table map[string][]string) *DeviceCategorizer {
	c := &DeviceCategorizer{}
	for name, keywords := range table {
		cleaned := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				cleaned = append(cleaned, kw)
			}
		}
		c.categories = append(c.categories, deviceCategory{name: name, keywords: cleaned})
	}
	// Stable ordering by name keeps classification deterministic when
	// keyword sets overlap.
	sort.Slice(c.categories, func(i, j int) bool {
		return c.categories[i].name < c.categories[j].name
	})
	return c
}

// Categorize returns the first category whose keyword appears in the
// device info, or UncategorizedDevice.
func (c *DeviceCategorizer) Categorize(deviceInfo string) string {
	lowered := strings.ToLower(deviceInfo)
	for _, cat := range c.categories {
		for _, kw := range cat.keywords {
			if strings.Contains(lowered, kw) {
				return cat.name
			}
		}
	}
	return UncategorizedDevice
}
