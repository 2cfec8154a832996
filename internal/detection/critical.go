package detection

import (
	"sort"
	"strings"
)

// DefaultCriticalObjects is the critical-object list used when none is
// configured.
var DefaultCriticalObjects = []string{"person", "knife", "scissors", "fire hydrant"}

// CriticalSet is the single source of truth for which class labels get
// distinct visual treatment. It is immutable after construction and safe for
// concurrent use. Membership is case-insensitive.
type CriticalSet struct {
	labels map[string]struct{}
}

// NewCriticalSet builds a CriticalSet from the given labels. Blank entries are
// ignored.
func NewCriticalSet(labels ...string) CriticalSet {
	s := CriticalSet{labels: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		key := normalizeLabel(l)
		if key == "" {
			continue
		}
		s.labels[key] = struct{}{}
	}
	return s
}

// Contains reports whether label is a critical object.
func (s CriticalSet) Contains(label string) bool {
	_, ok := s.labels[normalizeLabel(label)]
	return ok
}

// Len returns the number of labels in the set.
func (s CriticalSet) Len() int {
	return len(s.labels)
}

// List returns the labels in sorted order.
func (s CriticalSet) List() []string {
	out := make([]string, 0, len(s.labels))
	for l := range s.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func normalizeLabel(l string) string {
	return strings.ToLower(strings.TrimSpace(l))
}
