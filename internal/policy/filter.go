// Package policy decides whether a fetched ticket is in scope for a given
// source instance, based on per-source technician allow/deny rules and a
// workshop deny-list.
package policy

import "strings"

// SourcePolicy holds the scoping rules for one source instance. The
// allow-list admits named technicians plus unassigned tickets; the deny
// lists are applied afterwards and always win.
type SourcePolicy struct {
	AllowedTechnicians []string `yaml:"allowed_technicians"`
	DeniedTechnicians  []string `yaml:"denied_technicians"`
	DeniedWorkshops    []string `yaml:"denied_workshops"`
}

// Decision reports a filtering outcome along with the rule that produced
// it, so every exclusion is explainable in logs.
type Decision struct {
	InScope     bool
	MatchedRule string
}

// Filter evaluates scope policies per source instance.
type Filter struct {
	policies map[string]SourcePolicy
}

// NewFilter builds a filter from per-source policies keyed by source
// instance name. Sources without a policy admit everything.
func NewFilter(policies map[string]SourcePolicy) *Filter {
	return &Filter{policies: policies}
}

// Evaluate decides whether a ticket assigned to the named technician at the
// named workshop is in scope for the source.
func (f *Filter) Evaluate(sourceInstance, technician, workshop string) Decision {
	pol, ok := f.policies[sourceInstance]
	if !ok {
		return Decision{InScope: true, MatchedRule: "no policy for source"}
	}

	// Workshop denial overrides everything, allow-list included.
	if name, denied := matchName(pol.DeniedWorkshops, workshop); denied {
		return Decision{InScope: false, MatchedRule: "workshop denied: " + name}
	}

	// Unassigned tickets remain in scope so new intake is never dropped.
	if strings.TrimSpace(technician) == "" {
		return Decision{InScope: true, MatchedRule: "unassigned"}
	}

	if len(pol.AllowedTechnicians) > 0 {
		name, allowed := matchName(pol.AllowedTechnicians, technician)
		if !allowed {
			return Decision{InScope: false, MatchedRule: "technician not on allow-list"}
		}
		if denied, isDenied := matchName(pol.DeniedTechnicians, technician); isDenied {
			return Decision{InScope: false, MatchedRule: "technician denied: " + denied}
		}
		return Decision{InScope: true, MatchedRule: "technician allowed: " + name}
	}

	if name, denied := matchName(pol.DeniedTechnicians, technician); denied {
		return Decision{InScope: false, MatchedRule: "technician denied: " + name}
	}
	return Decision{InScope: true, MatchedRule: "no allow-list"}
}

// IsInScope is the boolean shorthand for Evaluate.
func (f *Filter) IsInScope(sourceInstance, technician, workshop string) bool {
	return f.Evaluate(sourceInstance, technician, workshop).InScope
}

func matchName(list []string, candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	for _, name := range list {
		if strings.EqualFold(strings.TrimSpace(name), candidate) {
			return name, true
		}
	}
	return "", false
}
