// Package filter provides include filtering for appointments.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/config"
)

// MatchType specifies how a filter rule matches.
type MatchType int

const (
	MatchContains MatchType = iota // Substring match (default)
	MatchExact                     // Exact string match
	MatchPrefix                    // Starts with
	MatchSuffix                    // Ends with
	MatchRegex                     // Regular expression
)

// Filter applies include rules to appointments.
type Filter struct {
	mode  string // "or" or "and"
	rules []rule
}

type rule struct {
	field           string
	matchType       MatchType
	pattern         string
	regex           *regexp.Regexp
	caseInsensitive bool
}

// New creates a new filter from configuration.
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{
		mode: cfg.Mode,
	}
	if f.mode == "" {
		f.mode = "or"
	}

	for i, r := range cfg.Rules {
		compiled, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		f.rules = append(f.rules, compiled)
	}

	return f, nil
}

func compileRule(r config.FilterRule) (rule, error) {
	compiled := rule{
		field:           r.Field,
		caseInsensitive: r.CaseInsensitive,
	}

	switch r.Field {
	case "title", "location", "description":
	default:
		return compiled, fmt.Errorf("unknown field %q", r.Field)
	}

	if r.Regex != "" {
		pattern := r.Regex
		if r.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return compiled, fmt.Errorf("invalid regex %q: %w", r.Regex, err)
		}
		compiled.matchType = MatchRegex
		compiled.regex = re
		return compiled, nil
	}

	switch {
	case r.Exact != "":
		compiled.matchType, compiled.pattern = MatchExact, r.Exact
	case r.Prefix != "":
		compiled.matchType, compiled.pattern = MatchPrefix, r.Prefix
	case r.Suffix != "":
		compiled.matchType, compiled.pattern = MatchSuffix, r.Suffix
	case r.Contains != "":
		compiled.matchType, compiled.pattern = MatchContains, r.Contains
	default:
		return compiled, fmt.Errorf("no match pattern specified (use contains, exact, prefix, suffix, or regex)")
	}

	if r.CaseInsensitive {
		compiled.pattern = strings.ToLower(compiled.pattern)
	}
	return compiled, nil
}

// Apply returns the appointments that match the include rules.
// If no rules are defined, appts is returned unchanged.
func (f *Filter) Apply(appts []appointment.Appointment) []appointment.Appointment {
	if f == nil || len(f.rules) == 0 {
		return appts
	}

	var filtered []appointment.Appointment
	for _, a := range appts {
		if f.matches(a) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func (f *Filter) matches(a appointment.Appointment) bool {
	if f.mode == "and" {
		for _, r := range f.rules {
			if !r.matches(a) {
				return false
			}
		}
		return true
	}

	for _, r := range f.rules {
		if r.matches(a) {
			return true
		}
	}
	return false
}

func (r *rule) matches(a appointment.Appointment) bool {
	value := r.fieldValue(a)

	if r.caseInsensitive && r.matchType != MatchRegex {
		value = strings.ToLower(value)
	}

	switch r.matchType {
	case MatchRegex:
		return r.regex.MatchString(value)
	case MatchExact:
		return value == r.pattern
	case MatchPrefix:
		return strings.HasPrefix(value, r.pattern)
	case MatchSuffix:
		return strings.HasSuffix(value, r.pattern)
	default:
		return strings.Contains(value, r.pattern)
	}
}

func (r *rule) fieldValue(a appointment.Appointment) string {
	switch r.field {
	case "title":
		return a.Title
	case "location":
		return a.Location
	case "description":
		return a.Description
	default:
		return ""
	}
}
