// Package envfwd copies caller-selected environment variables into the
// environment of a child process. Nothing is forwarded unless it is named.
package envfwd

import (
	"regexp"
	"slices"
	"strings"
)

// namePattern is the accepted shape of a forwardable variable name.
var namePattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ParsedNames is the outcome of parsing a raw pass-through list.
type ParsedNames struct {
	// Names are the valid names in first-seen order, without duplicates.
	Names []string
	// Invalid are the rejected entries in first-seen order, without duplicates.
	Invalid []string
}

// ParseNames splits raw on newlines and commas, trims every entry and
// validates it as an environment variable name.
func ParseNames(raw string) ParsedNames {
	var parsed ParsedNames
	seen := make(map[string]struct{})

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	})
	for _, field := range fields {
		entry := strings.TrimSpace(field)
		if entry == "" {
			continue
		}
		if !namePattern.MatchString(entry) {
			if !slices.Contains(parsed.Invalid, entry) {
				parsed.Invalid = append(parsed.Invalid, entry)
			}
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		parsed.Names = append(parsed.Names, entry)
	}
	return parsed
}

// Result reports what a forwarding pass did. No name appears in both lists.
type Result struct {
	Forwarded []string
	Missing   []string
}

// Forward copies each named variable from source into target, in order.
// Names in protected are skipped silently: they are neither forwarded nor
// reported missing, and the target value for them is left untouched.
// source is never modified.
func Forward(names []string, source, target map[string]string, protected map[string]struct{}) Result {
	var res Result
	for _, name := range names {
		if _, ok := protected[name]; ok {
			continue
		}
		value, ok := source[name]
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		target[name] = value
		res.Forwarded = append(res.Forwarded, name)
	}
	return res
}
