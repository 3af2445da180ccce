// Package negotiate implements quality-value-aware matching of an
// Accept-Encoding preference list against a set of available
// content-codings, per RFC 9110 section 12.5.3.
package negotiate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed reports an Accept-Encoding header value that does not
// follow the codings grammar.
var ErrMalformed = errors.New("malformed Accept-Encoding header")

// Spec is a single content-coding preference parsed from an
// Accept-Encoding header.
type Spec struct {
	// Coding is the lowercased content-coding name, or "*".
	Coding string
	// Q is the preference weight in [0, 1]. 0 marks the coding as
	// unacceptable to the client.
	Q float64
}

// Parse splits an Accept-Encoding header value into its ordered
// preference list. A missing weight parameter defaults to 1. An empty
// value yields an empty list; distinguishing an absent header from an
// empty one is the caller's concern.
func Parse(header string) ([]Spec, error) {
	var specs []Spec
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coding, params, hasParams := strings.Cut(part, ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding == "" || strings.ContainsAny(coding, " \t") {
			return nil, fmt.Errorf("%w: bad coding in %q", ErrMalformed, part)
		}
		q := 1.0
		if hasParams {
			var err error
			if q, err = parseWeight(params); err != nil {
				return nil, err
			}
		}
		specs = append(specs, Spec{Coding: coding, Q: q})
	}
	return specs, nil
}

// parseWeight parses the parameter list after a coding. The codings
// grammar allows only the weight parameter.
func parseWeight(params string) (float64, error) {
	for _, param := range strings.Split(params, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "q") {
			return 0, fmt.Errorf("%w: unexpected parameter %q", ErrMalformed, param)
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: weight %q: %w", ErrMalformed, value, err)
		}
		if q < 0 || q > 1 {
			return 0, fmt.Errorf("%w: weight %q out of range", ErrMalformed, value)
		}
		return q, nil
	}
	return 0, fmt.Errorf("%w: empty parameter list", ErrMalformed)
}

// Best picks the content-coding the client prefers most among the
// available ones. available is in server preference order; it breaks
// quality ties the client's own listing order does not resolve. A "*"
// entry covers every available coding not explicitly listed. Returns ""
// when no available coding is acceptable. Pure function, no side
// effects.
func Best(specs []Spec, available []string) string {
	if len(available) == 0 {
		return ""
	}

	type pref struct {
		q     float64
		order int
	}
	// Wildcard entries rank after every explicit listing.
	const wildcardOrder = 1 << 30

	explicit := make(map[string]pref, len(specs))
	var wildcard *pref
	for i, s := range specs {
		if s.Coding == "*" {
			if wildcard == nil {
				wildcard = &pref{q: s.Q, order: wildcardOrder}
			}
			continue
		}
		if _, seen := explicit[s.Coding]; !seen {
			explicit[s.Coding] = pref{q: s.Q, order: i}
		}
	}

	best := ""
	bestPref := pref{order: wildcardOrder + 1}
	for _, coding := range available {
		p, listed := explicit[strings.ToLower(coding)]
		if !listed {
			if wildcard == nil {
				continue
			}
			p = *wildcard
		}
		if p.q <= 0 {
			continue
		}
		if p.q > bestPref.q || (p.q == bestPref.q && p.order < bestPref.order) {
			best = coding
			bestPref = p
		}
	}
	return best
}
