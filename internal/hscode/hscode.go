// Package hscode normalizes Harmonized System classification codes.
// Codes are hierarchical by digit prefix: the first 2 digits identify a
// chapter, the first 4 a heading, the first 6 a subheading. The compact
// (digits-only) form is canonical; dotted forms like "8542.31.00" are
// accepted on input and stripped before comparison or cache keying.
package hscode

import "strings"

// Normalize strips every non-digit rune, yielding the canonical compact form.
func Normalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValid reports whether the code contains at least a chapter prefix
// after normalization.
func IsValid(code string) bool {
	return len(Normalize(code)) >= 2
}

// Pad8 normalizes and right-pads the code with zeros to 8 digits.
// Codes already longer than 8 digits are returned as-is.
func Pad8(code string) string {
	c := Normalize(code)
	if c == "" || len(c) > 8 {
		return c
	}
	return c + strings.Repeat("0", 8-len(c))
}

// Dotted returns the 8-digit dotted representation "NNNN.NN.NN" used by
// treaty rate tables. Input shorter than 8 digits is zero-padded first.
func Dotted(code string) string {
	c := Pad8(code)
	if len(c) < 8 {
		return c
	}
	return c[:4] + "." + c[4:6] + "." + c[6:8]
}

// Chapter returns the 2-digit chapter prefix, or "" if the code is too short.
func Chapter(code string) string {
	return prefix(code, 2)
}

// Heading returns the 4-digit heading prefix, or "" if the code is too short.
func Heading(code string) string {
	return prefix(code, 4)
}

// Subheading returns the 6-digit subheading prefix, or "" if the code is
// too short.
func Subheading(code string) string {
	return prefix(code, 6)
}

// SameSubheading reports whether two codes share their first 6 digits after
// zero-padding to 8. This is the relevance test used for policy-change
// matching: a component is affected when its subheading matches.
func SameSubheading(a, b string) bool {
	pa, pb := Pad8(a), Pad8(b)
	if len(pa) < 6 || len(pb) < 6 {
		return false
	}
	return pa[:6] == pb[:6]
}

func prefix(code string, n int) string {
	c := Normalize(code)
	if len(c) < n {
		return ""
	}
	return c[:n]
}
