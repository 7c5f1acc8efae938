package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims s and converts it to NFC so clock names typed in
// different normal forms compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
