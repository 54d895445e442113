// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package slug reduces arbitrary Unicode strings to ASCII identifiers.
//
// [Compact] produces the lowercase alphanumeric form used as the base for
// synthesized usernames ("josegarcia").
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compact folds s to lowercase ASCII letters and digits only.
//
//	slug.Compact("Zoë O'Brien") // "zoeobrien"
func Compact(s string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(fold(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// fold decomposes s and removes accents.
func fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
