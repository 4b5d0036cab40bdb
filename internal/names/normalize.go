// Package names provides player name normalization and similarity scoring.
//
// Tour sites disagree on almost everything about a player's name: case,
// diacritics, "LAST, First" ordering, generational suffixes, and whether the
// first name is spelled out or abbreviated ("J. del Potro"). Every alias
// stored by the identity service goes through Normalize first so that string
// equality means name equality.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const commaParts = 2

// suffixes are generational name suffixes stripped during normalization.
// Keys are compared against lowercased tokens.
var suffixes = map[string]struct{}{
	"jr":  {},
	"jr.": {},
	"sr":  {},
	"sr.": {},
	"ii":  {},
	"iii": {},
	"iv":  {},
}

// particles are compound last-name particles that bind to the trailing word,
// so "Juan Martin del Potro" yields last name "del potro", not "potro".
var particles = map[string]struct{}{
	"de":  {},
	"del": {},
	"van": {},
	"von": {},
	"da":  {},
	"di":  {},
	"la":  {},
	"le":  {},
}

// diacriticStripper removes combining marks after canonical decomposition.
// Built once; transform.String is safe for concurrent use.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize converts a scraped player name into the canonical alias form.
//
// Normalization rules, applied in order:
//  1. Lowercase.
//  2. Unicode-decompose and strip combining marks ("Müller" → "muller").
//  3. If a comma is present, swap "LAST, First" → "First Last".
//  4. Strip generational suffixes {jr, jr., sr, sr., ii, iii, iv}.
//  5. Collapse whitespace runs to single spaces.
//
// The function is pure and deterministic: the same input always yields the
// same output, which is what makes alias equality usable as an identity
// strategy.
//
// Examples:
//   - Normalize("DJOKOVIC, Novak") → "novak djokovic"
//   - Normalize("Gaël  Monfils") → "gael monfils"
//   - Normalize("John Smith Jr.") → "john smith"
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = stripDiacritics(s)
	s = swapCommaForm(s)
	s = stripSuffixes(s)

	return collapseWhitespace(s)
}

// Slug converts a name into the hyphenated form used inside match external
// IDs when no tour player ID is available: normalized, spaces → hyphens.
func Slug(name string) string {
	return strings.ReplaceAll(Normalize(name), " ", "-")
}

// LastName extracts the last name from a normalized name, binding compound
// particles to the trailing word.
//
// Examples:
//   - LastName("juan martin del potro") → "del potro"
//   - LastName("novak djokovic") → "djokovic"
//   - LastName("karolina pliskova") → "pliskova"
func LastName(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}

	last := tokens[len(tokens)-1]

	for i := len(tokens) - 2; i >= 0; i-- {
		if _, ok := particles[tokens[i]]; !ok {
			break
		}

		last = tokens[i] + " " + last
	}

	return last
}

// FirstToken returns the first whitespace-delimited token of a normalized
// name, or "" for empty input.
func FirstToken(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}

	return tokens[0]
}

// IsAbbreviated reports whether a normalized name starts with an initial
// rather than a full first name: the first token has at most one alphabetic
// character or ends with a period ("j. del potro", "k pliskova").
func IsAbbreviated(normalized string) bool {
	first := FirstToken(normalized)
	if first == "" {
		return false
	}

	if strings.HasSuffix(first, ".") {
		return true
	}

	alpha := 0

	for _, r := range first {
		if unicode.IsLetter(r) {
			alpha++
		}
	}

	return alpha <= 1
}

// InitialsCompatible reports whether the abbreviated name's first initial
// matches the full name's first token ("j." is compatible with "juan").
// Both arguments must be normalized; the first is the abbreviated side.
func InitialsCompatible(abbreviated, full string) bool {
	abbrevInitial := firstAlpha(FirstToken(abbreviated))
	fullInitial := firstAlpha(FirstToken(full))

	return abbrevInitial != 0 && abbrevInitial == fullInitial
}

func firstAlpha(token string) rune {
	for _, r := range token {
		if unicode.IsLetter(r) {
			return r
		}
	}

	return 0
}

func stripDiacritics(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		// Transform failures are possible only on invalid UTF-8; keep the
		// original bytes rather than dropping the name.
		return s
	}

	return stripped
}

func swapCommaForm(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}

	parts := strings.SplitN(s, ",", commaParts)
	if len(parts) != commaParts {
		return s
	}

	return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0])
}

func stripSuffixes(s string) string {
	tokens := strings.Fields(s)

	for len(tokens) > 1 {
		if _, ok := suffixes[tokens[len(tokens)-1]]; !ok {
			break
		}

		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
