// Package naming produces stable, human- and filesystem-friendly names:
// display names that disambiguate duplicate location names (spec.md
// §4.8 step 2, §8 property 8), and slugs for web-root directories.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Entry pairs a configured name with its NWP model kind, for Disambiguate.
type Entry struct {
	Name string
	Kind string // "ensemble" or "deterministic"
}

// Disambiguate returns a display name per entry, in the same order as
// entries. Names that appear once are returned unchanged. A name that
// appears exactly twice with two distinct kinds is suffixed
// " (Deterministic)" / " (Ensemble)"; any other duplication is
// disambiguated with a 1-based index suffix ("Name 1", "Name 2", ...).
func Disambiguate(entries []Entry) []string {
	counts := make(map[string]int, len(entries))
	kindSets := make(map[string]map[string]bool, len(entries))
	for _, e := range entries {
		counts[e.Name]++
		set := kindSets[e.Name]
		if set == nil {
			set = make(map[string]bool, 2)
			kindSets[e.Name] = set
		}
		set[e.Kind] = true
	}

	useKindSuffix := make(map[string]bool, len(counts))
	for name, count := range counts {
		useKindSuffix[name] = count == 2 && len(kindSets[name]) == 2
	}

	occurrence := make(map[string]int, len(entries))
	result := make([]string, len(entries))
	for i, e := range entries {
		if counts[e.Name] == 1 {
			result[i] = e.Name
			continue
		}
		occurrence[e.Name]++
		switch {
		case useKindSuffix[e.Name] && e.Kind == "deterministic":
			result[i] = e.Name + " (Deterministic)"
		case useKindSuffix[e.Name] && e.Kind == "ensemble":
			result[i] = e.Name + " (Ensemble)"
		default:
			result[i] = e.Name + " " + itoa(occurrence[e.Name])
		}
	}
	return result
}

// Slugify produces a lowercase, hyphenated, filesystem-safe identifier
// from a display name: diacritics are stripped via NFD normalization,
// runs of non-alphanumeric characters collapse to a single hyphen, and
// leading/trailing hyphens are trimmed.
func Slugify(name string) string {
	decomposed := norm.NFD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	lastWasHyphen := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark dropped by NFD decomposition; skip it.
			continue
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
			lastWasHyphen = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastWasHyphen = false
		default:
			if !lastWasHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastWasHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
