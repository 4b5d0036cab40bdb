package names

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/xrash/smetrics"
)

const (
	// jaroWinklerBoost and jaroWinklerPrefix are the conventional
	// Jaro-Winkler parameters: prefix bonus kicks in above 0.7 similarity,
	// over at most the first 4 characters.
	jaroWinklerBoost  = 0.7
	jaroWinklerPrefix = 4

	ratioScale = 100.0
)

// Comparator scores how likely two player names refer to the same person.
// The zero value is not usable; construct with NewComparator.
type Comparator struct {
	abbreviationBonus float64
}

// NewComparator creates a Comparator with the given abbreviation bonus.
// The bonus is added when last names match exactly and exactly one side is
// an abbreviation compatible with the other's first initial; it is clamped
// to [0, 1].
func NewComparator(abbreviationBonus float64) *Comparator {
	switch {
	case abbreviationBonus < 0:
		abbreviationBonus = 0
	case abbreviationBonus > 1:
		abbreviationBonus = 1
	}

	return &Comparator{abbreviationBonus: abbreviationBonus}
}

// Similarity returns a score in [0, 1] for two raw (un-normalized) names.
//
// The score is the maximum of three signals, plus the abbreviation bonus:
//   - Jaro-Winkler over the full normalized strings.
//   - Token-sort ratio, which survives word-order flips
//     ("novak djokovic" vs "djokovic novak").
//   - Partial ratio, which survives substrings and abbreviations
//     ("del potro" inside "juan martin del potro").
//
// Identical normalized forms short-circuit to 1.0.
func (c *Comparator) Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}

	if na == nb {
		return 1
	}

	score := smetrics.JaroWinkler(na, nb, jaroWinklerBoost, jaroWinklerPrefix)

	if tokenSort := float64(fuzzy.TokenSortRatio(na, nb)) / ratioScale; tokenSort > score {
		score = tokenSort
	}

	if partial := float64(fuzzy.PartialRatio(na, nb)) / ratioScale; partial > score {
		score = partial
	}

	if c.abbreviationApplies(na, nb) {
		score += c.abbreviationBonus
	}

	if score > 1 {
		return 1
	}

	return score
}

// AbbreviationMatch reports whether two raw names form an unambiguous
// abbreviation pair: equal last names, exactly one side abbreviated, and the
// abbreviated side's initial compatible with the full side's first name.
// This is the gate used by the identity resolver's abbreviated-name fallback
// and by merge-recovery safety checks.
func (c *Comparator) AbbreviationMatch(a, b string) bool {
	return c.abbreviationApplies(Normalize(a), Normalize(b))
}

func (c *Comparator) abbreviationApplies(na, nb string) bool {
	lastA, lastB := LastName(na), LastName(nb)
	if lastA == "" || lastA != lastB {
		return false
	}

	abbrevA, abbrevB := IsAbbreviated(na), IsAbbreviated(nb)
	if abbrevA == abbrevB {
		// Either both spelled out or both abbreviated; the bonus only
		// rewards the asymmetric case where one side carries an initial.
		return false
	}

	if abbrevA {
		return InitialsCompatible(na, nb)
	}

	return InitialsCompatible(nb, na)
}
