package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAbbreviationBonus = 0.15

func TestSimilarity_IdenticalAfterNormalization(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	assert.InDelta(t, 1.0, comparator.Similarity("Novak Djokovic", "DJOKOVIC, Novak"), 1e-9)
	assert.InDelta(t, 1.0, comparator.Similarity("Gaël Monfils", "gael monfils"), 1e-9)
}

func TestSimilarity_WordOrderFlip(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	score := comparator.Similarity("djokovic novak", "novak djokovic")

	assert.GreaterOrEqual(t, score, 0.95, "token-sort ratio should recover word-order flips")
}

func TestSimilarity_AbbreviationBonusApplies(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	withBonus := comparator.Similarity("J. del Potro", "Juan Martin del Potro")
	withoutBonus := NewComparator(0).Similarity("J. del Potro", "Juan Martin del Potro")

	assert.InDelta(t, testAbbreviationBonus, withBonus-withoutBonus, 1e-9,
		"abbreviated first name with matching last name earns the bonus")
	assert.LessOrEqual(t, withBonus, 1.0)
}

func TestSimilarity_NoBonusForDifferentLastNames(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	withPossibleBonus := comparator.Similarity("C. Ruud", "Casper Rune")
	plain := NewComparator(0).Similarity("C. Ruud", "Casper Rune")

	assert.InDelta(t, plain, withPossibleBonus, 1e-9)
}

func TestSimilarity_NoBonusWhenBothSpelledOut(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	withPossibleBonus := comparator.Similarity("Karolina Pliskova", "Kristyna Pliskova")
	plain := NewComparator(0).Similarity("Karolina Pliskova", "Kristyna Pliskova")

	assert.InDelta(t, plain, withPossibleBonus, 1e-9,
		"two full first names sharing a last name must not earn the bonus")
}

func TestSimilarity_IncompatibleInitialGetsNoBonus(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	withPossibleBonus := comparator.Similarity("M. Pliskova", "Karolina Pliskova")
	plain := NewComparator(0).Similarity("M. Pliskova", "Karolina Pliskova")

	assert.InDelta(t, plain, withPossibleBonus, 1e-9)
}

func TestSimilarity_ClampsToOne(t *testing.T) {
	comparator := NewComparator(1.0)

	score := comparator.Similarity("K. Pliskova", "Karolina Pliskova")

	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.9)
}

func TestSimilarity_EmptyInput(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	assert.Zero(t, comparator.Similarity("", "Casper Ruud"))
	assert.Zero(t, comparator.Similarity("Casper Ruud", ""))
}

func TestSimilarity_UnrelatedNamesScoreLow(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	score := comparator.Similarity("Novak Djokovic", "Iga Swiatek")

	assert.Less(t, score, 0.7)
}

func TestNewComparator_ClampsBonus(t *testing.T) {
	require.NotNil(t, NewComparator(-1))
	require.NotNil(t, NewComparator(2))

	low := NewComparator(-1).Similarity("J. del Potro", "Juan Martin del Potro")
	base := NewComparator(0).Similarity("J. del Potro", "Juan Martin del Potro")

	assert.InDelta(t, base, low, 1e-9, "negative bonus clamps to zero")
}

func TestAbbreviationMatch(t *testing.T) {
	comparator := NewComparator(testAbbreviationBonus)

	tests := []struct {
		name     string
		a        string
		b        string
		expected bool
	}{
		{
			name:     "abbreviation against full name",
			a:        "J. del Potro",
			b:        "Juan Martin del Potro",
			expected: true,
		},
		{
			name:     "full name against abbreviation",
			a:        "Karolina Pliskova",
			b:        "K. Pliskova",
			expected: true,
		},
		{
			name:     "wrong initial",
			a:        "M. Pliskova",
			b:        "Karolina Pliskova",
			expected: false,
		},
		{
			name:     "both full names",
			a:        "Karolina Pliskova",
			b:        "Kristyna Pliskova",
			expected: false,
		},
		{
			name:     "different last names",
			a:        "C. Ruud",
			b:        "Casper Rune",
			expected: false,
		},
		{
			name:     "charlotte ruud never aliases casper ruud",
			a:        "Charlotte Ruud",
			b:        "Casper Ruud",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, comparator.AbbreviationMatch(tt.a, tt.b))
		})
	}
}
