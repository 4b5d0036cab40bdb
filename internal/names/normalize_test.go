package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases",
			input:    "Novak DJOKOVIC",
			expected: "novak djokovic",
		},
		{
			name:     "strips diacritics",
			input:    "Gaël Monfils",
			expected: "gael monfils",
		},
		{
			name:     "strips stacked diacritics",
			input:    "Björn Söderling-Ñúñez",
			expected: "bjorn soderling-nunez",
		},
		{
			name:     "swaps comma form",
			input:    "DJOKOVIC, Novak",
			expected: "novak djokovic",
		},
		{
			name:     "strips junior suffix",
			input:    "John Smith Jr.",
			expected: "john smith",
		},
		{
			name:     "strips roman numeral suffix",
			input:    "Frances Tiafoe II",
			expected: "frances tiafoe",
		},
		{
			name:     "collapses whitespace",
			input:    "  Juan   Martin   del  Potro ",
			expected: "juan martin del potro",
		},
		{
			name:     "comma form with diacritics and suffix",
			input:    "MÜLLER, Alexander Jr",
			expected: "alexander muller",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "idempotent on normalized input",
			input:    "casper ruud",
			expected: "casper ruud",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	input := "PLÍŠKOVÁ, Karolína jr."

	first := Normalize(input)
	second := Normalize(first)

	assert.Equal(t, first, Normalize(input))
	assert.Equal(t, first, second, "normalization must be idempotent")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "juan-martin-del-potro", Slug("Juan Martin del Potro"))
	assert.Equal(t, "karolina-pliskova", Slug("PLÍŠKOVÁ, Karolína"))
}

func TestLastName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple",
			input:    "novak djokovic",
			expected: "djokovic",
		},
		{
			name:     "compound particle",
			input:    "juan martin del potro",
			expected: "del potro",
		},
		{
			name:     "van particle",
			input:    "botic van de zandschulp",
			expected: "van de zandschulp",
		},
		{
			name:     "single token",
			input:    "djokovic",
			expected: "djokovic",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LastName(tt.input))
		})
	}
}

func TestIsAbbreviated(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"j. del potro", true},
		{"j del potro", true},
		{"jm. del potro", true},
		{"juan martin del potro", false},
		{"k. pliskova", true},
		{"karolina pliskova", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAbbreviated(tt.input))
		})
	}
}

func TestInitialsCompatible(t *testing.T) {
	assert.True(t, InitialsCompatible("j. del potro", "juan martin del potro"))
	assert.True(t, InitialsCompatible("k. pliskova", "karolina pliskova"))
	assert.False(t, InitialsCompatible("m. del potro", "juan martin del potro"))
	assert.False(t, InitialsCompatible("", "juan martin del potro"))
}
