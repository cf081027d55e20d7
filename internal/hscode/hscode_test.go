package hscode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"85423100", "85423100"},
		{"8542.31.00", "85423100"},
		{"8542.31", "854231"},
		{" 8542 31 ", "854231"},
		{"HS 8542.31.00", "85423100"},
		{"", ""},
		{"no digits", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestPad8(t *testing.T) {
	assert.Equal(t, "85423100", Pad8("854231"))
	assert.Equal(t, "85000000", Pad8("85"))
	assert.Equal(t, "85423100", Pad8("8542.31.00"))
	assert.Equal(t, "8542310012", Pad8("8542310012"))
	assert.Equal(t, "", Pad8(""))
}

func TestDotted(t *testing.T) {
	assert.Equal(t, "8542.31.00", Dotted("85423100"))
	assert.Equal(t, "8542.31.00", Dotted("854231"))
	assert.Equal(t, "8542.00.00", Dotted("8542"))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, "85", Chapter("8542.31.00"))
	assert.Equal(t, "8542", Heading("85423100"))
	assert.Equal(t, "854231", Subheading("85423100"))
	assert.Equal(t, "", Subheading("8542"))
	assert.Equal(t, "", Chapter("8"))
}

func TestSameSubheading(t *testing.T) {
	assert.True(t, SameSubheading("85423100", "8542.31.00"))
	assert.True(t, SameSubheading("854231", "85423199"))
	assert.False(t, SameSubheading("85423100", "85423200"))
	// Short codes zero-pad, so chapter-only input matches its zero subheading.
	assert.True(t, SameSubheading("85", "85000000"))
	assert.False(t, SameSubheading("", "85423100"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("85"))
	assert.True(t, IsValid("8542.31.00"))
	assert.False(t, IsValid("8"))
	assert.False(t, IsValid("n/a"))
}
