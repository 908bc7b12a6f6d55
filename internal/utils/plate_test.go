package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ab-12 cde", "AB12CDE"},
		{"AB12CDE", "AB12CDE"},
		{"  xyz 999  ", "XYZ999"},
		{"b 123 cd 777", "B123CD777"},
		{"---", ""},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePlate(c.in), "input %q", c.in)
	}
}

func TestConfusionSwapIsSymmetric(t *testing.T) {
	pairs := map[byte]byte{'0': 'O', '1': 'I', '5': 'S', '8': 'B'}
	for a, b := range pairs {
		got, ok := ConfusionSwap(a)
		assert.True(t, ok)
		assert.Equal(t, b, got)

		back, ok := ConfusionSwap(b)
		assert.True(t, ok)
		assert.Equal(t, a, back)
	}

	_, ok := ConfusionSwap('X')
	assert.False(t, ok)
}
