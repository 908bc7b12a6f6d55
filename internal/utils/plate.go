package utils

import "strings"

// NormalizePlate upper-cases a raw plate read and strips everything that is
// not a letter or digit, so that "ab-12 cde" and "AB12CDE" key the same
// vehicle.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// confusions maps OCR look-alike characters in both directions. Applied only
// to characters the recognizer reports as low confidence.
var confusions = map[byte]byte{
	'0': 'O', 'O': '0',
	'1': 'I', 'I': '1',
	'5': 'S', 'S': '5',
	'8': 'B', 'B': '8',
}

// ConfusionSwap returns the look-alike counterpart for c and whether one
// exists.
func ConfusionSwap(c byte) (byte, bool) {
	swapped, ok := confusions[c]
	return swapped, ok
}
