package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FileNameHash returns the lookup key for a file name. Names are trimmed and
// NFC-normalized first so visually identical names hash the same.
func FileNameHash(fileName string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(strings.TrimSpace(fileName))))
	return hex.EncodeToString(sum[:])
}

// Slugify lowercases the name, strips diacritics and joins words with dashes
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
