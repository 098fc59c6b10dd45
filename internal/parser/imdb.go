package parser

import (
	"strconv"
	"strings"
)

// ExternalIDDigits strips the "tt" prefix of an IMDB-style id, returning ""
// when what remains is not numeric.
func ExternalIDDigits(externalID string) string {
	digits := strings.TrimPrefix(strings.TrimSpace(externalID), "tt")
	if digits == "" {
		return ""
	}
	if _, err := strconv.Atoi(digits); err != nil {
		return ""
	}
	return digits
}
