package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blacklist holds terms for release file names that must never be indexed
type Blacklist struct {
	terms []string
}

// NewBlacklist builds a blacklist from in-memory terms
func NewBlacklist(terms ...string) *Blacklist {
	b := &Blacklist{}
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			b.terms = append(b.terms, term)
		}
	}
	return b
}

// LoadBlacklist loads blacklist terms from a file, one per line.
// Blank lines and lines starting with # are ignored.
func LoadBlacklist(path string) (*Blacklist, error) {
	// If file doesn't exist, return empty blacklist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Blacklist{terms: []string{}}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Blacklist{terms: terms}, nil
}

// IsBlacklisted checks if a release file name matches any blacklist term
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(fileName string) (bool, string) {
	if b == nil {
		return false, ""
	}
	nameLower := strings.ToLower(fileName)

	for _, term := range b.terms {
		if strings.Contains(nameLower, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}

// Len returns the number of loaded terms
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.terms)
}
