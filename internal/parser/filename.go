// Package parser derives movie identity from raw release file names.
package parser

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	ErrUnsupportedExtension = errors.New("file extension not supported")
	ErrYearNotFound         = errors.New("year not found in file name")
	ErrResolutionNotFound   = errors.New("resolution not found in file name")
	ErrTitleNotFound        = errors.New("title not found in file name")
)

// firstMovieYear is the lower bound for a token to be read as a release year
const firstMovieYear = 1888

// MovieIdentity is the canonical identity parsed from a release file name
type MovieIdentity struct {
	FileName       string // base name, as given
	Name           string // "Road House"
	Year           int
	Resolution     string // "1080p", "1080p.3D"
	ReleaseGroup   string // "YTS"
	RipType        string // "WEBRip", may be empty
	Extension      string // "mp4", without dot
	SearchableName string // "Road House (2024)"
	Slug           string // "road-house"
}

var videoExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {},
	".webm": {}, ".m4v": {}, ".mpg": {}, ".mpeg": {}, ".vob": {}, ".3gp": {},
	".3g2": {}, ".mxf": {}, ".ogv": {},
}

var (
	resolutionRegex = regexp.MustCompile(`(?i)(?:^|[.\s_\-\[\(])(480p|576p|720p|1080p|1440p|2160p)(\.3D)?(?:[.\s_\-\]\)]|$)`)
	ripTypeRegex    = regexp.MustCompile(`(?i)(?:^|[.\s_\-\[\(])(web-?dl|web-?rip|blu-?ray|brrip|bdrip|hdrip|dvdrip|hdtv|web)(?:[.\s_\-\]\)]|$)`)
	platformSuffix  = regexp.MustCompile(`(?i)\.(mx|ag|lt|am|to)$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonGroupToken   = regexp.MustCompile(`(?i)^(?:[xh]\.?26[45]|hevc|avc|xvid|divx|aac[\d.]*|ac3|dts|ddp?[\d.]*|atmos|truehd|flac|opus|10bit|hdr\d*|remux|proper|repack|3d|\d+p|[\d.]+)$`)
)

// releaseSeparators split the tokens of a release name
const releaseSeparators = "._- "

// uploaderTags are trailing bracket tags that name the uploader, not the group
var uploaderTags = map[string]struct{}{
	"tgx":   {},
	"eztv":  {},
	"rartv": {},
}

var ripTypes = map[string]string{
	"web-dl":  "WEB-DL",
	"webdl":   "WEB-DL",
	"webrip":  "WEBRip",
	"web-rip": "WEBRip",
	"bluray":  "BluRay",
	"blu-ray": "BluRay",
	"brrip":   "BRRip",
	"bdrip":   "BDRip",
	"hdrip":   "HDRip",
	"dvdrip":  "DVDRip",
	"hdtv":    "HDTV",
	"web":     "WEB",
}

// releaseGroupAliases maps lowercased tags to the canonical group name
var releaseGroupAliases = map[string]string{
	"yts":            "YTS",
	"yify":           "YTS",
	"yts.mx":         "YTS",
	"yts.ag":         "YTS",
	"yts.lt":         "YTS",
	"yts.am":         "YTS",
	"galaxyrg":       "GalaxyRG",
	"galaxyrg265":    "GalaxyRG",
	"flux":           "FLUX",
	"ethel":          "ETHEL",
	"rarbg":          "RARBG",
	"evo":            "EVO",
	"psa":            "PSA",
	"tgx":            "TGx",
	"megusta":        "MeGusta",
	"successfulcrab": "SuccessfulCrab",
	"neonoir":        "NeoNoir",
	"cmrg":           "CMRG",
	"playweb":        "playWEB",
}

// ValidateExtension checks the file name against the known video containers
// and returns the extension without the dot.
func ValidateExtension(fileName string) (string, error) {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if _, ok := videoExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return strings.TrimPrefix(ext, "."), nil
}

// IsVideoFile reports whether the name ends in a known video container extension
func IsVideoFile(fileName string) bool {
	_, err := ValidateExtension(fileName)
	return err == nil
}

// Parse extracts the movie identity from a release file name
func Parse(fileName string) (*MovieIdentity, error) {
	base := path.Base(strings.TrimSpace(fileName))

	extension, err := ValidateExtension(base)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(base, path.Ext(base))

	resolution, resolutionIdx := extractResolution(stem)
	if resolution == "" {
		return nil, fmt.Errorf("%w: %s", ErrResolutionNotFound, base)
	}

	year, yearIdx := extractYear(stem, resolutionIdx)
	if year == 0 {
		return nil, fmt.Errorf("%w: %s", ErrYearNotFound, base)
	}

	name := normalizeTitle(stem[:yearIdx])
	if name == "" {
		return nil, fmt.Errorf("%w: %s", ErrTitleNotFound, base)
	}

	return &MovieIdentity{
		FileName:       base,
		Name:           name,
		Year:           year,
		Resolution:     resolution,
		ReleaseGroup:   extractReleaseGroup(stem, resolutionIdx),
		RipType:        extractRipType(stem),
		Extension:      extension,
		SearchableName: fmt.Sprintf("%s (%d)", name, year),
		Slug:           Slugify(name),
	}, nil
}

func extractResolution(stem string) (string, int) {
	loc := resolutionRegex.FindStringSubmatchIndex(stem)
	if loc == nil {
		return "", -1
	}
	resolution := strings.ToLower(stem[loc[2]:loc[3]])
	if loc[4] != -1 {
		resolution += ".3D"
	}
	return resolution, loc[2]
}

// extractYear returns the last year token that precedes limit (or the whole
// stem when limit is negative) and leaves a non-empty title before it. Only
// tokens before the resolution count, so no upper bound is needed.
func extractYear(stem string, limit int) (int, int) {
	if limit < 0 {
		limit = len(stem)
	}

	year, idx := 0, -1
	for i := 0; i+4 <= limit; i++ {
		if i > 0 && !isSeparator(stem[i-1]) {
			continue
		}
		if i+4 < len(stem) && !isSeparator(stem[i+4]) {
			continue
		}
		candidate, ok := atoi4(stem[i : i+4])
		if !ok || candidate < firstMovieYear {
			continue
		}
		if normalizeTitle(stem[:i]) == "" {
			continue
		}
		year, idx = candidate, i
	}
	return year, idx
}

// extractReleaseGroup reads the group from the tail of the stem that starts
// at the resolution token. A trailing bracket tag wins, unless it names the
// uploader. A dash only introduces the group when it comes after the rip tag,
// so "X-Men" and "WEB-DL" are never split.
func extractReleaseGroup(stem string, tailStart int) string {
	tail := strings.TrimRight(stem[tailStart:], releaseSeparators)

	for strings.HasSuffix(tail, "]") {
		open := strings.LastIndex(tail, "[")
		if open < 0 {
			break
		}
		tag := strings.TrimSpace(tail[open+1 : len(tail)-1])
		rest := strings.TrimRight(tail[:open], releaseSeparators)
		if _, ok := uploaderTags[strings.ToLower(tag)]; ok {
			tail = rest
			continue
		}
		return canonicalReleaseGroup(tag)
	}

	boundary := 0
	if loc := ripTypeRegex.FindStringSubmatchIndex(tail); loc != nil {
		boundary = loc[3]
	}
	if dash := strings.LastIndex(tail, "-"); dash >= boundary && dash > 0 {
		return canonicalReleaseGroup(tail[dash+1:])
	}

	token := tail[strings.LastIndexAny(tail, releaseSeparators)+1:]
	if _, ok := ripTypes[strings.ToLower(token)]; ok || nonGroupToken.MatchString(token) {
		return ""
	}
	return canonicalReleaseGroup(token)
}

func canonicalReleaseGroup(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if canonical, ok := releaseGroupAliases[strings.ToLower(token)]; ok {
		return canonical
	}
	token = platformSuffix.ReplaceAllString(token, "")
	if canonical, ok := releaseGroupAliases[strings.ToLower(token)]; ok {
		return canonical
	}
	return token
}

func extractRipType(stem string) string {
	m := ripTypeRegex.FindStringSubmatch(stem)
	if m == nil {
		return ""
	}
	return ripTypes[strings.ToLower(m[1])]
}

// normalizeTitle turns dots and underscores into single spaces and drops
// bracket characters, so "The.Kept.Mistress.Killer." becomes "The Kept Mistress Killer".
func normalizeTitle(raw string) string {
	replacer := strings.NewReplacer(".", " ", "_", " ", "(", " ", ")", " ", "[", " ", "]", " ")
	title := whitespaceRun.ReplaceAllString(replacer.Replace(raw), " ")
	return strings.Trim(title, " -")
}

func isSeparator(c byte) bool {
	switch c {
	case '.', ' ', '_', '-', '(', ')', '[', ']':
		return true
	}
	return false
}

func atoi4(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}
