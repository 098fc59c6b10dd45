package parser

import "regexp"

// Cinema recordings and non-feature uploads are never indexed. WEBRip and
// HDRip are legitimate digital sources and are not part of this list.
var cinemaRegex = regexp.MustCompile(`(?i)(?:^|[.\s_\-\[\(])(hdcam|hdcamrip|hqcam|hq-cam|telesync|hdts|hd-ts|c1nem4|qrips|cam|camrip|dvdscr|hdcam-rip|hdcam-c1nem4|soundtrack|xxx|khz)(?:[.\s_\-\]\)]|$)`)

var tvShowRegex = regexp.MustCompile(`(?i)(?:^|[.\s_\-])s\d{1,2}e\d{1,3}(?:[.\s_\-]|$)`)

// IsCinemaRecording reports whether the release name carries a cinema recording tag
func IsCinemaRecording(fileName string) bool {
	return cinemaRegex.MatchString(fileName)
}

// IsTVShow reports whether the file name carries an SxxExx episode marker
func IsTVShow(fileName string) bool {
	return tvShowRegex.MatchString(fileName)
}
