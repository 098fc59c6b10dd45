package models

import "time"

// Title represents a movie known to the catalog
type Title struct {
	ID         uint64 `boltholdKey:"ID"`
	ExternalID string `boltholdIndex:"ExternalID"` // catalog id, e.g. "tt0080745"

	Name     string
	Year     int
	Rating   float64
	Poster   string
	Backdrop string

	// Usage counters
	QueriedTimes  int
	SearchedTimes int

	CreatedAt time.Time
}

// ReleaseGroup is reference data for the encoder tag of a release
type ReleaseGroup struct {
	ID      uint64 `boltholdKey:"ID"`
	Name    string `boltholdIndex:"Name"`
	Website string
}

// SubtitleGroup is reference data for a subtitle source
type SubtitleGroup struct {
	ID      uint64 `boltholdKey:"ID"`
	Name    string `boltholdIndex:"Name"`
	Website string
}

// Subtitle is one stored subtitle artifact for a release file name
type Subtitle struct {
	ID              uint64 `boltholdKey:"ID"`
	TitleID         uint64 `boltholdIndex:"TitleID"`
	ReleaseGroupID  uint64
	SubtitleGroupID uint64

	Resolution   string
	RipType      string
	FileName     string
	FileNameHash string `boltholdIndex:"FileNameHash"`
	Bytes        int64  // size of the originating video, 0 when unknown

	ObjectKey    string
	SubtitleLink string

	QueriedTimes    int
	DownloadedTimes int

	CreatedAt time.Time
}

// SubtitleNotFound records a lookup miss to be indexed on demand
type SubtitleNotFound struct {
	ID        uint64 `boltholdKey:"ID"`
	FileName  string `boltholdIndex:"FileName"`
	Bytes     int64
	CreatedAt time.Time
}

// SubtitleView joins a subtitle with the records it references
type SubtitleView struct {
	Subtitle      Subtitle
	Title         Title
	ReleaseGroup  ReleaseGroup
	SubtitleGroup SubtitleGroup
}

// Stats summarizes the store contents
type Stats struct {
	Titles    int `json:"titles"`
	Subtitles int `json:"subtitles"`
	NotFound  int `json:"not_found"`
}

// Subtitle group names known to the indexer
const (
	SubtitleGroupSubDivX       = "SubDivX"
	SubtitleGroupArgenteam     = "Argenteam"
	SubtitleGroupOpenSubtitles = "OpenSubtitles"
)

// DefaultReleaseGroups is the reference data seeded on first start
var DefaultReleaseGroups = []ReleaseGroup{
	{Name: "YTS", Website: "https://yts.mx"},
	{Name: "GalaxyRG", Website: "https://torrentgalaxy.to"},
	{Name: "FLUX", Website: "https://torrentgalaxy.to"},
	{Name: "ETHEL", Website: "https://torrentgalaxy.to"},
	{Name: "RARBG", Website: "https://rarbg.to"},
	{Name: "EVO", Website: "https://evo.to"},
}

// DefaultSubtitleGroups is seeded in this order, so later groups are
// preferred when several subtitles exist for one file name.
var DefaultSubtitleGroups = []SubtitleGroup{
	{Name: SubtitleGroupSubDivX, Website: "https://www.subdivx.com"},
	{Name: SubtitleGroupArgenteam, Website: "https://argenteam.net"},
	{Name: SubtitleGroupOpenSubtitles, Website: "https://www.opensubtitles.com"},
}
