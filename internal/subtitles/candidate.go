// Package subtitles resolves subtitle candidates for a parsed release across providers.
package subtitles

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/amaumene/subtis/internal/parser"
)

// ContainerKind is how a candidate's payload is packaged
type ContainerKind int

const (
	KindZip ContainerKind = iota
	KindRar
	KindPlaintext
)

func (k ContainerKind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindRar:
		return "rar"
	case KindPlaintext:
		return "plaintext"
	}
	return fmt.Sprintf("ContainerKind(%d)", int(k))
}

// ContainerKindFromExtension maps a file name or URL path to its container kind
func ContainerKindFromExtension(name string) (ContainerKind, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".zip":
		return KindZip, nil
	case ".rar":
		return KindRar, nil
	case ".srt":
		return KindPlaintext, nil
	}
	return 0, fmt.Errorf("unknown container for %q", name)
}

// Candidate points at a subtitle that has not been downloaded yet
type Candidate struct {
	SourceLink               string
	CompressedFileName       string // "road-house-1080p-yts-subdivx.zip"
	FileNameWithoutExtension string // "road-house-1080p-yts-subdivx"
	SrtFileName              string // "road-house-1080p-yts-subdivx.srt"
	Kind                     ContainerKind
	SubtitleGroup            string
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s, %s)", c.FileNameWithoutExtension, c.SubtitleGroup, c.Kind)
}

// NewCandidate names a candidate after the release it was found for, e.g.
// "road-house-1080p-yts-subdivx".
func NewCandidate(identity *parser.MovieIdentity, subtitleGroup, sourceLink string, kind ContainerKind) Candidate {
	base := strings.Join([]string{
		identity.Slug,
		parser.Slugify(identity.Resolution),
		parser.Slugify(identity.ReleaseGroup),
		parser.Slugify(subtitleGroup),
	}, "-")

	ext := ".srt"
	switch kind {
	case KindZip:
		ext = ".zip"
	case KindRar:
		ext = ".rar"
	}

	return Candidate{
		SourceLink:               sourceLink,
		CompressedFileName:       base + ext,
		FileNameWithoutExtension: base,
		SrtFileName:              base + ".srt",
		Kind:                     kind,
		SubtitleGroup:            subtitleGroup,
	}
}

// Provider finds at most one candidate for a release
type Provider interface {
	Name() string
	Resolve(ctx context.Context, identity *parser.MovieIdentity, externalID string) (*Candidate, error)
}
