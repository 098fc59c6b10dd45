// Package torrent reads .torrent descriptors to find the video file they ship.
package torrent

import (
	"bytes"
	"errors"
	"fmt"
	"path"

	"github.com/jackpal/bencode-go"

	"github.com/amaumene/subtis/internal/parser"
)

var (
	ErrNoVideoFile    = errors.New("no video file in torrent")
	ErrCorruptTorrent = errors.New("corrupt torrent descriptor")
)

// VideoFileEntry describes the video payload of a torrent
type VideoFileEntry struct {
	Name string // base file name
	Path string // path inside the torrent, "/" separated
	Size int64
}

type metainfo struct {
	Info info `bencode:"info"`
}

type info struct {
	Name   string      `bencode:"name"`
	Length int64       `bencode:"length"`
	Files  []fileEntry `bencode:"files"`
}

type fileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// ReadVideoEntry decodes a torrent descriptor and returns the first entry
// with a video extension.
func ReadVideoEntry(data []byte) (*VideoFileEntry, error) {
	if len(data) == 0 || data[0] != 'd' {
		return nil, ErrCorruptTorrent
	}

	var mi metainfo
	if err := bencode.Unmarshal(bytes.NewReader(data), &mi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptTorrent, err)
	}
	if mi.Info.Name == "" && len(mi.Info.Files) == 0 {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrCorruptTorrent)
	}

	// single-file layout
	if len(mi.Info.Files) == 0 {
		if !parser.IsVideoFile(mi.Info.Name) {
			return nil, ErrNoVideoFile
		}
		return &VideoFileEntry{
			Name: path.Base(mi.Info.Name),
			Path: mi.Info.Name,
			Size: mi.Info.Length,
		}, nil
	}

	for _, f := range mi.Info.Files {
		if len(f.Path) == 0 {
			continue
		}
		name := f.Path[len(f.Path)-1]
		if !parser.IsVideoFile(name) {
			continue
		}
		return &VideoFileEntry{
			Name: name,
			Path: path.Join(append([]string{mi.Info.Name}, f.Path...)...),
			Size: f.Length,
		}, nil
	}

	return nil, ErrNoVideoFile
}
