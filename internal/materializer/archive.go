package materializer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

const maxExtractedSize = 50 * 1024 * 1024 // 50MB per archive

// safeJoin resolves an archive member name inside dir, rejecting members
// that would escape it.
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	target := filepath.Join(dir, filepath.FromSlash(name))
	if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: member %q escapes archive", ErrExtractFailed, name)
	}
	return target, nil
}

func writeMember(target string, r io.Reader, budget *int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, *budget+1))
	if err != nil {
		return err
	}
	*budget -= n
	if *budget < 0 {
		return fmt.Errorf("archive expands past %d bytes", maxExtractedSize)
	}
	return f.Close()
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	budget := int64(maxExtractedSize)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		err = writeMember(target, rc, &budget)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
	}
	return nil
}

func extractRar(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	budget := int64(maxExtractedSize)
	for {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		if hdr.IsDir {
			continue
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if err := writeMember(target, rr, &budget); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
	}
}
