package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

// ImageFetcher downloads an image reference into a LocalImage owned by the caller
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (*LocalImage, error)
}

// LocalImage is a downloaded image on local disk. Its owner must call Release
// once done with it.
type LocalImage struct {
	Path string
	Size int64
	Ref  string

	once sync.Once
	err  error
}

// Release deletes the local file. Safe to call more than once.
func (l *LocalImage) Release() error {
	l.once.Do(func() {
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.err = fmt.Errorf("release %s: %w", l.Path, err)
		}
	})
	return l.err
}

// saveToTemp streams body into a new temp file under dir. Bodies larger than
// maxBytes (when positive) are rejected and nothing is left on disk.
func saveToTemp(ref, dir string, body io.Reader, maxBytes int64) (*LocalImage, error) {
	file, err := os.CreateTemp(dir, "sku-image-*"+extensionOf(ref))
	if err != nil {
		return nil, apperrors.NewInternalError("cannot create temp file", err)
	}

	reader := body
	if maxBytes > 0 {
		reader = io.LimitReader(body, maxBytes+1)
	}

	size, copyErr := io.Copy(file, reader)
	closeErr := file.Close()

	switch {
	case copyErr != nil:
		os.Remove(file.Name())
		return nil, fmt.Errorf("read body: %w", copyErr)
	case closeErr != nil:
		os.Remove(file.Name())
		return nil, fmt.Errorf("write temp file: %w", closeErr)
	case maxBytes > 0 && size > maxBytes:
		os.Remove(file.Name())
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}

	return &LocalImage{Path: file.Name(), Size: size, Ref: ref}, nil
}

// extensionOf keeps the image extension of ref so extractors that sniff by
// name still work. Anything odd becomes ".img".
func extensionOf(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ".img"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return ".img"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".img"
		}
	}
	return ext
}
