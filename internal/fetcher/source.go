package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Open returns a reader over source, a local path or an http(s) URL. A
// source ending in .zip must hold exactly one file, which is what the reader
// yields.
func Open(ctx context.Context, f Fetcher, source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, eris.New("fetcher: empty source")
	}

	if !strings.EqualFold(filepath.Ext(source), ".zip") {
		if IsRemote(source) {
			return f.Download(ctx, source)
		}
		file, err := os.Open(source)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", source)
		}
		return file, nil
	}

	dir, err := os.MkdirTemp("", "listings-src-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	archive := source
	if IsRemote(source) {
		archive = filepath.Join(dir, "source.zip")
		if _, err := f.DownloadToFile(ctx, source, archive); err != nil {
			cleanup()
			return nil, err
		}
	}

	path, err := ExtractZIPSingle(archive, filepath.Join(dir, "x"))
	if err != nil {
		cleanup()
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		cleanup()
		return nil, eris.Wrap(err, "fetcher: open extracted file")
	}
	return &cleanupReader{File: file, cleanup: cleanup}, nil
}

// cleanupReader removes the extraction directory when closed.
type cleanupReader struct {
	*os.File
	cleanup func()
}

func (c *cleanupReader) Close() error {
	err := c.File.Close()
	c.cleanup()
	return err
}
