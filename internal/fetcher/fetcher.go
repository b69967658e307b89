// Package fetcher downloads remote inputs and datasets and streams JSON,
// CSV, XLSX and ZIP content.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns the bytes written.
	// path is only replaced once the body has been fully received.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
