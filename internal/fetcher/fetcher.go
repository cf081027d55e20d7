// Package fetcher downloads and parses tariff datasets from HTTP, FTP,
// CSV, XLSX, and ZIP sources.
package fetcher

import (
	"context"
	"io"
)

// Fetcher retrieves a remote resource as a stream. The caller must close
// the returned ReadCloser.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
	DownloadToFile(ctx context.Context, rawURL, path string) (int64, error)
}
