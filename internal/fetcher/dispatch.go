package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// ConditionalFetcher is implemented by fetchers that can skip a download
// when the remote content still matches a previously recorded ETag.
type ConditionalFetcher interface {
	// DownloadIfChanged returns (body, newETag, changed). When changed is
	// false the body is nil and the content is identical to the last sync.
	DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error)
}

// Dispatch routes each download to a scheme-specific fetcher. Agency
// schedules are published over HTTPS, but several mirrors still serve
// only anonymous FTP, and operators point individual datasets at either.
type Dispatch struct {
	http Fetcher
	ftp  Fetcher
}

// NewDispatch creates a Dispatch over the given HTTP and FTP fetchers.
func NewDispatch(httpFetcher, ftpFetcher Fetcher) *Dispatch {
	return &Dispatch{http: httpFetcher, ftp: ftpFetcher}
}

func (d *Dispatch) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return d.http, nil
	case "ftp":
		return d.ftp, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}

func (d *Dispatch) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := d.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

func (d *Dispatch) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := d.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// DownloadIfChanged delegates to the scheme's fetcher when it supports
// conditional requests; otherwise it downloads unconditionally and reports
// the content as changed.
func (d *Dispatch) DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	f, err := d.pick(rawURL)
	if err != nil {
		return nil, "", false, err
	}
	if cf, ok := f.(ConditionalFetcher); ok {
		return cf.DownloadIfChanged(ctx, rawURL, etag)
	}
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return body, "", true, nil
}
