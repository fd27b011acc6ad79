package crawler

import "context"

// Document is a fetched page. ExtractLinks is called at most once, from the
// extraction pool, and returns absolute URLs.
type Document interface {
	ExtractLinks() ([]string, error)
}

// Downloader fetches a URL into a Document. Failures should be reported with
// utils.NewFetchError; any other error is wrapped as a fetch error by the engine.
type Downloader interface {
	Download(ctx context.Context, url string) (Document, error)
}

// DownloaderFunc adapts a function to the Downloader interface.
type DownloaderFunc func(ctx context.Context, url string) (Document, error)

// Download calls f(ctx, url).
func (f DownloaderFunc) Download(ctx context.Context, url string) (Document, error) {
	return f(ctx, url)
}

// HostFunc maps a URL to the key of its admission queue.
type HostFunc func(url string) (string, error)
