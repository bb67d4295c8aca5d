package media

import (
	"context"
	"strings"

	"github.com/Isha1703/campaign-dashboard-sub001/backend"
)

// FetchResult is a fetcher's answer for a single reference. Exactly one of
// URL and Data is populated: a backend-mirrored fetch yields a ready URL,
// a direct store fetch yields the raw bytes for local staging.
type FetchResult struct {
	URL         string
	Data        []byte
	ContentType string
}

// Fetcher retrieves the content behind a validated reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref Reference) (*FetchResult, error)
}

// BackendFetcher asks the pipeline backend to mirror the object into its
// public directory and returns the served URL. This is the default fetch
// path since it needs no store credentials on the client.
type BackendFetcher struct {
	client *backend.Client
}

// NewBackendFetcher returns a fetcher backed by the given API client.
func NewBackendFetcher(client *backend.Client) *BackendFetcher {
	return &BackendFetcher{client: client}
}

// Fetch mirrors the referenced object through the backend.
func (f *BackendFetcher) Fetch(ctx context.Context, ref Reference) (*FetchResult, error) {
	resp, err := f.client.DownloadContent(ctx, backend.DownloadRequest{S3Path: ref.String()})
	if err != nil {
		return nil, err
	}
	return &FetchResult{URL: strings.TrimRight(f.client.BaseURL(), "/") + resp.LocalURL}, nil
}
