// Package fetch resolves storage paths to raw image bytes via short-lived
// signed URLs. Fetch failures are unrecoverable for the run that hit them:
// the engine maps them to an analysis_error reason and rejects.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/your-org/idverify/internal/models"
)

// URLSigner mints a time-limited GET URL for a bucket-relative path.
type URLSigner interface {
	SignedURL(ctx context.Context, path string) (string, error)
}

// SignedURLError means the store could not mint a URL for the path.
type SignedURLError struct {
	Path string
	Err  error
}

func (e *SignedURLError) Error() string {
	return fmt.Sprintf("unable_to_sign_url: %s: %v", e.Path, e.Err)
}

func (e *SignedURLError) Unwrap() error { return e.Err }

// FetchError means the HTTP retrieval of a signed URL did not succeed.
type FetchError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch_failed: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("fetch_failed_%d", e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads source images for analysis.
type Fetcher struct {
	signer URLSigner
	client *http.Client
}

func NewFetcher(signer URLSigner) *Fetcher {
	return &Fetcher{
		signer: signer,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch resolves a storage path to raw bytes. imageCtx is attached to logs by
// the caller; the fetcher itself treats both contexts identically.
func (f *Fetcher) Fetch(ctx context.Context, path string, imageCtx models.ImageContext) ([]byte, error) {
	signedURL, err := f.signer.SignedURL(ctx, path)
	if err != nil {
		return nil, &SignedURLError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Path: path, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	return data, nil
}
