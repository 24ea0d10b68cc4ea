package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/idverify/internal/models"
)

type stubSigner struct {
	url string
	err error
}

func (s *stubSigner) SignedURL(context.Context, string) (string, error) {
	return s.url, s.err
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(&stubSigner{url: srv.URL})
	data, err := f.Fetch(context.Background(), "documents/front.jpg", models.ContextDocumentFront)
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), data)
}

func TestFetchNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(&stubSigner{url: srv.URL})
	_, err := f.Fetch(context.Background(), "documents/missing.jpg", models.ContextDocumentFront)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.Equal(t, "fetch_failed_404", fe.Error())
}

func TestFetchSigningFailure(t *testing.T) {
	f := NewFetcher(&stubSigner{err: errors.New("minio unreachable")})
	_, err := f.Fetch(context.Background(), "selfies/a.jpg", models.ContextSelfie)
	require.Error(t, err)

	var se *SignedURLError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "selfies/a.jpg", se.Path)
}

func TestFetchContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(&stubSigner{url: srv.URL})
	_, err := f.Fetch(ctx, "selfies/a.jpg", models.ContextSelfie)
	require.Error(t, err)
}
