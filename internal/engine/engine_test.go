package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/idverify/internal/config"
	"github.com/your-org/idverify/internal/fetch"
	"github.com/your-org/idverify/internal/models"
	"github.com/your-org/idverify/internal/storage"
)

type stubFetcher struct {
	images map[models.ImageContext][]byte
	errs   map[models.ImageContext]error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string, imageCtx models.ImageContext) ([]byte, error) {
	if err := s.errs[imageCtx]; err != nil {
		return nil, err
	}
	return s.images[imageCtx], nil
}

type stubAnalyzer struct {
	metrics map[models.ImageContext]models.FaceMetrics
	err     error
}

func (s *stubAnalyzer) EnsureReady(context.Context) error { return nil }

func (s *stubAnalyzer) Analyze(_ context.Context, _ []byte, imageCtx models.ImageContext) (models.FaceMetrics, error) {
	if s.err != nil {
		return models.FaceMetrics{}, s.err
	}
	return s.metrics[imageCtx], nil
}

func (s *stubAnalyzer) Close() {}

type stubStore struct {
	results    []*storage.ResultRow
	statuses   []models.VerificationStatus
	audits     []models.AuditAction
	auditMetas []json.RawMessage
	embeddings [][]float32
}

func (s *stubStore) UpsertResult(_ context.Context, row *storage.ResultRow) error {
	s.results = append(s.results, row)
	return nil
}

func (s *stubStore) UpdateRequestStatus(_ context.Context, _ uuid.UUID, status models.VerificationStatus, _ json.RawMessage) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubStore) AppendAudit(_ context.Context, _ uuid.UUID, action models.AuditAction, _ string, metadata json.RawMessage) error {
	s.audits = append(s.audits, action)
	s.auditMetas = append(s.auditMetas, metadata)
	return nil
}

func (s *stubStore) UpsertEmbedding(_ context.Context, _ uuid.UUID, embedding []float32) error {
	s.embeddings = append(s.embeddings, embedding)
	return nil
}

func flatPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testTask() models.VerificationTask {
	return models.VerificationTask{
		RequestID:    uuid.New(),
		BookingID:    uuid.New(),
		UserID:       uuid.New(),
		DocumentPath: "documents/front.png",
		SelfiePath:   "selfies/face.png",
	}
}

func ptr(v float64) *float64 { return &v }

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestProcessFetchFailureRejects(t *testing.T) {
	fetcher := &stubFetcher{
		errs: map[models.ImageContext]error{
			models.ContextDocumentFront: &fetch.FetchError{Path: "documents/front.png", StatusCode: 404},
		},
	}
	store := &stubStore{}
	eng := New(fetcher, &stubAnalyzer{}, store, config.DefaultVerification())

	result := eng.Process(context.Background(), testTask())

	require.Equal(t, models.StatusRejected, result.Status)
	// Nothing implicated the card itself, only the fetch.
	require.Equal(t, models.DocumentPassed, result.DocumentStatus)
	require.Equal(t, []string{"analysis_error_fetch_failed_404"}, models.ReasonStrings(result.FailureReasons))

	require.Len(t, store.results, 1)
	require.Equal(t, []string{"analysis_error_fetch_failed_404"}, store.results[0].FailureReasons)
	require.Equal(t, []models.VerificationStatus{models.StatusRejected}, store.statuses)
	require.Equal(t, []models.AuditAction{models.AuditAutoRejected}, store.audits)

	require.Len(t, store.auditMetas, 1)
	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(store.auditMetas[0], &meta))
	require.JSONEq(t, `"local_automation"`, string(meta["source"]))
	require.Contains(t, meta, "scores")

	require.Empty(t, store.embeddings)
}

func TestProcessNoFacesRoutesToReview(t *testing.T) {
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	fetcher := &stubFetcher{
		images: map[models.ImageContext][]byte{
			models.ContextDocumentFront: flatPNG(t, 640, 480, gray),
			models.ContextSelfie:        flatPNG(t, 400, 400, gray),
		},
	}
	analyzer := &stubAnalyzer{
		metrics: map[models.ImageContext]models.FaceMetrics{
			models.ContextDocumentFront: {Detected: false},
			models.ContextSelfie:        {Detected: false},
		},
	}
	store := &stubStore{}
	eng := New(fetcher, analyzer, store, config.DefaultVerification())

	result := eng.Process(context.Background(), testTask())

	require.Equal(t, models.StatusManualReview, result.Status)
	require.Equal(t, models.DocumentFailed, result.DocumentStatus)

	kinds := map[models.ReasonKind]bool{}
	for _, r := range result.FailureReasons {
		kinds[r.Kind] = true
	}
	require.True(t, kinds[models.ReasonDocumentFaceNotDetected])
	require.True(t, kinds[models.ReasonSelfieFaceNotDetected])
	require.True(t, kinds[models.ReasonFaceDescriptorUnavailable])

	// Sharpness is still scored even when the face checks fail.
	require.NotNil(t, result.Scores.DocumentSharpnessScore)
	require.NotNil(t, result.Scores.SelfieSharpnessScore)
	require.Equal(t, 0.0, *result.Scores.DocumentSharpnessScore)
	require.Nil(t, result.Scores.FaceMatchScore)

	require.Len(t, store.results, 1)
	// Detection reasons persist as bare tags, no confidence suffix.
	require.Contains(t, store.results[0].FailureReasons, "document_face_not_detected")
	require.Contains(t, store.results[0].FailureReasons, "selfie_face_not_detected")
	require.Empty(t, store.embeddings)
}

func TestProcessStoresSelfieEmbedding(t *testing.T) {
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	emb := unitVector(512, 3)
	fetcher := &stubFetcher{
		images: map[models.ImageContext][]byte{
			models.ContextDocumentFront: flatPNG(t, 640, 480, gray),
			models.ContextSelfie:        flatPNG(t, 400, 400, gray),
		},
	}
	analyzer := &stubAnalyzer{
		metrics: map[models.ImageContext]models.FaceMetrics{
			models.ContextDocumentFront: {Detected: true, Confidence: 0.9, Embedding: emb, BoxAreaRatio: ptr(0.05)},
			models.ContextSelfie:        {Detected: true, Confidence: 0.9, Embedding: emb, BoxAreaRatio: ptr(0.3)},
		},
	}
	store := &stubStore{}
	eng := New(fetcher, analyzer, store, config.DefaultVerification())

	result := eng.Process(context.Background(), testTask())

	// Identical embeddings score a perfect match.
	require.NotNil(t, result.Scores.FaceMatchScore)
	require.Equal(t, 1.0, *result.Scores.FaceMatchScore)
	for _, r := range result.FailureReasons {
		require.NotEqual(t, models.ReasonFaceMismatch, r.Kind)
		require.NotEqual(t, models.ReasonFaceDescriptorUnavailable, r.Kind)
	}

	require.Len(t, store.embeddings, 1)
	require.Equal(t, emb, store.embeddings[0])
}

func TestProcessSelfieFetchFailureKeepsDocumentScore(t *testing.T) {
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	fetcher := &stubFetcher{
		images: map[models.ImageContext][]byte{
			models.ContextDocumentFront: flatPNG(t, 640, 480, gray),
		},
		errs: map[models.ImageContext]error{
			models.ContextSelfie: &fetch.FetchError{Path: "selfies/face.png", StatusCode: 500},
		},
	}
	store := &stubStore{}
	eng := New(fetcher, &stubAnalyzer{}, store, config.DefaultVerification())

	result := eng.Process(context.Background(), testTask())

	require.Equal(t, models.StatusRejected, result.Status)
	require.Equal(t, models.DocumentPassed, result.DocumentStatus)
	require.Equal(t, []string{"analysis_error_fetch_failed_500"}, models.ReasonStrings(result.FailureReasons))

	// The document was analyzed before the selfie fetch broke, so its
	// sharpness score survives onto the result.
	require.NotNil(t, result.Scores.DocumentSharpnessScore)
	require.Equal(t, 0.0, *result.Scores.DocumentSharpnessScore)
	require.Nil(t, result.Scores.SelfieSharpnessScore)
	require.Nil(t, result.Scores.FaceMatchScore)
}

func TestCompareFaces(t *testing.T) {
	cfg := config.DefaultVerification()
	eng := &Engine{cfg: cfg}

	docFace := &models.FaceMetrics{Detected: true, Confidence: 0.9, Embedding: unitVector(512, 0)}
	selfieFace := &models.FaceMetrics{Detected: true, Confidence: 0.9, Embedding: unitVector(512, 0)}

	t.Run("identical embeddings match", func(t *testing.T) {
		score, reasons := eng.compareFaces(docFace, selfieFace)
		require.NotNil(t, score)
		require.Equal(t, 1.0, *score)
		require.Empty(t, reasons)
	})

	t.Run("orthogonal embeddings mismatch", func(t *testing.T) {
		other := &models.FaceMetrics{Detected: true, Confidence: 0.9, Embedding: unitVector(512, 1)}
		score, reasons := eng.compareFaces(docFace, other)
		require.NotNil(t, score)
		require.Equal(t, 0.0, *score)
		require.Len(t, reasons, 1)
		require.Equal(t, models.ReasonFaceMismatch, reasons[0].Kind)
	})

	t.Run("missing descriptor is its own reason", func(t *testing.T) {
		noEmb := &models.FaceMetrics{Detected: true, Confidence: 0.9}
		score, reasons := eng.compareFaces(docFace, noEmb)
		require.Nil(t, score)
		require.Len(t, reasons, 1)
		require.Equal(t, models.ReasonFaceDescriptorUnavailable, reasons[0].Kind)
	})

	t.Run("low confidence still compares when both embeddings exist", func(t *testing.T) {
		weak := &models.FaceMetrics{Detected: true, Confidence: 0.2, Embedding: unitVector(512, 0)}
		score, reasons := eng.compareFaces(docFace, weak)
		require.NotNil(t, score)
		require.Equal(t, 1.0, *score)
		require.Empty(t, reasons)
	})

	t.Run("undetected face without embedding is a missing descriptor", func(t *testing.T) {
		score, reasons := eng.compareFaces(docFace, &models.FaceMetrics{Detected: false})
		require.Nil(t, score)
		require.Len(t, reasons, 1)
		require.Equal(t, models.ReasonFaceDescriptorUnavailable, reasons[0].Kind)
	})

	t.Run("nil face is a missing descriptor", func(t *testing.T) {
		score, reasons := eng.compareFaces(nil, selfieFace)
		require.Nil(t, score)
		require.Len(t, reasons, 1)
		require.Equal(t, models.ReasonFaceDescriptorUnavailable, reasons[0].Kind)
	})
}

func TestErrorToken(t *testing.T) {
	require.Equal(t, "fetch_failed_502",
		errorToken(&fetch.FetchError{Path: "p", StatusCode: 502}))
	require.Equal(t, "unable_to_sign_url",
		errorToken(&fetch.SignedURLError{Path: "p", Err: errors.New("minio down")}))
	require.Equal(t, "decode_image",
		errorToken(errors.New("decode image: unexpected EOF")))
}

func TestSharpnessScore(t *testing.T) {
	require.Equal(t, 0.5, *sharpnessScore(9, 18))
	require.Equal(t, 1.0, *sharpnessScore(36, 18))
	require.Equal(t, 0.0, *sharpnessScore(0, 18))
	require.Nil(t, sharpnessScore(10, 0))
}
