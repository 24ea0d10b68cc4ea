package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/idverify/internal/analyze"
	"github.com/your-org/idverify/internal/config"
	"github.com/your-org/idverify/internal/fetch"
	"github.com/your-org/idverify/internal/models"
	"github.com/your-org/idverify/internal/observability"
	"github.com/your-org/idverify/internal/storage"
	"github.com/your-org/idverify/internal/vision"
)

// ImageFetcher retrieves source image bytes for one run.
type ImageFetcher interface {
	Fetch(ctx context.Context, path string, imageCtx models.ImageContext) ([]byte, error)
}

// ResultStore is the persistence surface the engine needs. All writes are
// best-effort from the engine's point of view: the computed result is the
// source of truth and persistence failures only get logged.
type ResultStore interface {
	UpsertResult(ctx context.Context, row *storage.ResultRow) error
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status models.VerificationStatus, metadata json.RawMessage) error
	AppendAudit(ctx context.Context, requestID uuid.UUID, action models.AuditAction, notes string, metadata json.RawMessage) error
	UpsertEmbedding(ctx context.Context, requestID uuid.UUID, embedding []float32) error
}

// Engine runs the full verification pipeline for one task: fetch both
// images, measure them, compare faces and classify.
type Engine struct {
	fetcher ImageFetcher
	faces   vision.FaceAnalyzer
	barcode *analyze.BarcodeDecoder
	store   ResultStore
	cfg     config.VerificationConfig
}

func New(fetcher ImageFetcher, faces vision.FaceAnalyzer, store ResultStore, cfg config.VerificationConfig) *Engine {
	return &Engine{
		fetcher: fetcher,
		faces:   faces,
		barcode: analyze.NewBarcodeDecoder(cfg.BarcodeMaxAttempts),
		store:   store,
		cfg:     cfg,
	}
}

// Process executes one verification run. It always returns a terminal
// result; infrastructure failures surface as a rejected run with an
// analysis error reason rather than as an error.
func (e *Engine) Process(ctx context.Context, task models.VerificationTask) models.VerificationResult {
	result := models.VerificationResult{
		RequestID:   task.RequestID,
		ProcessedAt: time.Now().UTC(),
	}

	var reasons []models.FailureReason

	docAnalysis, docReasons, err := e.analyzeDocument(ctx, task.DocumentPath)
	if err != nil {
		return e.finalize(ctx, task, result, []models.FailureReason{models.NewAnalysisError(errorToken(err))})
	}
	result.Document = docAnalysis
	result.Scores.DocumentSharpnessScore = sharpnessScore(docAnalysis.Stats.EdgeStrength, e.cfg.DocumentSharpnessMin)
	reasons = append(reasons, docReasons...)

	selfieAnalysis, selfieReasons, err := e.analyzeSelfie(ctx, task.SelfiePath)
	if err != nil {
		return e.finalize(ctx, task, result, []models.FailureReason{models.NewAnalysisError(errorToken(err))})
	}
	result.Selfie = selfieAnalysis
	result.Scores.SelfieSharpnessScore = sharpnessScore(selfieAnalysis.Stats.EdgeStrength, e.cfg.SelfieSharpnessMin)
	reasons = append(reasons, selfieReasons...)

	matchScore, matchReasons := e.compareFaces(docAnalysis.Face, selfieAnalysis.Face)
	result.Scores.FaceMatchScore = matchScore
	reasons = append(reasons, matchReasons...)

	return e.finalize(ctx, task, result, reasons)
}

// analyzeDocument measures the document front: pixel stats, face, text
// layout and an opportunistic barcode read.
func (e *Engine) analyzeDocument(ctx context.Context, path string) (*models.ImageAnalysis, []models.FailureReason, error) {
	data, err := e.fetcher.Fetch(ctx, path, models.ContextDocumentFront)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	stats, err := analyze.ComputeImageStats(data, models.ContextDocumentFront)
	observability.StageDuration.WithLabelValues("document_stats").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("analyze document: %w", err)
	}

	analysis := &models.ImageAnalysis{Stats: stats}
	var reasons []models.FailureReason

	if stats.Width < e.cfg.DocumentMinSize.Width || stats.Height < e.cfg.DocumentMinSize.Height {
		reasons = append(reasons, models.NewResolutionReason(models.ReasonDocumentResolutionLow, stats.Width, stats.Height))
	}
	if stats.Height > 0 {
		aspect := float64(stats.Width) / float64(stats.Height)
		if !e.cfg.DocumentAspect.Contains(aspect) {
			reasons = append(reasons, models.NewValueReason(models.ReasonDocumentAspectInvalid, aspect))
		}
	}
	if !e.cfg.Brightness.Contains(stats.AverageBrightness) {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentBrightness, stats.AverageBrightness))
	}
	if stats.EdgeStrength < e.cfg.DocumentSharpnessMin {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentBlurry, stats.EdgeStrength))
	}

	// A card that is mostly skin is probably a face photo, not a document.
	if stats.SkinPixelRatio > e.cfg.DocumentSkinWarn {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentContainsFace, stats.SkinPixelRatio))
	}
	if stats.SkinPixelRatio > e.cfg.DocumentSkinSuspect {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentHighSkinRatio, stats.SkinPixelRatio))
	}

	face := e.analyzeFace(ctx, data, models.ContextDocumentFront)
	analysis.Face = &face
	if !face.Detected || face.Confidence < e.cfg.DocumentFaceConfidence {
		slog.Debug("document face below confidence floor", "confidence", face.Confidence)
		reasons = append(reasons, models.NewReason(models.ReasonDocumentFaceNotDetected))
	}
	// Area warnings are graded off the detected box regardless of the
	// confidence floor above.
	if face.BoxAreaRatio != nil {
		switch {
		case *face.BoxAreaRatio > e.cfg.DocumentFaceArea.Max:
			reasons = append(reasons, models.NewValueReason(models.ReasonDocumentFaceAreaLarge, *face.BoxAreaRatio))
		case *face.BoxAreaRatio < e.cfg.DocumentFaceArea.Min:
			reasons = append(reasons, models.NewValueReason(models.ReasonDocumentFaceAreaSmall, *face.BoxAreaRatio))
		}
	}

	start = time.Now()
	text, err := analyze.DetectTextPatterns(data)
	observability.StageDuration.WithLabelValues("document_text").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("text pattern detection failed", "error", err)
	} else {
		analysis.TextPatterns = &text
	}

	structure := stats.DocumentStructureScore
	if structure < e.cfg.StructureScoreMin {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentStructureInvalid, structure))
	}
	// Missing text alone is tolerated when the edge layout still looks like
	// a card; both failing together is a blocker.
	textWeak := err != nil || !text.HasText || text.TextLineCount < 2
	if textWeak && structure < e.cfg.StructureRescueScore {
		count := 0
		if err == nil {
			count = text.TextLineCount
		}
		reasons = append(reasons, models.NewCountReason(models.ReasonDocumentNoTextDetected, count))
	}
	if !e.cfg.HorizontalEdgeBand.Contains(stats.HorizontalEdgeRatio) {
		reasons = append(reasons, models.NewValueReason(models.ReasonDocumentTextPatternInvalid, stats.HorizontalEdgeRatio))
	}

	start = time.Now()
	if code := e.barcode.Decode(data); code != nil {
		analysis.Barcode = code
	}
	observability.StageDuration.WithLabelValues("document_barcode").Observe(time.Since(start).Seconds())

	return analysis, reasons, nil
}

// analyzeSelfie measures the selfie: pixel stats and face detection.
func (e *Engine) analyzeSelfie(ctx context.Context, path string) (*models.ImageAnalysis, []models.FailureReason, error) {
	data, err := e.fetcher.Fetch(ctx, path, models.ContextSelfie)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	stats, err := analyze.ComputeImageStats(data, models.ContextSelfie)
	observability.StageDuration.WithLabelValues("selfie_stats").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("analyze selfie: %w", err)
	}

	analysis := &models.ImageAnalysis{Stats: stats}
	var reasons []models.FailureReason

	if stats.Width < e.cfg.SelfieMinSize.Width || stats.Height < e.cfg.SelfieMinSize.Height {
		reasons = append(reasons, models.NewResolutionReason(models.ReasonSelfieResolutionLow, stats.Width, stats.Height))
	}
	if stats.Height > 0 {
		aspect := float64(stats.Width) / float64(stats.Height)
		if !e.cfg.SelfieAspect.Contains(aspect) {
			reasons = append(reasons, models.NewValueReason(models.ReasonSelfieAspectInvalid, aspect))
		}
	}
	if !e.cfg.Brightness.Contains(stats.AverageBrightness) {
		reasons = append(reasons, models.NewValueReason(models.ReasonSelfieBrightness, stats.AverageBrightness))
	}
	if stats.EdgeStrength < e.cfg.SelfieSharpnessMin {
		reasons = append(reasons, models.NewValueReason(models.ReasonSelfieBlurry, stats.EdgeStrength))
	}
	if stats.SkinPixelRatio < e.cfg.SelfieSkinMin {
		reasons = append(reasons, models.NewValueReason(models.ReasonSelfieMissingFace, stats.SkinPixelRatio))
	}

	face := e.analyzeFace(ctx, data, models.ContextSelfie)
	analysis.Face = &face
	if !face.Detected || face.Confidence < e.cfg.SelfieFaceConfidence {
		slog.Debug("selfie face below confidence floor", "confidence", face.Confidence)
		reasons = append(reasons, models.NewReason(models.ReasonSelfieFaceNotDetected))
	}
	if face.BoxAreaRatio != nil {
		switch {
		case *face.BoxAreaRatio < e.cfg.SelfieFaceArea.Min:
			reasons = append(reasons, models.NewValueReason(models.ReasonSelfieFaceAreaSmall, *face.BoxAreaRatio))
		case *face.BoxAreaRatio > e.cfg.SelfieFaceArea.Max:
			reasons = append(reasons, models.NewValueReason(models.ReasonSelfieFaceAreaLarge, *face.BoxAreaRatio))
		}
	}

	return analysis, reasons, nil
}

// analyzeFace runs face analysis and downgrades infrastructure failures to
// "no face found" so a flaky model never aborts a run.
func (e *Engine) analyzeFace(ctx context.Context, data []byte, imageCtx models.ImageContext) models.FaceMetrics {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("face_" + string(imageCtx)).Observe(time.Since(start).Seconds())
	}()

	face, err := e.faces.Analyze(ctx, data, imageCtx)
	if err != nil {
		slog.Warn("face analysis failed", "context", imageCtx, "error", err)
		return models.FaceMetrics{Detected: false}
	}
	return face
}

// compareFaces scores the two embeddings whenever both exist, even when a
// face sat below its confidence floor. A missing descriptor on either side
// is its own blocking reason.
func (e *Engine) compareFaces(doc, selfie *models.FaceMetrics) (*float64, []models.FailureReason) {
	var docEmb, selfieEmb []float32
	if doc != nil {
		docEmb = doc.Embedding
	}
	if selfie != nil {
		selfieEmb = selfie.Embedding
	}
	if len(docEmb) == 0 || len(selfieEmb) == 0 {
		return nil, []models.FailureReason{models.NewReason(models.ReasonFaceDescriptorUnavailable)}
	}

	start := time.Now()
	score := round(vision.CosineSimilarity(docEmb, selfieEmb), 4)
	observability.StageDuration.WithLabelValues("face_match").Observe(time.Since(start).Seconds())

	var reasons []models.FailureReason
	if score < e.cfg.FaceMatchThreshold {
		reasons = append(reasons, models.NewValueReason(models.ReasonFaceMismatch, score))
	}
	return &score, reasons
}

// finalize classifies, persists and publishes metrics for one run.
func (e *Engine) finalize(ctx context.Context, task models.VerificationTask, result models.VerificationResult, reasons []models.FailureReason) models.VerificationResult {
	decision := Decide(reasons)

	result.Status = decision.Status
	result.DocumentStatus = decision.DocumentStatus
	result.FailureReasons = reasons
	result.BlockingReasons, result.NonBlockingReasons = models.PartitionReasons(reasons)

	observability.VerificationsProcessed.WithLabelValues(string(result.Status)).Inc()
	for _, r := range reasons {
		observability.FailureReasons.WithLabelValues(string(r.Kind), fmt.Sprintf("%t", r.Blocking())).Inc()
	}

	e.persist(ctx, task, result, decision)

	slog.Info("verification run completed",
		"request_id", task.RequestID,
		"status", result.Status,
		"document_status", result.DocumentStatus,
		"reasons", len(reasons))

	return result
}

func (e *Engine) persist(ctx context.Context, task models.VerificationTask, result models.VerificationResult, decision Decision) {
	if e.store == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("marshal result payload", "request_id", task.RequestID, "error", err)
		payload = json.RawMessage("{}")
	}

	row := &storage.ResultRow{
		RequestID:              task.RequestID,
		DocumentStatus:         result.DocumentStatus,
		DocumentSharpnessScore: result.Scores.DocumentSharpnessScore,
		SelfieSharpnessScore:   result.Scores.SelfieSharpnessScore,
		FaceMatchScore:         result.Scores.FaceMatchScore,
		FailureReasons:         decision.PersistedReasons,
		RawPayload:             payload,
		ProcessedAt:            result.ProcessedAt,
	}
	if err := e.store.UpsertResult(ctx, row); err != nil {
		slog.Error("persist result", "request_id", task.RequestID, "error", err)
	}

	meta, _ := json.Marshal(map[string]any{
		"local_automation": map[string]any{
			"status":               result.Status,
			"document_status":      result.DocumentStatus,
			"failure_reasons":      models.ReasonStrings(result.FailureReasons),
			"blocking_reasons":     models.ReasonStrings(result.BlockingReasons),
			"non_blocking_reasons": models.ReasonStrings(result.NonBlockingReasons),
			"scores":               result.Scores,
			"processed_at":         result.ProcessedAt,
		},
	})
	if err := e.store.UpdateRequestStatus(ctx, task.RequestID, result.Status, meta); err != nil {
		slog.Error("update request status", "request_id", task.RequestID, "error", err)
	}

	auditMeta, _ := json.Marshal(map[string]any{
		"source": "local_automation",
		"scores": result.Scores,
	})
	if err := e.store.AppendAudit(ctx, task.RequestID, decision.Audit, decision.Notes, auditMeta); err != nil {
		slog.Error("append audit", "request_id", task.RequestID, "error", err)
	}

	if result.Selfie != nil && result.Selfie.Face != nil && len(result.Selfie.Face.Embedding) > 0 {
		if err := e.store.UpsertEmbedding(ctx, task.RequestID, result.Selfie.Face.Embedding); err != nil {
			slog.Error("persist selfie embedding", "request_id", task.RequestID, "error", err)
		}
	}
}

// sharpnessScore normalizes raw edge strength against the context floor.
func sharpnessScore(edgeStrength, floor float64) *float64 {
	if floor <= 0 {
		return nil
	}
	score := round(clamp01(edgeStrength/floor), 2)
	return &score
}

// errorToken compacts an infrastructure error into the stable token carried
// by the analysis error reason.
func errorToken(err error) string {
	var fe *fetch.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fmt.Sprintf("fetch_failed_%d", fe.StatusCode)
	}
	var se *fetch.SignedURLError
	if errors.As(err, &se) {
		return "unable_to_sign_url"
	}

	msg := err.Error()
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		msg = msg[:idx]
	}
	return strings.ReplaceAll(strings.TrimSpace(msg), " ", "_")
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
