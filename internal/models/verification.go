package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the terminal three-way decision for one run.
type VerificationStatus string

const (
	StatusApproved     VerificationStatus = "approved"
	StatusManualReview VerificationStatus = "manual_review"
	StatusRejected     VerificationStatus = "rejected"
)

// DocumentStatus is the operator-facing status of the document check,
// separate from the overall decision.
type DocumentStatus string

const (
	DocumentPassed    DocumentStatus = "passed"
	DocumentFailed    DocumentStatus = "failed"
	DocumentSuspected DocumentStatus = "suspected"
)

// AuditAction records which decision path a run took.
type AuditAction string

const (
	AuditAutoDecision       AuditAction = "auto_decision"
	AuditAutoRejected       AuditAction = "auto_rejected"
	AuditManualReviewOpened AuditAction = "manual_review_opened"
)

// ImageContext tells the analyzers which kind of image they are looking at.
type ImageContext string

const (
	ContextDocumentFront ImageContext = "documentFront"
	ContextSelfie        ImageContext = "selfie"
)

// VerificationRequest is the immutable input of one run.
type VerificationRequest struct {
	ID           uuid.UUID `json:"id" db:"id"`
	BookingID    uuid.UUID `json:"booking_id" db:"booking_id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	DocumentPath string    `json:"document_path" db:"document_path"`
	SelfiePath   string    `json:"selfie_path" db:"selfie_path"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ImageStats holds per-image pixel measurements, derived fresh on every run.
// HorizontalEdgeRatio and DocumentStructureScore are populated for document
// images only.
type ImageStats struct {
	Width                  int     `json:"width"`
	Height                 int     `json:"height"`
	AverageBrightness      float64 `json:"averageBrightness"`
	EdgeStrength           float64 `json:"edgeStrength"`
	SkinPixelRatio         float64 `json:"skinPixelRatio"`
	HorizontalEdgeRatio    float64 `json:"horizontalEdgeRatio,omitempty"`
	DocumentStructureScore float64 `json:"documentStructureScore,omitempty"`
}

// FaceMetrics is the face-analysis output for one image.
type FaceMetrics struct {
	Detected     bool      `json:"detected"`
	Confidence   float64   `json:"confidence"`
	Embedding    []float32 `json:"-"`
	Yaw          *float64  `json:"yaw,omitempty"`
	Pitch        *float64  `json:"pitch,omitempty"`
	Roll         *float64  `json:"roll,omitempty"`
	BoxAreaRatio *float64  `json:"boxAreaRatio,omitempty"`
}

// BarcodeResult is a best-effort decode of a back-of-card style barcode.
type BarcodeResult struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// TextPatterns reports horizontal text-line detection on a document image.
type TextPatterns struct {
	HasText       bool `json:"hasText"`
	TextLineCount int  `json:"textLineCount"`
}

// ImageAnalysis bundles everything measured on one image.
type ImageAnalysis struct {
	Stats        ImageStats     `json:"stats"`
	Face         *FaceMetrics   `json:"face,omitempty"`
	Barcode      *BarcodeResult `json:"barcode,omitempty"`
	TextPatterns *TextPatterns  `json:"textPatterns,omitempty"`
}

// VerificationScores are the derived scores of one run. A nil score means the
// corresponding input was never successfully analyzed.
type VerificationScores struct {
	FaceMatchScore         *float64 `json:"faceMatchScore"`
	DocumentSharpnessScore *float64 `json:"documentSharpnessScore"`
	SelfieSharpnessScore   *float64 `json:"selfieSharpnessScore"`
}

// VerificationResult is the terminal output of one run. The reason list is
// immutable once the run completes.
type VerificationResult struct {
	RequestID         uuid.UUID          `json:"request_id"`
	Status            VerificationStatus `json:"status"`
	DocumentStatus    DocumentStatus     `json:"document_status"`
	FailureReasons    []FailureReason    `json:"failureReasons"`
	BlockingReasons   []FailureReason    `json:"blockingReasons"`
	NonBlockingReasons []FailureReason    `json:"nonBlockingReasons"`
	Scores            VerificationScores `json:"scores"`
	Document          *ImageAnalysis     `json:"document,omitempty"`
	Selfie            *ImageAnalysis     `json:"selfie,omitempty"`
	ProcessedAt       time.Time          `json:"processed_at"`
}

// VerificationTask is the message published to NATS for worker processing.
type VerificationTask struct {
	RequestID    uuid.UUID `json:"request_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	UserID       uuid.UUID `json:"user_id"`
	DocumentPath string    `json:"document_path"`
	SelfiePath   string    `json:"selfie_path"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// DecisionEvent is published after a run for operator dashboards.
type DecisionEvent struct {
	RequestID      uuid.UUID          `json:"request_id"`
	BookingID      uuid.UUID          `json:"booking_id"`
	Status         VerificationStatus `json:"status"`
	DocumentStatus DocumentStatus     `json:"document_status"`
	FailureReasons []string           `json:"failure_reasons,omitempty"`
	Scores         VerificationScores `json:"scores"`
	ProcessedAt    time.Time          `json:"processed_at"`
}
