package models

import (
	"encoding/json"
	"fmt"
)

// ReasonKind identifies one failed verification check. The kind alone decides
// whether a reason blocks auto-approval; the measured value is informational.
type ReasonKind string

const (
	// Document quality warnings (non-blocking).
	ReasonDocumentResolutionLow ReasonKind = "document_resolution_low_front"
	ReasonDocumentAspectInvalid ReasonKind = "document_aspect_invalid_front"
	ReasonDocumentBrightness    ReasonKind = "document_brightness_out_of_range_front"
	ReasonDocumentBlurry        ReasonKind = "document_blurry_front"
	ReasonDocumentContainsFace  ReasonKind = "document_contains_face_front"
	ReasonDocumentHighSkinRatio ReasonKind = "document_high_skin_ratio"
	ReasonDocumentFaceAreaLarge ReasonKind = "document_face_area_exceeds_ratio"
	ReasonDocumentFaceAreaSmall ReasonKind = "document_face_area_too_small"

	// Document structural failures (blocking).
	ReasonDocumentFaceNotDetected    ReasonKind = "document_face_not_detected"
	ReasonDocumentStructureInvalid   ReasonKind = "document_structure_invalid"
	ReasonDocumentTextPatternInvalid ReasonKind = "document_text_pattern_invalid"
	ReasonDocumentNoTextDetected     ReasonKind = "document_no_text_detected"

	// Selfie quality warnings (non-blocking).
	ReasonSelfieResolutionLow ReasonKind = "selfie_resolution_low"
	ReasonSelfieAspectInvalid ReasonKind = "selfie_aspect_invalid"
	ReasonSelfieBrightness    ReasonKind = "selfie_brightness_out_of_range"
	ReasonSelfieBlurry        ReasonKind = "selfie_blurry"
	ReasonSelfieMissingFace   ReasonKind = "selfie_missing_face"
	ReasonSelfieFaceAreaSmall ReasonKind = "selfie_face_area_too_small"
	ReasonSelfieFaceAreaLarge ReasonKind = "selfie_face_area_exceeds_ratio"

	// Identity failures (blocking).
	ReasonSelfieFaceNotDetected     ReasonKind = "selfie_face_not_detected"
	ReasonFaceMismatch              ReasonKind = "face_mismatch"
	ReasonFaceDescriptorUnavailable ReasonKind = "face_descriptor_unavailable"

	// Pipeline failure (blocking, forces rejection).
	ReasonAnalysisError ReasonKind = "analysis_error"
)

// nonBlockingKinds are quality warnings that never prevent auto-approval on
// their own. Everything outside this set blocks.
var nonBlockingKinds = map[ReasonKind]bool{
	ReasonDocumentResolutionLow: true,
	ReasonDocumentAspectInvalid: true,
	ReasonDocumentBrightness:    true,
	ReasonDocumentBlurry:        true,
	ReasonDocumentContainsFace:  true,
	ReasonDocumentHighSkinRatio: true,
	ReasonDocumentFaceAreaLarge: true,
	ReasonDocumentFaceAreaSmall: true,
	ReasonSelfieResolutionLow:   true,
	ReasonSelfieAspectInvalid:   true,
	ReasonSelfieBrightness:      true,
	ReasonSelfieBlurry:          true,
	ReasonSelfieMissingFace:     true,
	ReasonSelfieFaceAreaSmall:   true,
	ReasonSelfieFaceAreaLarge:   true,
}

// FailureReason is one failed check plus the value measured at classification
// time. The legacy string form ("reason_value") is produced only at the
// persistence and API boundaries; downstream consumers parse the numeric
// suffix, so the decimal widths per kind are fixed.
type FailureReason struct {
	Kind   ReasonKind
	Value  float64 // measured value for value-carrying kinds
	Count  int     // text line count for ReasonDocumentNoTextDetected
	Width  int     // resolution kinds
	Height int
	Detail string // error message for ReasonAnalysisError
	bare   bool   // no suffix at all
}

func NewReason(kind ReasonKind) FailureReason {
	return FailureReason{Kind: kind, bare: true}
}

func NewValueReason(kind ReasonKind, value float64) FailureReason {
	return FailureReason{Kind: kind, Value: value}
}

func NewResolutionReason(kind ReasonKind, width, height int) FailureReason {
	return FailureReason{Kind: kind, Width: width, Height: height}
}

func NewCountReason(kind ReasonKind, count int) FailureReason {
	return FailureReason{Kind: kind, Count: count}
}

func NewAnalysisError(message string) FailureReason {
	return FailureReason{Kind: ReasonAnalysisError, Detail: message}
}

// Blocking reports whether this reason prevents auto-approval.
func (r FailureReason) Blocking() bool {
	return !nonBlockingKinds[r.Kind]
}

// String renders the legacy wire format, e.g. "document_blurry_front_12.30".
func (r FailureReason) String() string {
	if r.bare {
		return string(r.Kind)
	}
	switch r.Kind {
	case ReasonAnalysisError:
		return fmt.Sprintf("%s_%s", r.Kind, r.Detail)
	case ReasonDocumentResolutionLow, ReasonSelfieResolutionLow:
		return fmt.Sprintf("%s_%dx%d", r.Kind, r.Width, r.Height)
	case ReasonDocumentNoTextDetected:
		return fmt.Sprintf("%s_%d", r.Kind, r.Count)
	case ReasonDocumentFaceAreaLarge, ReasonDocumentFaceAreaSmall,
		ReasonSelfieFaceAreaSmall, ReasonSelfieFaceAreaLarge,
		ReasonFaceMismatch:
		return fmt.Sprintf("%s_%.3f", r.Kind, r.Value)
	default:
		return fmt.Sprintf("%s_%.2f", r.Kind, r.Value)
	}
}

// MarshalJSON renders the reason as its legacy string form so persisted
// payloads stay compatible with historic rows.
func (r FailureReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// ReasonStrings renders a reason list to the legacy wire format.
func ReasonStrings(reasons []FailureReason) []string {
	if len(reasons) == 0 {
		return nil
	}
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.String()
	}
	return out
}

// PartitionReasons splits a reason list into blocking and non-blocking sets,
// preserving order.
func PartitionReasons(reasons []FailureReason) (blocking, nonBlocking []FailureReason) {
	for _, r := range reasons {
		if r.Blocking() {
			blocking = append(blocking, r)
		} else {
			nonBlocking = append(nonBlocking, r)
		}
	}
	return blocking, nonBlocking
}
