package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailureReasonString(t *testing.T) {
	t.Run("resolution reasons carry WxH", func(t *testing.T) {
		r := NewResolutionReason(ReasonDocumentResolutionLow, 512, 384)
		require.Equal(t, "document_resolution_low_front_512x384", r.String())
	})

	t.Run("default kinds use two decimals", func(t *testing.T) {
		r := NewValueReason(ReasonDocumentBlurry, 12.3)
		require.Equal(t, "document_blurry_front_12.30", r.String())

		r = NewValueReason(ReasonSelfieBrightness, 0.9)
		require.Equal(t, "selfie_brightness_out_of_range_0.90", r.String())
	})

	t.Run("face area and mismatch use three decimals", func(t *testing.T) {
		r := NewValueReason(ReasonDocumentFaceAreaLarge, 0.2)
		require.Equal(t, "document_face_area_exceeds_ratio_0.200", r.String())

		r = NewValueReason(ReasonFaceMismatch, 0.3121)
		require.Equal(t, "face_mismatch_0.312", r.String())
	})

	t.Run("text count is an integer", func(t *testing.T) {
		r := NewCountReason(ReasonDocumentNoTextDetected, 1)
		require.Equal(t, "document_no_text_detected_1", r.String())
	})

	t.Run("analysis error appends the raw detail", func(t *testing.T) {
		r := NewAnalysisError("fetch_failed_404")
		require.Equal(t, "analysis_error_fetch_failed_404", r.String())
	})

	t.Run("bare reasons have no suffix", func(t *testing.T) {
		r := NewReason(ReasonFaceDescriptorUnavailable)
		require.Equal(t, "face_descriptor_unavailable", r.String())
	})

	t.Run("face detection reasons are bare tags", func(t *testing.T) {
		require.Equal(t, "document_face_not_detected", NewReason(ReasonDocumentFaceNotDetected).String())
		require.Equal(t, "selfie_face_not_detected", NewReason(ReasonSelfieFaceNotDetected).String())
	})
}

func TestBlocking(t *testing.T) {
	nonBlocking := []FailureReason{
		NewResolutionReason(ReasonDocumentResolutionLow, 100, 100),
		NewValueReason(ReasonDocumentBrightness, 0.1),
		NewValueReason(ReasonSelfieBlurry, 3),
		NewValueReason(ReasonSelfieMissingFace, 0.001),
		NewValueReason(ReasonDocumentHighSkinRatio, 0.6),
	}
	for _, r := range nonBlocking {
		require.False(t, r.Blocking(), "%s should not block", r.Kind)
	}

	blocking := []FailureReason{
		NewReason(ReasonDocumentFaceNotDetected),
		NewValueReason(ReasonDocumentStructureInvalid, 0.2),
		NewReason(ReasonSelfieFaceNotDetected),
		NewValueReason(ReasonFaceMismatch, 0.2),
		NewReason(ReasonFaceDescriptorUnavailable),
		NewAnalysisError("decode image"),
	}
	for _, r := range blocking {
		require.True(t, r.Blocking(), "%s should block", r.Kind)
	}
}

func TestPartitionReasons(t *testing.T) {
	reasons := []FailureReason{
		NewValueReason(ReasonDocumentBlurry, 5),
		NewValueReason(ReasonFaceMismatch, 0.3),
		NewValueReason(ReasonSelfieBrightness, 0.95),
	}

	blocking, nonBlocking := PartitionReasons(reasons)
	require.Len(t, blocking, 1)
	require.Equal(t, ReasonFaceMismatch, blocking[0].Kind)
	require.Len(t, nonBlocking, 2)
	require.Equal(t, ReasonDocumentBlurry, nonBlocking[0].Kind)
	require.Equal(t, ReasonSelfieBrightness, nonBlocking[1].Kind)
}

func TestReasonStrings(t *testing.T) {
	require.Nil(t, ReasonStrings(nil))

	out := ReasonStrings([]FailureReason{
		NewValueReason(ReasonFaceMismatch, 0.1234),
		NewReason(ReasonFaceDescriptorUnavailable),
	})
	require.Equal(t, []string{"face_mismatch_0.123", "face_descriptor_unavailable"}, out)
}

func TestFailureReasonMarshalJSON(t *testing.T) {
	out, err := json.Marshal([]FailureReason{
		NewValueReason(ReasonDocumentBlurry, 9.5),
		NewReason(ReasonSelfieFaceNotDetected),
	})
	require.NoError(t, err)
	require.JSONEq(t, `["document_blurry_front_9.50","selfie_face_not_detected"]`, string(out))
}
