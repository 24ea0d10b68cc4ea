package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/idverify/internal/models"
)

func TestDecide(t *testing.T) {
	t.Run("no reasons approves", func(t *testing.T) {
		d := Decide(nil)
		require.Equal(t, models.StatusApproved, d.Status)
		require.Equal(t, models.DocumentPassed, d.DocumentStatus)
		require.Equal(t, models.AuditAutoDecision, d.Audit)
		require.Nil(t, d.PersistedReasons)
	})

	t.Run("quality warnings alone still approve", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewValueReason(models.ReasonDocumentBlurry, 9),
			models.NewValueReason(models.ReasonSelfieBrightness, 0.92),
			models.NewResolutionReason(models.ReasonSelfieResolutionLow, 320, 240),
		})
		require.Equal(t, models.StatusApproved, d.Status)
		require.Equal(t, models.DocumentPassed, d.DocumentStatus)
		require.Nil(t, d.PersistedReasons)
	})

	t.Run("analysis error rejects but does not implicate the document", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewAnalysisError("fetch_failed_404"),
		})
		require.Equal(t, models.StatusRejected, d.Status)
		require.Equal(t, models.DocumentPassed, d.DocumentStatus)
		require.Equal(t, models.AuditAutoRejected, d.Audit)
		require.Equal(t, []string{"analysis_error_fetch_failed_404"}, d.PersistedReasons)
	})

	t.Run("mismatch routes to manual review with the document suspected", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewValueReason(models.ReasonFaceMismatch, 0.31),
		})
		require.Equal(t, models.StatusManualReview, d.Status)
		require.Equal(t, models.DocumentSuspected, d.DocumentStatus)
		require.Equal(t, models.AuditManualReviewOpened, d.Audit)
	})

	t.Run("missing selfie face routes to manual review", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewReason(models.ReasonSelfieFaceNotDetected),
		})
		require.Equal(t, models.StatusManualReview, d.Status)
		require.Equal(t, models.DocumentSuspected, d.DocumentStatus)
	})

	t.Run("document structural failure marks the document failed", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewValueReason(models.ReasonDocumentStructureInvalid, 0.2),
			models.NewCountReason(models.ReasonDocumentNoTextDetected, 0),
		})
		require.Equal(t, models.StatusManualReview, d.Status)
		require.Equal(t, models.DocumentFailed, d.DocumentStatus)
	})

	t.Run("doc warning on a review-bound run marks the document suspected", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewValueReason(models.ReasonDocumentHighSkinRatio, 0.6),
			models.NewReason(models.ReasonSelfieFaceNotDetected),
		})
		require.Equal(t, models.StatusManualReview, d.Status)
		require.Equal(t, models.DocumentSuspected, d.DocumentStatus)
	})

	t.Run("review persists the full reason list including warnings", func(t *testing.T) {
		d := Decide([]models.FailureReason{
			models.NewValueReason(models.ReasonDocumentBlurry, 9),
			models.NewValueReason(models.ReasonFaceMismatch, 0.31),
		})
		require.Equal(t, []string{"document_blurry_front_9.00", "face_mismatch_0.310"}, d.PersistedReasons)
		require.Equal(t, "document_blurry_front_9.00; face_mismatch_0.310", d.Notes)
	})
}

// Removing a warning from a reason set never demotes the decision.
func TestDecideMonotonic(t *testing.T) {
	withWarning := []models.FailureReason{
		models.NewValueReason(models.ReasonDocumentBlurry, 9),
		models.NewValueReason(models.ReasonFaceMismatch, 0.31),
	}
	withoutWarning := withWarning[1:]

	require.Equal(t, Decide(withWarning).Status, Decide(withoutWarning).Status)

	warningsOnly := withWarning[:1]
	require.Equal(t, models.StatusApproved, Decide(warningsOnly).Status)
	require.Equal(t, models.StatusApproved, Decide(nil).Status)
}
