package engine

import (
	"strings"

	"github.com/your-org/idverify/internal/models"
)

// Decision is the terminal classification of one run.
type Decision struct {
	Status         models.VerificationStatus
	DocumentStatus models.DocumentStatus
	Audit          models.AuditAction
	// PersistedReasons is what gets stored on the result row. Approved
	// runs persist nothing; everything else persists the full list so an
	// operator sees warnings alongside the blocking reasons.
	PersistedReasons []string
	Notes            string
}

// documentCriticalKinds fail the document check outright rather than merely
// casting suspicion on it.
var documentCriticalKinds = map[models.ReasonKind]bool{
	models.ReasonDocumentFaceNotDetected:    true,
	models.ReasonDocumentStructureInvalid:   true,
	models.ReasonDocumentTextPatternInvalid: true,
	models.ReasonDocumentNoTextDetected:     true,
}

// Decide maps an accumulated reason list onto the three-way outcome.
//
// An analysis error rejects immediately since nothing was measured. Any
// blocking reason routes to manual review; a mismatch or a missing selfie
// face is never auto-rejected because the photo may simply be poor. Quality
// warnings alone still approve.
func Decide(reasons []models.FailureReason) Decision {
	blocking, _ := models.PartitionReasons(reasons)

	var hasAnalysisError bool
	for _, r := range blocking {
		if r.Kind == models.ReasonAnalysisError {
			hasAnalysisError = true
			break
		}
	}

	switch {
	case hasAnalysisError:
		return Decision{
			Status:           models.StatusRejected,
			DocumentStatus:   documentStatusFor(models.StatusRejected, reasons),
			Audit:            models.AuditAutoRejected,
			PersistedReasons: models.ReasonStrings(reasons),
			Notes:            joinReasons(reasons),
		}
	case len(blocking) > 0:
		return Decision{
			Status:           models.StatusManualReview,
			DocumentStatus:   documentStatusFor(models.StatusManualReview, reasons),
			Audit:            models.AuditManualReviewOpened,
			PersistedReasons: models.ReasonStrings(reasons),
			Notes:            joinReasons(reasons),
		}
	default:
		return Decision{
			Status:         models.StatusApproved,
			DocumentStatus: models.DocumentPassed,
			Audit:          models.AuditAutoDecision,
			Notes:          joinReasons(reasons),
		}
	}
}

// documentStatusFor grades the document check: hard structural failures mark
// it failed, any review-bound run marks it suspected until an operator looks
// at it, everything else passes. A rejected run without a structural failure
// still passes the document check since nothing implicated the card itself.
func documentStatusFor(status models.VerificationStatus, reasons []models.FailureReason) models.DocumentStatus {
	for _, r := range reasons {
		if documentCriticalKinds[r.Kind] {
			return models.DocumentFailed
		}
	}
	if status == models.StatusManualReview {
		return models.DocumentSuspected
	}
	return models.DocumentPassed
}

func joinReasons(reasons []models.FailureReason) string {
	if len(reasons) == 0 {
		return ""
	}
	return strings.Join(models.ReasonStrings(reasons), "; ")
}
