package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SubmitVerificationRequest struct {
	BookingID    uuid.UUID `json:"booking_id" binding:"required"`
	UserID       uuid.UUID `json:"user_id" binding:"required"`
	DocumentPath string    `json:"document_path" binding:"required"`
	SelfiePath   string    `json:"selfie_path" binding:"required"`
}

type SubmitVerificationResponse struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type VerificationResponse struct {
	ID             uuid.UUID       `json:"id"`
	BookingID      uuid.UUID       `json:"booking_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Status         string          `json:"status"`
	DocumentStatus string          `json:"document_status,omitempty"`
	FailureReasons []string        `json:"failure_reasons,omitempty"`
	Scores         *ScoreSet       `json:"scores,omitempty"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

type ScoreSet struct {
	FaceMatchScore         *float64 `json:"face_match_score"`
	DocumentSharpnessScore *float64 `json:"document_sharpness_score"`
	SelfieSharpnessScore   *float64 `json:"selfie_sharpness_score"`
}

type VerificationListItem struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type VerificationListResponse struct {
	Verifications []VerificationListItem `json:"verifications"`
	Total         int                    `json:"total"`
}

type SimilarFacesRequest struct {
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

type SimilarFaceMatch struct {
	RequestID uuid.UUID `json:"request_id"`
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	Score     float64   `json:"score"`
}

type SimilarFacesResponse struct {
	Matches []SimilarFaceMatch `json:"matches"`
	Total   int                `json:"total"`
}

// DecisionMessage is the WebSocket frame pushed to dashboard clients when a
// run reaches a terminal status.
type DecisionMessage struct {
	RequestID      uuid.UUID `json:"request_id"`
	BookingID      uuid.UUID `json:"booking_id"`
	Status         string    `json:"status"`
	DocumentStatus string    `json:"document_status"`
	FailureReasons []string  `json:"failure_reasons,omitempty"`
	FaceMatchScore *float64  `json:"face_match_score,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}
