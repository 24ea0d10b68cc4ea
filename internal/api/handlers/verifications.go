package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idverify/internal/models"
	"github.com/your-org/idverify/internal/queue"
	"github.com/your-org/idverify/internal/storage"
	"github.com/your-org/idverify/pkg/dto"
)

type VerificationHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewVerificationHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *VerificationHandler {
	return &VerificationHandler{db: db, minio: minio, producer: producer}
}

// Submit accepts a new verification request and enqueues it for the workers.
func (h *VerificationHandler) Submit(c *gin.Context) {
	var req dto.SubmitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	// Reject paths that point at nothing before enqueueing.
	for _, path := range []string{req.DocumentPath, req.SelfiePath} {
		if err := h.minio.StatObject(ctx, path); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image not found: " + path})
			return
		}
	}

	vr := &models.VerificationRequest{
		BookingID:    req.BookingID,
		UserID:       req.UserID,
		DocumentPath: req.DocumentPath,
		SelfiePath:   req.SelfiePath,
	}
	if err := h.db.CreateRequest(ctx, vr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.VerificationTask{
		RequestID:    vr.ID,
		BookingID:    vr.BookingID,
		UserID:       vr.UserID,
		DocumentPath: vr.DocumentPath,
		SelfiePath:   vr.SelfiePath,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := h.producer.PublishTask(ctx, vr.ID.String(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitVerificationResponse{
		ID:          vr.ID,
		Status:      "pending",
		SubmittedAt: task.SubmittedAt,
	})
}

// Get returns the request plus its result once a worker has processed it.
func (h *VerificationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification id"})
		return
	}

	ctx := c.Request.Context()

	req, status, err := h.db.GetRequest(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
		return
	}

	resp := dto.VerificationResponse{
		ID:        req.ID,
		BookingID: req.BookingID,
		UserID:    req.UserID,
		Status:    status,
		CreatedAt: req.CreatedAt,
	}

	result, err := h.db.GetResult(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result != nil {
		resp.DocumentStatus = string(result.DocumentStatus)
		resp.FailureReasons = result.FailureReasons
		resp.Scores = &dto.ScoreSet{
			FaceMatchScore:         result.FaceMatchScore,
			DocumentSharpnessScore: result.DocumentSharpnessScore,
			SelfieSharpnessScore:   result.SelfieSharpnessScore,
		}
		resp.Analysis = result.RawPayload
		processed := result.ProcessedAt
		resp.ProcessedAt = &processed
	}

	c.JSON(http.StatusOK, resp)
}

// List returns the operator queue, optionally filtered by status.
func (h *VerificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := c.Query("status")

	requests, err := h.db.ListRequests(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.VerificationListItem, 0, len(requests))
	for _, r := range requests {
		items = append(items, dto.VerificationListItem{
			ID:        r.ID,
			BookingID: r.BookingID,
			UserID:    r.UserID,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, dto.VerificationListResponse{
		Verifications: items,
		Total:         len(items),
	})
}

// Similar finds other requests whose selfie embedding resembles this one,
// for duplicate-identity review.
func (h *VerificationHandler) Similar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification id"})
		return
	}

	var req dto.SimilarFacesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Threshold <= 0 || req.Threshold > 1 {
		req.Threshold = 0.6
	}

	ctx := c.Request.Context()

	embedding, err := h.db.GetEmbedding(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(embedding) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no face embedding stored for this verification"})
		return
	}

	matches, err := h.db.SearchSimilarFaces(ctx, id, embedding, req.Threshold, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.SimilarFaceMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, dto.SimilarFaceMatch{
			RequestID: m.RequestID,
			BookingID: m.BookingID,
			UserID:    m.UserID,
			Score:     float64(m.Score),
		})
	}

	c.JSON(http.StatusOK, dto.SimilarFacesResponse{
		Matches: out,
		Total:   len(out),
	})
}
