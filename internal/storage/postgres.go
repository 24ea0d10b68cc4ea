package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/idverify/internal/config"
	"github.com/your-org/idverify/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Requests ---

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.VerificationRequest) error {
	req.ID = uuid.New()
	return s.pool.QueryRow(ctx,
		`INSERT INTO verification_requests (id, booking_id, user_id, document_path, selfie_path, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending') RETURNING created_at`,
		req.ID, req.BookingID, req.UserID, req.DocumentPath, req.SelfiePath,
	).Scan(&req.CreatedAt)
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, string, error) {
	req := &models.VerificationRequest{}
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, booking_id, user_id, document_path, selfie_path, status, created_at
		 FROM verification_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.BookingID, &req.UserID, &req.DocumentPath, &req.SelfiePath, &status, &req.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("get request: %w", err)
	}
	return req, status, nil
}

// RequestSummary is one operator-queue row.
type RequestSummary struct {
	ID          uuid.UUID `json:"id"`
	BookingID   uuid.UUID `json:"booking_id"`
	UserID      uuid.UUID `json:"user_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *PostgresStore) ListRequests(ctx context.Context, status string, limit, offset int) ([]RequestSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, booking_id, user_id, status, created_at FROM verification_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []RequestSummary
	for rows.Next() {
		var r RequestSummary
		if err := rows.Scan(&r.ID, &r.BookingID, &r.UserID, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// UpdateRequestStatus writes the run's decision and automation metadata back
// onto the request row.
func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status models.VerificationStatus, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE verification_requests
		 SET status = $1, metadata = COALESCE(metadata, '{}'::jsonb) || $2, updated_at = now()
		 WHERE id = $3`,
		status, metadata, id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// --- Results ---

// ResultRow is the persisted form of one verification run.
type ResultRow struct {
	RequestID              uuid.UUID
	DocumentStatus         models.DocumentStatus
	DocumentSharpnessScore *float64
	SelfieSharpnessScore   *float64
	FaceMatchScore         *float64
	FailureReasons         []string
	RawPayload             json.RawMessage
	ExtractedFields        json.RawMessage
	ProcessedAt            time.Time
}

// UpsertResult writes the result row keyed by request id. Re-running a request
// overwrites the prior row rather than duplicating it.
func (s *PostgresStore) UpsertResult(ctx context.Context, row *ResultRow) error {
	if row.ExtractedFields == nil {
		row.ExtractedFields = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_results
		   (request_id, document_status, document_sharpness, selfie_sharpness, face_match_score,
		    failure_reasons, raw_payload, extracted_fields, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (request_id) DO UPDATE SET
		   document_status = EXCLUDED.document_status,
		   document_sharpness = EXCLUDED.document_sharpness,
		   selfie_sharpness = EXCLUDED.selfie_sharpness,
		   face_match_score = EXCLUDED.face_match_score,
		   failure_reasons = EXCLUDED.failure_reasons,
		   raw_payload = EXCLUDED.raw_payload,
		   extracted_fields = EXCLUDED.extracted_fields,
		   processed_at = EXCLUDED.processed_at`,
		row.RequestID, row.DocumentStatus, row.DocumentSharpnessScore, row.SelfieSharpnessScore,
		row.FaceMatchScore, row.FailureReasons, row.RawPayload, row.ExtractedFields, row.ProcessedAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, requestID uuid.UUID) (*ResultRow, error) {
	row := &ResultRow{}
	err := s.pool.QueryRow(ctx,
		`SELECT request_id, document_status, document_sharpness, selfie_sharpness, face_match_score,
		        failure_reasons, raw_payload, extracted_fields, processed_at
		 FROM verification_results WHERE request_id = $1`, requestID,
	).Scan(&row.RequestID, &row.DocumentStatus, &row.DocumentSharpnessScore, &row.SelfieSharpnessScore,
		&row.FaceMatchScore, &row.FailureReasons, &row.RawPayload, &row.ExtractedFields, &row.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return row, nil
}

// --- Audits ---

// AppendAudit records one append-only audit row per run.
func (s *PostgresStore) AppendAudit(ctx context.Context, requestID uuid.UUID, action models.AuditAction, notes string, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	var notesArg interface{}
	if notes != "" {
		notesArg = notes
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_audits (id, request_id, action, performed_by, notes, metadata)
		 VALUES ($1, $2, $3, NULL, $4, $5)`,
		uuid.New(), requestID, action, notesArg, metadata)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// --- Embeddings ---

// UpsertEmbedding stores the run's selfie embedding for duplicate-identity
// lookups across past verifications.
func (s *PostgresStore) UpsertEmbedding(ctx context.Context, requestID uuid.UUID, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_embeddings (request_id, embedding)
		 VALUES ($1, $2)
		 ON CONFLICT (request_id) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = now()`,
		requestID, vec)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// SimilarMatch is one prior request whose selfie embedding resembles the probe.
type SimilarMatch struct {
	RequestID uuid.UUID `json:"request_id"`
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	Score     float32   `json:"score"`
}

// SearchSimilarFaces finds prior requests whose stored selfie embedding
// cosine-matches the given one, excluding the probe request itself.
func (s *PostgresStore) SearchSimilarFaces(ctx context.Context, exclude uuid.UUID, embedding []float32, threshold float64, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT ve.request_id, vr.booking_id, vr.user_id, 1 - (ve.embedding <=> $1) AS score
		 FROM verification_embeddings ve
		 JOIN verification_requests vr ON vr.id = ve.request_id
		 WHERE ve.request_id <> $2
		   AND 1 - (ve.embedding <=> $1) >= $3
		 ORDER BY ve.embedding <=> $1
		 LIMIT $4`,
		vec, exclude, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar faces: %w", err)
	}
	defer rows.Close()

	var matches []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		if err := rows.Scan(&m.RequestID, &m.BookingID, &m.UserID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan similar match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// GetEmbedding loads the stored selfie embedding for a request.
func (s *PostgresStore) GetEmbedding(ctx context.Context, requestID uuid.UUID) ([]float32, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT embedding FROM verification_embeddings WHERE request_id = $1`, requestID,
	).Scan(&vec)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	return vec.Slice(), nil
}
