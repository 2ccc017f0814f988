package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/missionlens/missionlens/pkg/models"
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// MissionStore defines the persistence surface the services depend on.
type MissionStore interface {
	Migrate(ctx context.Context, summaryDim int) error
	CreateMission(ctx context.Context, m models.Mission) error
	GetMission(ctx context.Context, id string) (models.Mission, bool, error)
	ListMissions(ctx context.Context, limit, offset int) ([]models.Mission, error)
	UpdateMissionStatus(ctx context.Context, id string, status models.MissionStatus, errMsg string) error
	DeleteMission(ctx context.Context, id string) (bool, error)
	InsertAnalysis(ctx context.Context, a models.Analysis) error
	LatestAnalysis(ctx context.Context, missionID string) (models.Analysis, bool, error)
	ListAnalyses(ctx context.Context, missionID string) ([]models.Analysis, error)
	UpsertSummaryVec(ctx context.Context, missionID, summary string, vec []float32) error
	SearchRelated(ctx context.Context, missionID string, k int) ([]models.RelatedMission, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, summaryDim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS missions (
  mission_id         TEXT PRIMARY KEY,
  source_type        TEXT NOT NULL,
  filename           TEXT,
  source_label       TEXT,
  raw_content        TEXT,
  normalized_content TEXT,
  status             TEXT NOT NULL DEFAULT 'pending',
  metadata           JSONB NOT NULL DEFAULT '{}',
  error_message      TEXT,
  summary            TEXT,
  summary_vec        vector(%d),
  ingested_at        TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analyses (
  analysis_id        TEXT PRIMARY KEY,
  mission_id         TEXT NOT NULL REFERENCES missions(mission_id) ON DELETE CASCADE,
  summary_text       TEXT,
  extracted_entities JSONB NOT NULL DEFAULT '[]',
  risk_level         TEXT,
  explanation        TEXT,
  llm_model_used     TEXT,
  input_tokens       INT NOT NULL DEFAULT 0,
  output_tokens      INT NOT NULL DEFAULT 0,
  total_tokens       INT NOT NULL DEFAULT 0,
  estimated_cost     DOUBLE PRECISION NOT NULL DEFAULT 0,
  confidence_score   DOUBLE PRECISION,
  processing_time_ms BIGINT,
  created_at         TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS analyses_mission_idx
  ON analyses (mission_id, created_at DESC);

CREATE INDEX IF NOT EXISTS missions_status_idx
  ON missions (status);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, summaryDim))
	return err
}

// CreateMission inserts a new mission record.
func (s *Store) CreateMission(ctx context.Context, m models.Mission) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
		INSERT INTO missions (
			mission_id, source_type, filename, source_label,
			raw_content, normalized_content, status, metadata, error_message, ingested_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10::timestamptz,now()))`
	var ingested any
	if !m.IngestedAt.IsZero() {
		ingested = m.IngestedAt
	}
	_, err = s.pool.Exec(ctx, q,
		m.ID, m.SourceType, m.Filename, m.SourceLabel,
		m.RawContent, m.NormalizedContent, m.Status, meta, nullable(m.ErrorMessage),
		ingested,
	)
	return err
}

// GetMission retrieves a mission by ID.
func (s *Store) GetMission(ctx context.Context, id string) (models.Mission, bool, error) {
	const q = `
		SELECT mission_id, source_type, COALESCE(filename,''), COALESCE(source_label,''),
		       COALESCE(raw_content,''), COALESCE(normalized_content,''),
		       status, metadata, COALESCE(error_message,''), ingested_at
		FROM missions WHERE mission_id = $1`
	m, err := scanMission(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Mission{}, false, nil
		}
		return models.Mission{}, false, err
	}
	return m, true, nil
}

// ListMissions returns missions newest-first with pagination.
func (s *Store) ListMissions(ctx context.Context, limit, offset int) ([]models.Mission, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT mission_id, source_type, COALESCE(filename,''), COALESCE(source_label,''),
		       COALESCE(raw_content,''), COALESCE(normalized_content,''),
		       status, metadata, COALESCE(error_message,''), ingested_at
		FROM missions ORDER BY ingested_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMissionStatus updates a mission's status and, when set, its
// error message.
func (s *Store) UpdateMissionStatus(ctx context.Context, id string, status models.MissionStatus, errMsg string) error {
	const q = `
		UPDATE missions
		SET status = $2,
		    error_message = COALESCE(NULLIF($3,''), error_message)
		WHERE mission_id = $1`
	_, err := s.pool.Exec(ctx, q, id, status, errMsg)
	return err
}

// DeleteMission removes a mission and its analyses.
func (s *Store) DeleteMission(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM missions WHERE mission_id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertAnalysis persists one analysis result.
func (s *Store) InsertAnalysis(ctx context.Context, a models.Analysis) error {
	entities, err := json.Marshal(a.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	const q = `
		INSERT INTO analyses (
			analysis_id, mission_id, summary_text, extracted_entities, risk_level,
			explanation, llm_model_used, input_tokens, output_tokens, total_tokens,
			estimated_cost, confidence_score, processing_time_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())`
	_, err = s.pool.Exec(ctx, q,
		a.ID, a.MissionID, a.Summary, entities, a.RiskLevel,
		a.Explanation, a.Model, a.InputTokens, a.OutputTokens, a.TotalTokens,
		a.EstimatedCost, a.Confidence, a.ProcessingTimeMS,
	)
	return err
}

// LatestAnalysis returns the most recent analysis for a mission.
func (s *Store) LatestAnalysis(ctx context.Context, missionID string) (models.Analysis, bool, error) {
	const q = analysisSelect + ` WHERE mission_id = $1 ORDER BY created_at DESC LIMIT 1`
	a, err := scanAnalysis(s.pool.QueryRow(ctx, q, missionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Analysis{}, false, nil
		}
		return models.Analysis{}, false, err
	}
	return a, true, nil
}

// ListAnalyses returns all analyses for a mission, newest first.
func (s *Store) ListAnalyses(ctx context.Context, missionID string) ([]models.Analysis, error) {
	const q = analysisSelect + ` WHERE mission_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertSummaryVec stores the latest summary text and its embedding on
// the mission, enabling cross-mission similarity search.
func (s *Store) UpsertSummaryVec(ctx context.Context, missionID, summary string, vec []float32) error {
	var sv any
	if vec != nil {
		sv = pgvector.NewVector(vec)
	} else {
		sv = (*pgvector.Vector)(nil)
	}
	const q = `UPDATE missions SET summary = $2, summary_vec = $3 WHERE mission_id = $1`
	_, err := s.pool.Exec(ctx, q, missionID, summary, sv)
	return err
}

// SearchRelated ranks other missions by cosine similarity of their
// summary embeddings to the given mission's.
func (s *Store) SearchRelated(ctx context.Context, missionID string, k int) ([]models.RelatedMission, error) {
	if k <= 0 {
		k = 5
	}
	const q = `
		SELECT m.mission_id, COALESCE(m.summary,''),
		       1.0 - (m.summary_vec <=> src.summary_vec) AS score
		FROM missions m,
		     (SELECT summary_vec FROM missions WHERE mission_id = $1) src
		WHERE m.mission_id <> $1
		  AND m.summary_vec IS NOT NULL
		  AND src.summary_vec IS NOT NULL
		ORDER BY m.summary_vec <=> src.summary_vec
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, missionID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RelatedMission
	for rows.Next() {
		var r models.RelatedMission
		if err := rows.Scan(&r.MissionID, &r.Summary, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const analysisSelect = `
		SELECT analysis_id, mission_id, COALESCE(summary_text,''), extracted_entities,
		       COALESCE(risk_level,''), COALESCE(explanation,''), COALESCE(llm_model_used,''),
		       input_tokens, output_tokens, total_tokens, estimated_cost,
		       COALESCE(confidence_score,0), COALESCE(processing_time_ms,0), created_at
		FROM analyses`

type row interface {
	Scan(dest ...any) error
}

func scanMission(r row) (models.Mission, error) {
	var m models.Mission
	var meta []byte
	err := r.Scan(&m.ID, &m.SourceType, &m.Filename, &m.SourceLabel,
		&m.RawContent, &m.NormalizedContent, &m.Status, &meta, &m.ErrorMessage, &m.IngestedAt)
	if err != nil {
		return models.Mission{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return models.Mission{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return m, nil
}

func scanAnalysis(r row) (models.Analysis, error) {
	var a models.Analysis
	var entities []byte
	err := r.Scan(&a.ID, &a.MissionID, &a.Summary, &entities,
		&a.RiskLevel, &a.Explanation, &a.Model,
		&a.InputTokens, &a.OutputTokens, &a.TotalTokens, &a.EstimatedCost,
		&a.Confidence, &a.ProcessingTimeMS, &a.CreatedAt)
	if err != nil {
		return models.Analysis{}, err
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &a.Entities); err != nil {
			return models.Analysis{}, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
