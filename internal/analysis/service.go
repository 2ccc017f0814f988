package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/missionlens/missionlens/internal/ai"
	"github.com/missionlens/missionlens/internal/store"
	"github.com/missionlens/missionlens/pkg/models"
)

// Runner executes the analysis pipeline against persisted missions and
// records the outcome. It owns the mission status transitions around a
// pipeline run.
type Runner struct {
	store    store.MissionStore
	analyzer *Analyzer
	embedder ai.Embedder // optional, powers related-mission search
}

// NewRunner creates a runner. embedder may be nil; related-mission
// vectors are then skipped.
func NewRunner(st store.MissionStore, analyzer *Analyzer, embedder ai.Embedder) *Runner {
	return &Runner{store: st, analyzer: analyzer, embedder: embedder}
}

// Run analyzes the mission's normalized content and persists the
// result. The pipeline itself cannot fail; errors here are persistence
// and precondition failures only.
func (r *Runner) Run(ctx context.Context, missionID string) (models.Analysis, error) {
	mission, found, err := r.store.GetMission(ctx, missionID)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("load mission: %w", err)
	}
	if !found {
		return models.Analysis{}, fmt.Errorf("mission %s not found", missionID)
	}
	if mission.NormalizedContent == "" {
		_ = r.store.UpdateMissionStatus(ctx, missionID, models.StatusError, "no content to analyze")
		return models.Analysis{}, fmt.Errorf("mission %s has no content to analyze", missionID)
	}

	if err := r.store.UpdateMissionStatus(ctx, missionID, models.StatusAnalyzing, ""); err != nil {
		return models.Analysis{}, fmt.Errorf("mark analyzing: %w", err)
	}

	start := time.Now()
	artifact := r.analyzer.Analyze(ctx, mission.NormalizedContent)
	elapsed := time.Since(start)

	analysis := models.Analysis{
		ID:               uuid.NewString(),
		MissionID:        missionID,
		Summary:          artifact.Summary,
		Entities:         artifact.Entities,
		RiskLevel:        artifact.RiskLevel,
		Explanation:      artifact.Explanation,
		Model:            artifact.Model,
		InputTokens:      artifact.InputTokens,
		OutputTokens:     artifact.OutputTokens,
		TotalTokens:      artifact.TotalTokens,
		EstimatedCost:    artifact.EstimatedCost,
		Confidence:       artifact.Confidence,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}

	if err := r.store.InsertAnalysis(ctx, analysis); err != nil {
		_ = r.store.UpdateMissionStatus(ctx, missionID, models.StatusError, err.Error())
		return models.Analysis{}, fmt.Errorf("persist analysis: %w", err)
	}
	if err := r.store.UpdateMissionStatus(ctx, missionID, models.StatusAnalyzed, ""); err != nil {
		return models.Analysis{}, fmt.Errorf("mark analyzed: %w", err)
	}

	r.indexSummary(ctx, missionID, artifact.Summary)

	log.Info().
		Str("mission_id", missionID).
		Str("risk", string(artifact.RiskLevel)).
		Int("total_tokens", artifact.TotalTokens).
		Float64("confidence", artifact.Confidence).
		Dur("took", elapsed).
		Msg("analysis complete")
	return analysis, nil
}

// indexSummary embeds the summary and stores its vector for
// cross-mission similarity. Best effort: failures are logged, never
// surfaced.
func (r *Runner) indexSummary(ctx context.Context, missionID, summary string) {
	if r.embedder == nil || summary == "" {
		return
	}
	vecs, err := r.embedder.Embed(ctx, []string{summary})
	if err != nil || len(vecs) == 0 {
		log.Warn().Err(err).Str("mission_id", missionID).Msg("summary embedding failed")
		return
	}
	if err := r.store.UpsertSummaryVec(ctx, missionID, summary, vecs[0]); err != nil {
		log.Warn().Err(err).Str("mission_id", missionID).Msg("summary vector upsert failed")
	}
}
