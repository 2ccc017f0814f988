package models

import "time"

// SourceType identifies how a mission entered the system.
type SourceType string

const (
	SourceText SourceType = "text"
	SourceCSV  SourceType = "csv"
)

// MissionStatus tracks a mission through ingestion and analysis.
type MissionStatus string

const (
	StatusPending   MissionStatus = "pending"
	StatusIngested  MissionStatus = "ingested"
	StatusAnalyzing MissionStatus = "analyzing"
	StatusAnalyzed  MissionStatus = "analyzed"
	StatusError     MissionStatus = "error"
)

// Mission is an ingested document awaiting or holding analysis.
type Mission struct {
	ID                string            `json:"mission_id"`
	SourceType        SourceType        `json:"source_type"`
	Filename          string            `json:"filename,omitempty"`
	SourceLabel       string            `json:"source_label,omitempty"`
	RawContent        string            `json:"raw_content,omitempty"`
	NormalizedContent string            `json:"normalized_content,omitempty"`
	Status            MissionStatus     `json:"status"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	IngestedAt        time.Time         `json:"ingested_at"`
}

// Chunk is a bounded segment of a document produced for embedding and
// retrieval. Immutable once created.
type Chunk struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	DocumentID string `json:"document_id,omitempty"`
}

// RetrievedChunk is a chunk paired with its distance to a query vector.
// Lower distance means more similar.
type RetrievedChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// GenerationResult is the outcome of a single generation call. A failed
// call still produces a result: Text holds a bracketed placeholder and
// Err carries the reason, so callers can tell an empty model reply from
// a network failure without handling an error return.
type GenerationResult struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
	Err          string `json:"error,omitempty"`
}

// Degraded reports whether the call failed and Text is a placeholder.
func (r GenerationResult) Degraded() bool { return r.Err != "" }

// Entity is one extracted entity, normalized to exactly these fields.
type Entity struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Relevance string `json:"relevance"`
}

// RiskLevel is the resolved risk classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CostBreakdown is a pure function of token counts and pricing config.
type CostBreakdown struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	InputCost       float64 `json:"input_cost"`
	OutputCost      float64 `json:"output_cost"`
	TotalCost       float64 `json:"total_cost"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	Model           string  `json:"model"`
}

// AnalysisArtifact is the orchestrator's final output, handed to the
// caller for persistence. Summary and explanation carry an explicit
// AI-generated marker.
type AnalysisArtifact struct {
	Summary       string    `json:"summary"`
	Entities      []Entity  `json:"entities"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Explanation   string    `json:"explanation"`
	Model         string    `json:"model"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TotalTokens   int       `json:"total_tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	Confidence    float64   `json:"confidence_score"`
}

// Analysis is a persisted analysis record tied to a mission.
type Analysis struct {
	ID               string    `json:"analysis_id"`
	MissionID        string    `json:"mission_id"`
	Summary          string    `json:"summary_text"`
	Entities         []Entity  `json:"extracted_entities"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Explanation      string    `json:"explanation"`
	Model            string    `json:"llm_model_used"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	Confidence       float64   `json:"confidence_score"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// RelatedMission is a mission ranked by summary-embedding similarity.
type RelatedMission struct {
	MissionID string  `json:"mission_id"`
	Summary   string  `json:"summary"`
	Score     float64 `json:"score"`
}
