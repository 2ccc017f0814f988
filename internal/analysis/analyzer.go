package analysis

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/missionlens/missionlens/internal/ai"
	"github.com/missionlens/missionlens/pkg/models"
)

// Stage input truncation and output budgets.
const (
	summaryContentChars = 3000
	summaryContextChars = 1000
	summaryMaxTokens    = 300

	entityContentChars = 3000
	entityMaxTokens    = 500

	riskContentChars = 2000
	riskMaxEntities  = 10
	riskMaxTokens    = 100

	explainSummaryChars = 500
	explainMaxEntities  = 5
	explainMaxTokens    = 200

	stageTemperature = 0.7
)

// aiMarker prefixes generated prose so downstream consumers can never
// mistake it for verified fact.
const aiMarker = "[AI-Generated] "

// ContextRetriever supplies background context for the generation
// stages. Implementations must not fail: no context is an acceptable
// answer.
type ContextRetriever interface {
	ContextForAnalysis(ctx context.Context, content string, maxChars int) string
}

// ConfidenceWeights are the tuning constants of the confidence
// heuristic. They are configuration, not logic; the defaults are
// deliberate and the cap keeps the score from ever claiming certainty
// for a generated result.
type ConfidenceWeights struct {
	Base float64 `yaml:"base"`

	SummaryBonus    float64 `yaml:"summaryBonus"`
	SummaryBonusLen int     `yaml:"summaryBonusLen"`
	SummaryExtra    float64 `yaml:"summaryExtra"`
	SummaryExtraLen int     `yaml:"summaryExtraLen"`

	EntityBonus      float64 `yaml:"entityBonus"`
	EntityExtra      float64 `yaml:"entityExtra"`
	EntityExtraCount int     `yaml:"entityExtraCount"`

	ContentBonus    float64 `yaml:"contentBonus"`
	ContentBonusLen int     `yaml:"contentBonusLen"`
	ContentExtra    float64 `yaml:"contentExtra"`
	ContentExtraLen int     `yaml:"contentExtraLen"`

	Cap float64 `yaml:"cap"`
}

// DefaultConfidenceWeights returns the standard heuristic constants.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Base:             0.50,
		SummaryBonus:     0.10,
		SummaryBonusLen:  50,
		SummaryExtra:     0.05,
		SummaryExtraLen:  150,
		EntityBonus:      0.10,
		EntityExtra:      0.05,
		EntityExtraCount: 3,
		ContentBonus:     0.10,
		ContentBonusLen:  500,
		ContentExtra:     0.05,
		ContentExtraLen:  2000,
		Cap:              0.95,
	}
}

// Analyzer sequences the four generation stages over a document and
// assembles the final artifact. Stages run strictly in order because
// each later prompt depends on an earlier stage's parsed output. There
// is no retry logic: a stage either succeeds or degrades, and the
// pipeline always completes with a best-effort artifact.
type Analyzer struct {
	gen       ai.Generator
	retriever ContextRetriever
	prompts   *PromptStore
	cost      Calculator
	conf      ConfidenceWeights
}

// NewAnalyzer creates an analyzer. retriever may be nil to run without
// retrieved context.
func NewAnalyzer(gen ai.Generator, retriever ContextRetriever, prompts *PromptStore, cost Calculator, conf ConfidenceWeights) *Analyzer {
	return &Analyzer{
		gen:       gen,
		retriever: retriever,
		prompts:   prompts,
		cost:      cost,
		conf:      conf,
	}
}

// Analyze runs the full pipeline on normalized document content.
func (a *Analyzer) Analyze(ctx context.Context, content string) models.AnalysisArtifact {
	var totalIn, totalOut int

	background := ""
	if a.retriever != nil {
		background = a.retriever.ContextForAnalysis(ctx, content, summaryContextChars)
	}

	// 1. Summarize.
	sumRes := a.runStage(ctx, PromptSummarize, map[string]string{
		"content": truncate(content, summaryContentChars),
		"context": orDefault(truncate(background, summaryContextChars), "No additional context available."),
	}, summaryMaxTokens)
	totalIn += sumRes.InputTokens
	totalOut += sumRes.OutputTokens
	summary := stageText(sumRes)

	// 2. Extract entities.
	entRes := a.runStage(ctx, PromptExtractEntities, map[string]string{
		"content": truncate(content, entityContentChars),
	}, entityMaxTokens)
	totalIn += entRes.InputTokens
	totalOut += entRes.OutputTokens
	entities, extracted := parseEntities(stageText(entRes))

	// 3. Classify risk.
	riskRes := a.runStage(ctx, PromptClassifyRisk, map[string]string{
		"content":  truncate(content, riskContentChars),
		"entities": orDefault(joinEntityNames(entities, riskMaxEntities), "No entities identified"),
	}, riskMaxTokens)
	totalIn += riskRes.InputTokens
	totalOut += riskRes.OutputTokens
	risk := parseRisk(stageText(riskRes))

	// 4. Explain.
	explRes := a.runStage(ctx, PromptExplain, map[string]string{
		"summary":    truncate(summary, explainSummaryChars),
		"risk_level": string(risk),
		"entities":   orDefault(joinEntityNames(entities, explainMaxEntities), "None identified"),
	}, explainMaxTokens)
	totalIn += explRes.InputTokens
	totalOut += explRes.OutputTokens
	explanation := stageText(explRes)

	cost := a.cost.Breakdown(totalIn, totalOut, a.gen.Model())

	entityCount := 0
	if extracted {
		entityCount = len(entities)
	}
	confidence := a.confidence(len(summary), entityCount, len(content))

	return models.AnalysisArtifact{
		Summary:       aiMarker + orDefault(summary, "Analysis pending"),
		Entities:      entities,
		RiskLevel:     risk,
		Explanation:   strings.TrimSpace(aiMarker + explanation),
		Model:         a.gen.Model(),
		InputTokens:   totalIn,
		OutputTokens:  totalOut,
		TotalTokens:   totalIn + totalOut,
		EstimatedCost: cost.TotalCost,
		Confidence:    confidence,
	}
}

// runStage renders the named template and performs one generation call.
func (a *Analyzer) runStage(ctx context.Context, name string, vars map[string]string, maxTokens int) models.GenerationResult {
	prompt := RenderPrompt(a.prompts.Get(name), vars)
	res := a.gen.Generate(ctx, prompt, ai.GenOptions{MaxTokens: maxTokens, Temperature: stageTemperature})
	if res.Degraded() {
		log.Warn().Str("stage", name).Str("reason", res.Err).Msg("stage degraded")
	}
	return res
}

// stageText extracts usable text from a stage result. Degraded calls
// contribute nothing: their placeholder text must not leak into
// summaries, parsers, or the confidence heuristic.
func stageText(res models.GenerationResult) string {
	if res.Degraded() {
		return ""
	}
	return strings.TrimSpace(res.Text)
}

// parseEntities extracts a JSON entity array from raw model output.
// The array is taken between the first '[' and the last ']'. Entries
// without a name field are discarded; retained entries are normalized
// to exactly name/type/relevance. When no valid array is found the
// sentinel entity is returned so downstream stages always have at
// least one entity to reference; the second return value is false in
// that case.
func parseEntities(text string) ([]models.Entity, bool) {
	sentinel := []models.Entity{{Name: "Analysis pending", Type: "SYSTEM", Relevance: "low"}}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return sentinel, false
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		log.Warn().Err(err).Msg("failed to parse entities")
		return sentinel, false
	}

	valid := make([]models.Entity, 0, len(raw))
	for _, m := range raw {
		nameRaw, ok := m["name"]
		if !ok {
			continue
		}
		var name string
		if err := json.Unmarshal(nameRaw, &name); err != nil {
			continue
		}
		e := models.Entity{Name: name, Type: "UNKNOWN", Relevance: "medium"}
		if v, ok := m["type"]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				e.Type = s
			}
		}
		if v, ok := m["relevance"]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				e.Relevance = s
			}
		}
		valid = append(valid, e)
	}
	return valid, true
}

// riskOrder is severity-descending: a response naming several levels
// resolves to the most severe one that appears.
var riskOrder = []models.RiskLevel{models.RiskCritical, models.RiskHigh, models.RiskMedium, models.RiskLow}

// parseRisk resolves a risk level from raw model output by uppercased
// containment, defaulting to medium.
func parseRisk(text string) models.RiskLevel {
	upper := strings.ToUpper(text)
	for _, level := range riskOrder {
		if strings.Contains(upper, strings.ToUpper(string(level))) {
			return level
		}
	}
	return models.RiskMedium
}

// confidence computes the heuristic score. Not a model-reported
// probability.
func (a *Analyzer) confidence(summaryLen, entityCount, contentLen int) float64 {
	w := a.conf
	score := w.Base

	if summaryLen > w.SummaryBonusLen {
		score += w.SummaryBonus
	}
	if summaryLen > w.SummaryExtraLen {
		score += w.SummaryExtra
	}

	if entityCount > 0 {
		score += w.EntityBonus
	}
	if entityCount > w.EntityExtraCount {
		score += w.EntityExtra
	}

	if contentLen > w.ContentBonusLen {
		score += w.ContentBonus
	}
	if contentLen > w.ContentExtraLen {
		score += w.ContentExtra
	}

	score = math.Round(score*100) / 100
	return math.Min(score, w.Cap)
}

func joinEntityNames(entities []models.Entity, max int) string {
	if len(entities) > max {
		entities = entities[:max]
	}
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
