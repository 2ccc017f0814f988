package analysis

import (
	"math"

	"github.com/missionlens/missionlens/pkg/models"
)

// Pricing is per-1000-token pricing for a model. A zero value is a
// valid free-tier configuration.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Calculator converts token counts into a cost estimate. Pure function
// of its configuration; no side effects, no failure modes.
type Calculator struct {
	pricing      Pricing
	defaultModel string
}

// NewCalculator creates a calculator with the given pricing table.
func NewCalculator(pricing Pricing, defaultModel string) Calculator {
	return Calculator{pricing: pricing, defaultModel: defaultModel}
}

// Breakdown computes the cost of the given token usage.
func (c Calculator) Breakdown(inputTokens, outputTokens int, model string) models.CostBreakdown {
	if model == "" {
		model = c.defaultModel
	}

	inputCost := float64(inputTokens) / 1000 * c.pricing.InputPer1K
	outputCost := float64(outputTokens) / 1000 * c.pricing.OutputPer1K

	return models.CostBreakdown{
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		TotalTokens:     inputTokens + outputTokens,
		InputCost:       round6(inputCost),
		OutputCost:      round6(outputCost),
		TotalCost:       round6(inputCost + outputCost),
		CostPer1KInput:  c.pricing.InputPer1K,
		CostPer1KOutput: c.pricing.OutputPer1K,
		Model:           model,
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
