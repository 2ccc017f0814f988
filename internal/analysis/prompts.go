package analysis

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Stage template names.
const (
	PromptSummarize       = "summarize"
	PromptExtractEntities = "extract_entities"
	PromptClassifyRisk    = "classify_risk"
	PromptExplain         = "explain"
)

// builtin minimal templates used when a named template file is absent.
// Same placeholder contract as the external templates.
var builtinPrompts = map[string]string{
	PromptSummarize:       "Summarize the following content in 3-5 sentences:\n\n{content}",
	PromptExtractEntities: "Extract key entities from this text as a JSON array:\n\n{content}",
	PromptClassifyRisk:    "Classify the risk level (LOW, MEDIUM, HIGH, CRITICAL):\n\n{content}",
	PromptExplain:         "Explain the analysis in plain language:\n\nSummary: {summary}\nRisk: {risk_level}",
}

// PromptStore loads named prompt templates from a directory of .txt
// files, falling back to the builtin template for a missing name.
type PromptStore struct {
	dir string
}

// NewPromptStore creates a store reading from dir. An empty dir means
// builtin templates only.
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{dir: dir}
}

// Get returns the template for name.
func (p *PromptStore) Get(name string) string {
	if p.dir != "" {
		b, err := os.ReadFile(filepath.Join(p.dir, name+".txt"))
		if err == nil {
			return string(b)
		}
		log.Debug().Str("prompt", name).Str("dir", p.dir).Msg("prompt file not found, using builtin")
	}
	return builtinPrompts[name]
}

// RenderPrompt substitutes {name} placeholders with their values.
// Unknown placeholders are left intact.
func RenderPrompt(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
