package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/spf13/pflag"

	"github.com/missionlens/missionlens/internal/ai"
	"github.com/missionlens/missionlens/internal/analysis"
	"github.com/missionlens/missionlens/internal/config"
	"github.com/missionlens/missionlens/internal/ingest"
	"github.com/missionlens/missionlens/internal/rag"
	"github.com/missionlens/missionlens/pkg/models"
)

// fileReport is one document's outcome in the batch report.
type fileReport struct {
	File     string                   `json:"file"`
	Artifact *models.AnalysisArtifact `json:"artifact,omitempty"`
	TookMS   int64                    `json:"took_ms"`
	Error    string                   `json:"error,omitempty"`
}

type batchReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Model       string       `json:"model"`
	Files       []fileReport `json:"files"`
	TotalTokens int          `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
}

func main() {
	fs := pflag.NewFlagSet("missionlens-batch", pflag.ExitOnError)
	fs.String("input", "./sample_data", "Directory of .txt/.csv documents to analyze")
	fs.String("output", "./reports", "Directory to write the JSON report into")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	input, _ := fs.GetString("input")
	output, _ := fs.GetString("output")

	provider := ai.Provider(strings.ToLower(cfg.Provider))
	clientConfig := &ai.ClientConfig{
		Provider:   provider,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		GenModel:   cfg.GenModel,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
	}

	gen, err := ai.NewGenerator(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create generation client: %v", err)
	}
	retriever := rag.NewService(func() (ai.Embedder, error) {
		return ai.NewEmbedder(clientConfig)
	})

	pricing := analysis.Pricing{InputPer1K: cfg.InputCostPer1K, OutputPer1K: cfg.OutputCostPer1K}
	analyzer := analysis.NewAnalyzer(
		gen,
		retriever,
		analysis.NewPromptStore(cfg.PromptsDir),
		analysis.NewCalculator(pricing, gen.Model()),
		cfg.Confidence,
	)

	ctx := context.Background()
	report := batchReport{GeneratedAt: time.Now().UTC(), Model: gen.Model()}

	err = godirwalk.Walk(input, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".txt" && ext != ".csv" {
				return nil
			}

			log.Printf("analyzing %s", path)
			report.Files = append(report.Files, analyzeFile(ctx, analyzer, retriever, path, ext))
			return nil
		},
	})
	if err != nil {
		log.Fatalf("walk %s: %v", input, err)
	}

	for _, f := range report.Files {
		if f.Artifact != nil {
			report.TotalTokens += f.Artifact.TotalTokens
			report.TotalCost += f.Artifact.EstimatedCost
		}
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	name := filepath.Join(output, fmt.Sprintf("batch-report-%s.json", time.Now().UTC().Format("20060102-150405")))
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("marshal report: %v", err)
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		log.Fatalf("write report: %v", err)
	}

	log.Printf("analyzed %d files, %d tokens, $%.4f estimated -> %s",
		len(report.Files), report.TotalTokens, report.TotalCost, name)
}

func analyzeFile(ctx context.Context, analyzer *analysis.Analyzer, retriever *rag.Service, path, ext string) fileReport {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return fileReport{File: path, Error: err.Error(), TookMS: time.Since(start).Milliseconds()}
	}

	var parsed ingest.Parsed
	source := models.SourceText
	if ext == ".csv" {
		source = models.SourceCSV
		parsed = ingest.ParseCSV(data, filepath.Base(path))
	} else {
		parsed = ingest.ParseText(string(data), filepath.Base(path))
	}

	normalized := ingest.Normalize(parsed, source, filepath.Base(path))
	if !normalized.Valid {
		return fileReport{File: path, Error: strings.Join(normalized.Errors, "; "), TookMS: time.Since(start).Milliseconds()}
	}

	// Each document gets a fresh working set: the retriever self-indexes
	// the current document, so stale chunks would pollute its context.
	retriever.Clear()

	artifact := analyzer.Analyze(ctx, normalized.Content)
	return fileReport{File: path, Artifact: &artifact, TookMS: time.Since(start).Milliseconds()}
}
