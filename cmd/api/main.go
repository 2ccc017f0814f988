package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/missionlens/missionlens/internal/ai"
	"github.com/missionlens/missionlens/internal/analysis"
	"github.com/missionlens/missionlens/internal/config"
	"github.com/missionlens/missionlens/internal/ingest"
	"github.com/missionlens/missionlens/internal/rag"
	"github.com/missionlens/missionlens/internal/store"
	"github.com/missionlens/missionlens/pkg/models"
)

const maxUploadBytes = 10 << 20

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("missionlens-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting missionlens api")

	clientConfig := buildClientConfig(cfg)

	gen, err := ai.NewGenerator(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create generation client: %v", err)
	}

	// The retrieval service creates its embedder lazily; a missing or
	// misconfigured embedding backend disables RAG context instead of
	// failing startup.
	retriever := rag.NewService(func() (ai.Embedder, error) {
		return ai.NewEmbedder(clientConfig)
	})

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	dim := clientConfig.Dim
	if dim == 0 {
		dim = 768
	}
	if err := st.Migrate(ctx, dim); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Related-mission vectors are best effort: no embedder, no vectors.
	summaryEmbedder, err := ai.NewEmbedder(clientConfig)
	if err != nil {
		logger.Warn().Err(err).Msg("summary embedder unavailable, related-mission search disabled")
		summaryEmbedder = nil
	}

	pricing := analysis.Pricing{InputPer1K: cfg.InputCostPer1K, OutputPer1K: cfg.OutputCostPer1K}
	calculator := analysis.NewCalculator(pricing, gen.Model())
	prompts := analysis.NewPromptStore(cfg.PromptsDir)

	withRAG := analysis.NewAnalyzer(gen, retriever, prompts, calculator, cfg.Confidence)
	withoutRAG := analysis.NewAnalyzer(gen, nil, prompts, calculator, cfg.Confidence)
	runnerRAG := analysis.NewRunner(st, withRAG, summaryEmbedder)
	runnerPlain := analysis.NewRunner(st, withoutRAG, summaryEmbedder)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"stats": gen.Stats()}
		if cc, ok := gen.(*ai.ChatClient); ok {
			out["connection"] = cc.TestConnection(r.Context())
		}
		writeJSON(w, out)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"generation": gen.Stats(),
			"pricing": map[string]float64{
				"input_per_1k":  cfg.InputCostPer1K,
				"output_per_1k": cfg.OutputCostPer1K,
			},
		})
	})

	mux.HandleFunc("/missions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createMissionFromText(w, r, st)
		case http.MethodGet:
			listMissions(w, r, st)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/missions/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		createMissionFromFile(w, r, st)
	})

	mux.HandleFunc("/missions/", func(w http.ResponseWriter, r *http.Request) {
		rel := strings.Trim(strings.TrimPrefix(r.URL.Path, "/missions/"), "/")
		if rel == "" {
			http.NotFound(w, r)
			return
		}

		if id, ok := strings.CutSuffix(rel, "/related"); ok {
			k := 5
			if v := r.URL.Query().Get("k"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					k = n
				}
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			related, err := st.SearchRelated(ctx, id, k)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if related == nil {
				related = []models.RelatedMission{}
			}
			writeJSON(w, related)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		switch r.Method {
		case http.MethodGet:
			m, found, err := st.GetMission(ctx, rel)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if !found {
				http.Error(w, "Mission not found", http.StatusNotFound)
				return
			}
			writeJSON(w, m)
		case http.MethodDelete:
			deleted, err := st.DeleteMission(ctx, rel)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if !deleted {
				http.Error(w, "Mission not found", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/analysis/", func(w http.ResponseWriter, r *http.Request) {
		rel := strings.Trim(strings.TrimPrefix(r.URL.Path, "/analysis/"), "/")
		if rel == "" {
			http.NotFound(w, r)
			return
		}

		if id, ok := strings.CutSuffix(rel, "/history"); ok {
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			all, err := st.ListAnalyses(ctx, id)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if all == nil {
				all = []models.Analysis{}
			}
			writeJSON(w, all)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				UseRAG *bool `json:"use_rag"`
			}
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&req)
			}
			runner := runnerRAG
			if req.UseRAG != nil && !*req.UseRAG {
				runner = runnerPlain
			}

			start := time.Now()
			// Four sequential generation calls; budget for all of them.
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
			defer cancel()
			result, err := runner.Run(ctx, rel)
			if err != nil {
				if strings.Contains(err.Error(), "not found") {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, result)
			hlog.FromRequest(r).Info().Str("mission_id", rel).Dur("dur", time.Since(start)).Msg("analysis served")
		case http.MethodGet:
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			a, found, err := st.LatestAnalysis(ctx, rel)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if !found {
				http.Error(w, "No analysis for mission", http.StatusNotFound)
				return
			}
			writeJSON(w, a)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

func buildClientConfig(cfg config.Specification) *ai.ClientConfig {
	provider := ai.Provider(strings.ToLower(cfg.Provider))
	switch provider {
	case ai.ProviderOpenAI, ai.ProviderGoogle, ai.ProviderStub:
	default:
		log.Fatalf("unsupported provider: %s", cfg.Provider)
	}
	return &ai.ClientConfig{
		Provider:   provider,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		GenModel:   cfg.GenModel,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
	}
}

func createMissionFromText(w http.ResponseWriter, r *http.Request, st store.MissionStore) {
	var req struct {
		Text        string `json:"text"`
		SourceLabel string `json:"source_label"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceLabel == "" {
		req.SourceLabel = "text_input"
	}

	parsed := ingest.ParseText(req.Text, req.SourceLabel)
	normalized := ingest.Normalize(parsed, models.SourceText, req.SourceLabel)
	mission := ingest.NewMission(models.SourceText, "", req.SourceLabel, req.Text, normalized)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := st.CreateMission(ctx, mission); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, mission)
}

func createMissionFromFile(w http.ResponseWriter, r *http.Request, st store.MissionStore) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "Failed to read file", 500)
		return
	}

	var (
		parsed ingest.Parsed
		source models.SourceType
	)
	switch {
	case strings.HasSuffix(strings.ToLower(header.Filename), ".csv"):
		source = models.SourceCSV
		parsed = ingest.ParseCSV(data, header.Filename)
	case strings.HasSuffix(strings.ToLower(header.Filename), ".txt"):
		source = models.SourceText
		parsed = ingest.ParseText(string(data), header.Filename)
	default:
		http.Error(w, "Unsupported file type (expected .txt or .csv)", http.StatusBadRequest)
		return
	}

	normalized := ingest.Normalize(parsed, source, header.Filename)
	mission := ingest.NewMission(source, header.Filename, "", string(data), normalized)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := st.CreateMission(ctx, mission); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, mission)
}

func listMissions(w http.ResponseWriter, r *http.Request, st store.MissionStore) {
	limit, offset := 100, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	missions, err := st.ListMissions(ctx, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if missions == nil {
		missions = []models.Mission{}
	}
	writeJSON(w, missions)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", 500)
	}
}
