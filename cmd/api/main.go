package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/sjproject/dartsearch/internal/ai"
	"github.com/sjproject/dartsearch/internal/answer"
	"github.com/sjproject/dartsearch/internal/chunker"
	"github.com/sjproject/dartsearch/internal/config"
	"github.com/sjproject/dartsearch/internal/news"
	"github.com/sjproject/dartsearch/internal/normalize"
	"github.com/sjproject/dartsearch/internal/retriever"
	"github.com/sjproject/dartsearch/internal/source"
	"github.com/sjproject/dartsearch/internal/store"
	"github.com/sjproject/dartsearch/internal/task"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("dartsearch-api", pflag.ExitOnError)

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
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting dartsearch api")

	clientConfig, err := clientConfigFor(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	c, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	dim := c.Dim()
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	var index store.VectorIndex
	if cfg.Database != "" {
		pg, err := store.NewPG(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx, dim); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		index = pg
	} else {
		logger.Warn().Msg("no database configured, using in-memory index")
		index = store.NewMemory()
	}

	embedder := ai.NewEmbedder(c, ai.WithBatchSize(cfg.Indexing.EmbeddingBatchSize))
	retr := retriever.New(embedder, index,
		retriever.Weights{Vector: cfg.Query.VectorWeight, Keyword: cfg.Query.KeywordWeight},
		cfg.Query.CandidateMultiplier)

	var newsProvider news.Provider
	if cfg.News.ClientID != "" && cfg.News.ClientSecret != "" {
		newsProvider = news.NewNaver(cfg.News.ClientID, cfg.News.ClientSecret)
	}

	orch := answer.New(c, retr, index, newsProvider, answer.Config{
		TopK:      cfg.Query.TopK,
		NewsLimit: cfg.News.MaxResults,
	})

	mgr := task.NewManager(
		source.NewSpool(cfg.SpoolDir),
		normalize.NewText(),
		chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MaxTokensPerChunk),
		embedder,
		index,
		orch,
		task.Config{
			MaxConcurrent:  cfg.Indexing.MaxConcurrentChunking,
			SummaryTimeout: time.Duration(cfg.Indexing.SummaryTimeoutSeconds) * time.Second,
		},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := index.Stats(ctx)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	// /api/v1/documents/index          POST  start indexing
	// /api/v1/documents/{id}/summary   GET   document digest
	// /api/v1/documents/{id}/chunks    GET   raw chunks (debug)
	mux.HandleFunc("/api/v1/documents/", func(w http.ResponseWriter, r *http.Request) {
		rel := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/documents/"), "/")

		if rel == "index" {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req struct {
				DocumentID string `json:"document_id"`
				CorpName   string `json:"corp_name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
				http.Error(w, "document_id is required", http.StatusBadRequest)
				return
			}
			id, err := mgr.Create(req.DocumentID, req.CorpName)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
			return
		}

		if docID, ok := strings.CutSuffix(rel, "/summary"); ok && r.Method == http.MethodGet {
			summary, err := mgr.Summary(docID)
			if err != nil {
				switch {
				case errors.Is(err, task.ErrSummaryNotReady):
					http.Error(w, err.Error(), http.StatusNotFound)
				case errors.Is(err, context.DeadlineExceeded):
					http.Error(w, err.Error(), http.StatusRequestTimeout)
				default:
					http.Error(w, err.Error(), 500)
				}
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}

		if docID, ok := strings.CutSuffix(rel, "/chunks"); ok && r.Method == http.MethodGet {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			chunks, err := index.Chunks(ctx, docID)
			if err != nil {
				if errors.Is(err, store.ErrNotIndexed) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, http.StatusOK, chunks)
			return
		}

		http.NotFound(w, r)
	})

	// /api/v1/tasks/{id}  GET status, DELETE cancel
	mux.HandleFunc("/api/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			snap, err := mgr.Get(id)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		case http.MethodDelete:
			if err := mgr.Cancel(id); err != nil {
				switch {
				case errors.Is(err, task.ErrNoTask):
					http.Error(w, err.Error(), http.StatusNotFound)
				case errors.Is(err, task.ErrNotCancellable):
					http.Error(w, err.Error(), http.StatusConflict)
				default:
					http.Error(w, err.Error(), 500)
				}
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		var req struct {
			DocumentID  string `json:"document_id"`
			CorpName    string `json:"corp_name"`
			Question    string `json:"question"`
			IncludeNews *bool  `json:"include_news"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" || req.Question == "" {
			http.Error(w, "document_id and question are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()
		ans, err := orch.Answer(ctx, req.DocumentID, req.CorpName, req.Question, req.IncludeNews)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, ans)
		hlog.FromRequest(r).Info().Str("document_id", req.DocumentID).
			Float64("confidence", ans.Confidence).Dur("dur", time.Since(start)).Msg("query served")
	})

	mux.HandleFunc("/api/v1/query/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			DocumentID string   `json:"document_id"`
			CorpName   string   `json:"corp_name"`
			Questions  []string `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" || len(req.Questions) == 0 {
			http.Error(w, "document_id and questions are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()
		writeJSON(w, http.StatusOK, orch.AnswerBatch(ctx, req.DocumentID, req.CorpName, req.Questions))
	})

	mux.HandleFunc("/api/v1/query/followups", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			DocumentID string `json:"document_id"`
			Answer     string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
			http.Error(w, "answer is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		qs, err := orch.FollowUps(ctx, req.DocumentID, req.Answer)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"questions": qs})
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

func clientConfigFor(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:          cfg.APIKey,
			EmbedModel:      cfg.EmbedModel,
			CompletionModel: cfg.CompletionModel,
			Dim:             cfg.Dim,
			ProjectID:       cfg.ProjectID,
			Provider:        ai.ProviderOpenAI,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:          cfg.APIKey,
			EmbedModel:      cfg.EmbedModel,
			CompletionModel: cfg.CompletionModel,
			Dim:             cfg.Dim,
			ProjectID:       cfg.ProjectID,
			Location:        cfg.Location,
			Provider:        ai.ProviderVertexAI,
		}, nil
	case "stub":
		return &ai.ClientConfig{Dim: cfg.Dim, Provider: ai.ProviderStub}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
