package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sjproject/dartsearch/internal/ai"
	"github.com/sjproject/dartsearch/internal/chunker"
	"github.com/sjproject/dartsearch/internal/config"
	"github.com/sjproject/dartsearch/internal/normalize"
	"github.com/sjproject/dartsearch/internal/source"
	"github.com/sjproject/dartsearch/internal/store"
)

// The indexer is the batch companion of the API server: it indexes spool
// documents in one shot and exits, for backfills and local development.
func main() {
	fs := pflag.NewFlagSet("dartsearch-indexer", pflag.ExitOnError)
	docs := fs.StringSlice("documents", nil, "Document references to index (default: every spool entry)")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("spool", cfg.SpoolDir).Msg("starting dartsearch indexer")

	var clientConfig *ai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		clientConfig = &ai.ClientConfig{
			APIKey:          cfg.APIKey,
			EmbedModel:      cfg.EmbedModel,
			CompletionModel: cfg.CompletionModel,
			Dim:             cfg.Dim,
			ProjectID:       cfg.ProjectID,
			Provider:        ai.ProviderOpenAI,
		}
	case "vertexai", "google":
		clientConfig = &ai.ClientConfig{
			APIKey:          cfg.APIKey,
			EmbedModel:      cfg.EmbedModel,
			CompletionModel: cfg.CompletionModel,
			Dim:             cfg.Dim,
			ProjectID:       cfg.ProjectID,
			Location:        cfg.Location,
			Provider:        ai.ProviderVertexAI,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{Dim: cfg.Dim, Provider: ai.ProviderStub}
	default:
		log.Fatalf("unsupported provider: %s", cfg.Provider)
	}

	ctx := context.Background()
	c, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	if cfg.Database == "" {
		log.Fatal("the indexer needs a database; an in-memory index dies with the process")
	}
	pg, err := store.NewPG(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx, c.Dim()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	spool := source.NewSpool(cfg.SpoolDir)
	refs := *docs
	if len(refs) == 0 {
		refs, err = spool.List()
		if err != nil {
			log.Fatalf("Failed to list spool: %v", err)
		}
	}
	if len(refs) == 0 {
		logger.Info().Msg("spool is empty, nothing to index")
		return
	}

	norm := normalize.NewText()
	ch := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MaxTokensPerChunk)
	embedder := ai.NewEmbedder(c, ai.WithBatchSize(cfg.Indexing.EmbeddingBatchSize))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Indexing.MaxConcurrentChunking)
	for _, ref := range refs {
		g.Go(func() error {
			raw, err := spool.Fetch(gctx, ref)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref, err)
			}
			doc, err := norm.Normalize(ref, "", raw)
			if err != nil {
				return fmt.Errorf("normalize %s: %w", ref, err)
			}
			chunks := ch.Chunk(doc)
			if len(chunks) == 0 {
				return fmt.Errorf("document %s produced no chunks", ref)
			}
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
			}
			vecs, err := embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed %s: %w", ref, err)
			}
			for i := range chunks {
				chunks[i].Embedding = vecs[i]
			}
			if err := pg.Replace(gctx, ref, chunks); err != nil {
				return fmt.Errorf("index %s: %w", ref, err)
			}
			logger.Info().Str("document_id", ref).Int("chunks", len(chunks)).Msg("indexed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}
	logger.Info().Int("documents", len(refs)).Dur("dur", time.Since(start)).Msg("indexing run complete")
}
