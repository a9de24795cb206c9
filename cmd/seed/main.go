package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"pipeforge/internal/config"
	"pipeforge/internal/logging"
	"pipeforge/internal/pipeline"
	"pipeforge/internal/repository"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// Seeds the template collection with the built-in per-language templates so
// tier-2/3 lookups have data before anything has been learned.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresTemplateStore(pool)
	modelClient := services.NewHTTPModelClient(cfg.Model.URL, time.Duration(cfg.Model.TimeoutSeconds)*time.Second)

	languages := []string{"go", "python", "javascript", "java", "rust"}
	for _, lang := range languages {
		content := pipeline.DefaultTemplate(lang)

		tmpl := &models.Template{
			ID:        fmt.Sprintf("builtin-%s-generic", lang),
			Language:  lang,
			Framework: "generic",
			Content:   content,
		}

		// Embeddings are an enrichment; seeding proceeds without them when
		// the model sidecar is unreachable.
		embedding, err := modelClient.GetEmbedding(ctx, fmt.Sprintf("%s generic CI/CD pipeline", lang))
		if err != nil {
			logger.Warn("Skipping embedding for template", "language", lang, "error", err)
		} else {
			tmpl.Embedding = pgvector.NewVector(embedding)
		}

		if err := store.UpsertTemplate(ctx, tmpl); err != nil {
			log.Printf("Failed to seed template %s: %v", tmpl.ID, err)
		} else {
			logger.Info("Seeded template", "id", tmpl.ID, "language", lang)
		}
	}
	logger.Info("Seeding complete!")
}
