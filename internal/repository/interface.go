package repository

import (
	"context"

	"pipeforge/pkg/models"
)

// TemplateStore is the typed query/upsert interface over the template and
// learned-config collections. Reads and upserts are idempotent; callers need
// no locking.
type TemplateStore interface {
	// QueryTemplates returns templates for a language, optionally narrowed by
	// framework. An empty framework matches any framework.
	QueryTemplates(ctx context.Context, language, framework string, limit int) ([]*models.Template, error)

	// SearchSimilarTemplates ranks templates by embedding distance.
	SearchSimilarTemplates(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error)

	// UpsertTemplate inserts or replaces a template by ID.
	UpsertTemplate(ctx context.Context, tmpl *models.Template) error

	// QueryLearnedConfigs returns learned configs for a language/framework pair,
	// newest first.
	QueryLearnedConfigs(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error)

	// UpsertLearnedConfig inserts a learned config. Re-inserting an existing ID
	// is a no-op, which makes duplicate-content writes idempotent.
	UpsertLearnedConfig(ctx context.Context, cfg *models.LearnedConfig) error

	Ping(ctx context.Context) error
}
