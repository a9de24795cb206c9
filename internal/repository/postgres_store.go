package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"pipeforge/pkg/models"
)

// PostgresTemplateStore is a PostgreSQL implementation of the TemplateStore
// interface. Templates carry an optional pgvector embedding used for
// similarity retrieval.
type PostgresTemplateStore struct {
	db *pgxpool.Pool
}

// NewPostgresTemplateStore creates a new PostgresTemplateStore.
func NewPostgresTemplateStore(db *pgxpool.Pool) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

// QueryTemplates returns templates for a language, optionally narrowed by framework.
func (s *PostgresTemplateStore) QueryTemplates(ctx context.Context, language, framework string, limit int) ([]*models.Template, error) {
	var rows pgx.Rows
	var err error
	if framework == "" {
		rows, err = s.db.Query(ctx,
			`SELECT id, language, framework, pipeline_definition, image_build_definition, created_at
			 FROM templates WHERE language = $1 ORDER BY created_at DESC LIMIT $2`,
			language, limit)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT id, language, framework, pipeline_definition, image_build_definition, created_at
			 FROM templates WHERE language = $1 AND framework = $2 ORDER BY created_at DESC LIMIT $3`,
			language, framework, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTemplates(rows)
}

// SearchSimilarTemplates ranks templates by cosine distance to the given embedding.
func (s *PostgresTemplateStore) SearchSimilarTemplates(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, language, framework, pipeline_definition, image_build_definition, created_at
		 FROM templates WHERE embedding IS NOT NULL ORDER BY embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTemplates(rows)
}

// UpsertTemplate inserts or replaces a template by ID. Templates without an
// embedding are stored with a NULL vector and excluded from similarity search.
func (s *PostgresTemplateStore) UpsertTemplate(ctx context.Context, tmpl *models.Template) error {
	var embedding any
	if len(tmpl.Embedding.Slice()) > 0 {
		embedding = tmpl.Embedding
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO templates (id, language, framework, pipeline_definition, image_build_definition, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO UPDATE SET
		   language = EXCLUDED.language,
		   framework = EXCLUDED.framework,
		   pipeline_definition = EXCLUDED.pipeline_definition,
		   image_build_definition = EXCLUDED.image_build_definition,
		   embedding = EXCLUDED.embedding`,
		tmpl.ID, tmpl.Language, tmpl.Framework,
		tmpl.Content.PipelineDefinition, tmpl.Content.ImageBuildDefinition, embedding)
	return err
}

// QueryLearnedConfigs returns learned configs for a language/framework pair, newest first.
func (s *PostgresTemplateStore) QueryLearnedConfigs(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, language, framework, pipeline_id, duration_seconds, stages_passed_count,
		        pipeline_definition, image_build_definition, created_at
		 FROM learned_configs WHERE language = $1 AND framework = $2
		 ORDER BY created_at DESC LIMIT $3`,
		language, framework, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.LearnedConfig
	for rows.Next() {
		var cfg models.LearnedConfig
		err := rows.Scan(&cfg.ID, &cfg.Language, &cfg.Framework, &cfg.PipelineID,
			&cfg.DurationSeconds, &cfg.StagesPassed,
			&cfg.Content.PipelineDefinition, &cfg.Content.ImageBuildDefinition, &cfg.CreatedAt)
		if err != nil {
			return nil, err
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// UpsertLearnedConfig inserts a learned config. The ID is content-derived, so
// ON CONFLICT DO NOTHING makes re-storage of identical content a no-op.
func (s *PostgresTemplateStore) UpsertLearnedConfig(ctx context.Context, cfg *models.LearnedConfig) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO learned_configs (id, language, framework, pipeline_id, duration_seconds,
		   stages_passed_count, pipeline_definition, image_build_definition, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (id) DO NOTHING`,
		cfg.ID, cfg.Language, cfg.Framework, cfg.PipelineID, cfg.DurationSeconds,
		cfg.StagesPassed, cfg.Content.PipelineDefinition, cfg.Content.ImageBuildDefinition)
	return err
}

// Ping checks database connectivity.
func (s *PostgresTemplateStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanTemplates(rows pgx.Rows) ([]*models.Template, error) {
	var templates []*models.Template
	for rows.Next() {
		var tmpl models.Template
		err := rows.Scan(&tmpl.ID, &tmpl.Language, &tmpl.Framework,
			&tmpl.Content.PipelineDefinition, &tmpl.Content.ImageBuildDefinition, &tmpl.CreatedAt)
		if err != nil {
			return nil, err
		}
		templates = append(templates, &tmpl)
	}
	return templates, rows.Err()
}
