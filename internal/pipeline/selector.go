package pipeline

import (
	"context"

	"pipeforge/internal/repository"
	"pipeforge/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Selection is the tagged result of the four-tier reference lookup. Source
// tells the Generation Coordinator which path to take; for partial matches one
// of the content blobs may be empty.
type Selection struct {
	Source     models.ArtifactSource
	Content    models.ArtifactContent
	TemplateID string
}

// Selector implements the priority-ordered reference lookup: learned configs,
// exact template match, partial template match, built-in default.
type Selector struct {
	store          repository.TemplateStore
	logger         Logger
	candidateLimit int
}

// NewSelector creates a new Selector. candidateLimit bounds how many learned
// configs are fetched per lookup.
func NewSelector(store repository.TemplateStore, logger Logger, candidateLimit int) *Selector {
	if candidateLimit <= 0 {
		candidateLimit = 10
	}
	return &Selector{store: store, logger: logger, candidateLimit: candidateLimit}
}

// Select tries each tier in strict priority order and returns the first hit.
// Store failures and empty results fall through to the next tier; the built-in
// default guarantees a usable result for any language.
func (s *Selector) Select(ctx context.Context, language, framework string) (*Selection, error) {
	if sel := s.selectLearned(ctx, language, framework); sel != nil {
		return sel, nil
	}
	if sel := s.selectExact(ctx, language, framework); sel != nil {
		return sel, nil
	}
	if sel := s.selectPartial(ctx, language, framework); sel != nil {
		return sel, nil
	}
	s.logger.Info("no stored reference found, using built-in template",
		"language", language, "dedicated_template", KnownLanguage(language))
	return &Selection{
		Source:  models.SourceGenerated,
		Content: DefaultTemplate(language),
	}, nil
}

func (s *Selector) selectLearned(ctx context.Context, language, framework string) *Selection {
	configs, err := s.store.QueryLearnedConfigs(ctx, language, framework, s.candidateLimit)
	if err != nil {
		s.logger.Warn("learned-config lookup failed, falling through", "language", language, "framework", framework, "error", err)
		return nil
	}
	best := bestLearned(configs)
	if best == nil {
		return nil
	}
	return &Selection{
		Source:     models.SourceLearned,
		Content:    best.Content,
		TemplateID: best.ID,
	}
}

// bestLearned picks the candidate maximizing stages passed, breaking ties with
// the shorter duration. The comparator is deterministic on purpose.
func bestLearned(configs []*models.LearnedConfig) *models.LearnedConfig {
	var best *models.LearnedConfig
	for _, cfg := range configs {
		if !cfg.Content.IsComplete() {
			continue
		}
		if best == nil ||
			cfg.StagesPassed > best.StagesPassed ||
			(cfg.StagesPassed == best.StagesPassed && cfg.DurationSeconds < best.DurationSeconds) {
			best = cfg
		}
	}
	return best
}

func (s *Selector) selectExact(ctx context.Context, language, framework string) *Selection {
	templates, err := s.store.QueryTemplates(ctx, language, framework, s.candidateLimit)
	if err != nil {
		s.logger.Warn("template lookup failed, falling through", "language", language, "framework", framework, "error", err)
		return nil
	}
	for _, tmpl := range templates {
		if tmpl.Content.IsComplete() {
			return &Selection{
				Source:     models.SourceExactTemplate,
				Content:    tmpl.Content,
				TemplateID: tmpl.ID,
			}
		}
	}
	return nil
}

// selectPartial accepts templates that supply only one of the two artifacts,
// first for the exact language/framework pair, then language-only.
func (s *Selector) selectPartial(ctx context.Context, language, framework string) *Selection {
	for _, fw := range []string{framework, ""} {
		templates, err := s.store.QueryTemplates(ctx, language, fw, s.candidateLimit)
		if err != nil {
			s.logger.Warn("partial template lookup failed, falling through", "language", language, "framework", fw, "error", err)
			continue
		}
		for _, tmpl := range templates {
			if tmpl.Content.PipelineDefinition != "" || tmpl.Content.ImageBuildDefinition != "" {
				return &Selection{
					Source:     models.SourcePartialTemplate,
					Content:    tmpl.Content,
					TemplateID: tmpl.ID,
				}
			}
		}
	}
	return nil
}
