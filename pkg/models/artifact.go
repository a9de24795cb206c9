// Package models defines the domain models for the pipeline orchestrator
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// ArtifactSource records where a pipeline artifact came from
type ArtifactSource string

const (
	SourceLearned         ArtifactSource = "learned"
	SourceExactTemplate   ArtifactSource = "exact_template"
	SourcePartialTemplate ArtifactSource = "partial_template"
	SourceGenerated       ArtifactSource = "generated"
)

// ArtifactContent is the pair of text blobs that make up a deployable pipeline:
// the CI pipeline definition and the image build definition.
type ArtifactContent struct {
	PipelineDefinition   string `json:"pipeline_definition"`
	ImageBuildDefinition string `json:"image_build_definition"`
}

// IsComplete reports whether both blobs are present.
func (c ArtifactContent) IsComplete() bool {
	return c.PipelineDefinition != "" && c.ImageBuildDefinition != ""
}

// PipelineArtifact is an ArtifactContent plus provenance metadata. One workflow
// owns one artifact at a time; it is only replaced wholesale, never shared.
type PipelineArtifact struct {
	Content    ArtifactContent `json:"content"`
	Source     ArtifactSource  `json:"source"`
	TemplateID string          `json:"template_id,omitempty"`
}

// Template is a pre-authored pipeline/image-build pair tagged with
// language/framework metadata, stored in the template collection.
type Template struct {
	ID        string          `json:"id" db:"id"`
	Language  string          `json:"language" db:"language"`
	Framework string          `json:"framework" db:"framework"`
	Content   ArtifactContent `json:"content"`

	// Vector embedding for similarity retrieval (not exposed in JSON)
	Embedding pgvector.Vector `json:"-" db:"embedding"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LearnedConfig is a template captured automatically from a previously
// successful execution. Entries are never updated in place; identical content
// maps to the same ID so re-storage is idempotent.
type LearnedConfig struct {
	ID              string          `json:"id" db:"id"`
	Language        string          `json:"language" db:"language"`
	Framework       string          `json:"framework" db:"framework"`
	PipelineID      string          `json:"pipeline_id" db:"pipeline_id"`
	DurationSeconds float64         `json:"duration_seconds" db:"duration_seconds"`
	StagesPassed    int             `json:"stages_passed_count" db:"stages_passed_count"`
	Content         ArtifactContent `json:"content"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// learnedIDHashLen is the number of hex characters of the content hash kept in
// a learned-config ID.
const learnedIDHashLen = 16

// LearnedConfigID derives the deterministic store ID for a learned config:
// language, framework and a truncated hash of the artifact content. Two
// byte-identical artifacts for the same language/framework always map to the
// same ID.
func LearnedConfigID(language, framework string, content ArtifactContent) string {
	sum := sha256.Sum256([]byte(content.PipelineDefinition + "\n" + content.ImageBuildDefinition))
	return fmt.Sprintf("%s-%s-%s", language, framework, hex.EncodeToString(sum[:])[:learnedIDHashLen])
}
