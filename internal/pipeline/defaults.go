// Package pipeline contains the artifact-level logic of the orchestrator:
// reference selection, normalization, generation, and failure classification.
package pipeline

import (
	"fmt"

	"pipeforge/pkg/models"
)

// Stage and variable names every pipeline must end up with.
const (
	StageBuild  = "build"
	StageTest   = "test"
	StageScan   = "scan"
	StageNotify = "notify"
	StageLearn  = "learn"

	// CallbackVar points pipeline jobs back at this orchestrator.
	CallbackVar = "ORCHESTRATOR_CALLBACK_URL"
)

// languageDefaults maps a language to its built-in minimal template commands.
type languageDefault struct {
	image        string
	buildScript  string
	testScript   string
	runtimeImage string
}

var languageDefaults = map[string]languageDefault{
	"go": {
		image:        "golang:1.25",
		buildScript:  "go build ./...",
		testScript:   "go test ./...",
		runtimeImage: "gcr.io/distroless/base-debian12",
	},
	"python": {
		image:        "python:3.12-slim",
		buildScript:  "pip install -r requirements.txt",
		testScript:   "python -m pytest",
		runtimeImage: "python:3.12-slim",
	},
	"javascript": {
		image:        "node:22-alpine",
		buildScript:  "npm ci && npm run build --if-present",
		testScript:   "npm test --if-present",
		runtimeImage: "node:22-alpine",
	},
	"java": {
		image:        "maven:3.9-eclipse-temurin-21",
		buildScript:  "mvn -B package -DskipTests",
		testScript:   "mvn -B test",
		runtimeImage: "eclipse-temurin:21-jre",
	},
	"rust": {
		image:        "rust:1.82",
		buildScript:  "cargo build --release",
		testScript:   "cargo test",
		runtimeImage: "debian:bookworm-slim",
	},
}

// polyglotDefault covers repositories whose language the analyzer could not
// recognize. The selector falls back to it rather than failing.
var polyglotDefault = languageDefault{
	image:        "docker.io/library/ubuntu:24.04",
	buildScript:  "echo 'no build step detected'",
	testScript:   "echo 'no test step detected'",
	runtimeImage: "docker.io/library/ubuntu:24.04",
}

// DefaultTemplate returns the built-in minimal artifact pair for a language.
// Unrecognized languages get the generic polyglot template, so this function
// never fails.
func DefaultTemplate(language string) models.ArtifactContent {
	d, ok := languageDefaults[language]
	if !ok {
		d = polyglotDefault
	}
	return models.ArtifactContent{
		PipelineDefinition:   defaultPipeline(d),
		ImageBuildDefinition: defaultImageBuild(d),
	}
}

// KnownLanguage reports whether a language has a dedicated built-in template.
func KnownLanguage(language string) bool {
	_, ok := languageDefaults[language]
	return ok
}

func defaultPipeline(d languageDefault) string {
	return fmt.Sprintf(`stages:
  - %s
  - %s
  - %s
  - %s
  - %s

variables:
  %s: ""

build:
  stage: %s
  image: %s
  script:
    - %s

test:
  stage: %s
  image: %s
  script:
    - %s

scan:
  stage: %s
  image: aquasec/trivy:latest
  script:
    - trivy fs --exit-code 0 .
  allow_failure: true

notify:
  stage: %s
  script:
    - echo "pipeline finished for $CI_COMMIT_REF_NAME"
  when: always

learn:
  stage: %s
  script:
    - 'curl -fsS -X POST "$%s/api/v1/learn" -H "Content-Type: application/json" -d "{\"execution_id\": \"$CI_PIPELINE_ID\"}"'
  when: on_success
`,
		StageBuild, StageTest, StageScan, StageNotify, StageLearn,
		CallbackVar,
		StageBuild, d.image, d.buildScript,
		StageTest, d.image, d.testScript,
		StageScan,
		StageNotify,
		StageLearn, CallbackVar)
}

func defaultImageBuild(d languageDefault) string {
	return fmt.Sprintf(`FROM %s AS build
WORKDIR /src
COPY . .
RUN %s

FROM %s
WORKDIR /app
COPY --from=build /src /app
CMD ["/app/entrypoint"]
`, d.image, d.buildScript, d.runtimeImage)
}
