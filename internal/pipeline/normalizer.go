package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"pipeforge/pkg/models"
)

// learnScript is the job body wired into pipelines that lack the learning
// stage. It reports the finished execution back to the orchestrator.
const learnScript = `curl -fsS -X POST "$` + CallbackVar + `/api/v1/learn" -H "Content-Type: application/json" -d "{\"execution_id\": \"$CI_PIPELINE_ID\"}"`

// Normalizer guarantees the structural invariants every pipeline definition
// must satisfy regardless of where it came from: the learning stage and its
// job exist, and the orchestrator callback variable is present.
type Normalizer struct {
	callbackURL string
}

// NewNormalizer creates a Normalizer that injects the given callback address.
func NewNormalizer(callbackURL string) *Normalizer {
	return &Normalizer{callbackURL: callbackURL}
}

// Normalize returns a structurally fixed copy of the artifact. It is pure and
// idempotent: normalizing an already-normalized artifact changes nothing.
func (n *Normalizer) Normalize(artifact models.PipelineArtifact) (models.PipelineArtifact, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(artifact.Content.PipelineDefinition), &root); err != nil {
		return artifact, fmt.Errorf("pipeline definition is not valid YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return artifact, fmt.Errorf("pipeline definition is not a YAML mapping")
	}
	doc := root.Content[0]

	n.ensureLearnStage(doc)
	n.ensureLearnJob(doc)
	n.ensureCallbackVariable(doc)

	out, err := yaml.Marshal(&root)
	if err != nil {
		return artifact, fmt.Errorf("failed to serialize pipeline definition: %w", err)
	}

	normalized := artifact
	normalized.Content.PipelineDefinition = string(out)
	return normalized, nil
}

// ensureLearnStage makes sure the stage list contains the learning stage,
// inserted immediately after the notification stage when one exists.
func (n *Normalizer) ensureLearnStage(doc *yaml.Node) {
	stages := mapValue(doc, "stages")
	if stages == nil {
		stages = &yaml.Node{Kind: yaml.SequenceNode}
		appendMapEntry(doc, "stages", stages)
	}
	notifyIdx := -1
	for i, item := range stages.Content {
		if item.Value == StageLearn {
			return
		}
		if item.Value == StageNotify {
			notifyIdx = i
		}
	}
	learn := scalarNode(StageLearn)
	if notifyIdx >= 0 {
		rest := append([]*yaml.Node{learn}, stages.Content[notifyIdx+1:]...)
		stages.Content = append(stages.Content[:notifyIdx+1], rest...)
	} else {
		stages.Content = append(stages.Content, learn)
	}
}

// ensureLearnJob adds the learning job definition when absent.
func (n *Normalizer) ensureLearnJob(doc *yaml.Node) {
	if mapValue(doc, StageLearn) != nil {
		return
	}
	job := &yaml.Node{Kind: yaml.MappingNode}
	appendMapEntry(job, "stage", scalarNode(StageLearn))
	script := &yaml.Node{Kind: yaml.SequenceNode}
	cmd := scalarNode(learnScript)
	cmd.Style = yaml.SingleQuotedStyle
	script.Content = append(script.Content, cmd)
	appendMapEntry(job, "script", script)
	appendMapEntry(job, "when", scalarNode("on_success"))
	appendMapEntry(doc, StageLearn, job)
}

// ensureCallbackVariable adds the orchestrator callback variable when absent.
// An existing value, even an empty one, is left alone.
func (n *Normalizer) ensureCallbackVariable(doc *yaml.Node) {
	variables := mapValue(doc, "variables")
	if variables == nil {
		variables = &yaml.Node{Kind: yaml.MappingNode}
		appendMapEntry(doc, "variables", variables)
	}
	if mapValue(variables, CallbackVar) != nil {
		return
	}
	val := scalarNode(n.callbackURL)
	val.Style = yaml.DoubleQuotedStyle
	appendMapEntry(variables, CallbackVar, val)
}

// mapValue returns the value node for a key in a mapping node, or nil.
func mapValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func appendMapEntry(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content, scalarNode(key), value)
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
