package pipeline

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPipeline marks a pipeline definition that failed syntactic
// validation.
var ErrInvalidPipeline = errors.New("invalid pipeline definition")

// ValidatePipeline checks that a pipeline definition parses as YAML and
// declares a non-empty stage list. It is deliberately shallow: deep semantic
// validation belongs to the CI system itself.
func ValidatePipeline(definition string) error {
	if definition == "" {
		return fmt.Errorf("%w: empty definition", ErrInvalidPipeline)
	}
	var doc struct {
		Stages []string `yaml:"stages"`
	}
	if err := yaml.Unmarshal([]byte(definition), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}
	if len(doc.Stages) == 0 {
		return fmt.Errorf("%w: no stages declared", ErrInvalidPipeline)
	}
	return nil
}
