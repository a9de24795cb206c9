package pipeline

import (
	"regexp"

	"pipeforge/pkg/models"
)

// classifierRule maps a log pattern to an error class. The table is ordered;
// the first matching rule wins.
type classifierRule struct {
	pattern *regexp.Regexp
	class   models.ErrorClass
}

// classifierTable is static data compiled once at startup. New failure modes
// are added here, not in the healing loop.
var classifierTable = []classifierRule{
	{regexp.MustCompile(`(?i)manifest for .* not found|manifest unknown|pull access denied|no such image|image not found|error pulling image`), models.ErrClassMissingImage},
	{regexp.MustCompile(`(?i)tls handshake|certificate (?:verify|is not valid)|connection refused|connection reset|i/o timeout|could not resolve|no route to host|network is unreachable|temporary failure in name resolution`), models.ErrClassNetwork},
	{regexp.MustCompile(`(?i)permission denied|access denied|unauthorized|401 unauthorized|403 forbidden|insufficient.+(?:scope|permission)`), models.ErrClassPermission},
	{regexp.MustCompile(`(?i)timed? ?out|deadline exceeded|execution took longer|job exceeded maximum`), models.ErrClassTimeout},
	{regexp.MustCompile(`(?i)syntax error|yaml: |could not parse|invalid configuration|unexpected token|undefined (?:variable|reference)`), models.ErrClassSyntax},
	{regexp.MustCompile(`(?i)no matching files|no files to upload|artifacts? .*not found|could not find artifact`), models.ErrClassArtifactMissing},
}

// ClassifyFailure matches failure log text against the classifier table and
// returns the first matching class, or unclassified when nothing matches.
func ClassifyFailure(logText string) models.ErrorClass {
	for _, rule := range classifierTable {
		if rule.pattern.MatchString(logText) {
			return rule.class
		}
	}
	return models.ErrClassUnclassified
}
