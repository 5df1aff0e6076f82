package enrich

import (
	"fmt"
	"strings"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
)

// Validate is the last gate before a result is cached or served. It checks
// the semantic invariants the JSON schema cannot express. A failure here is
// fatal for the request; the result must never be persisted.
func Validate(result *etym.EtymologyResult) error {
	var problems []string

	if strings.TrimSpace(result.Word) == "" {
		problems = append(problems, "empty word")
	}
	if strings.TrimSpace(result.Definition) == "" {
		problems = append(problems, "empty definition")
	}
	if len(result.Graph.Branches) == 0 {
		problems = append(problems, "graph has no branches")
	}
	for i, branch := range result.Graph.Branches {
		if len(branch.Stages) == 0 {
			problems = append(problems, fmt.Sprintf("branch %d (%s) has no stages", i, branch.Root))
		}
		problems = append(problems, checkStages(fmt.Sprintf("branch %d", i), branch.Stages)...)
	}
	if len(result.Graph.Branches) > 1 && result.Graph.MergePoint == nil && len(result.Graph.ConvergencePoints) == 0 {
		problems = append(problems, "multiple branches but no merge or convergence point")
	}
	if result.Graph.MergePoint != nil {
		problems = append(problems, checkStages("mergePoint", []etym.Stage{*result.Graph.MergePoint})...)
	}
	problems = append(problems, checkStages("postMerge", result.Graph.PostMerge)...)

	if len(problems) == 0 {
		return nil
	}
	return etymerrors.New(etymerrors.ErrCodeSchemaValidation,
		fmt.Sprintf("result failed validation: %s", strings.Join(problems, "; "))).
		WithUserMessage("the synthesized etymology was inconsistent, please retry")
}

func checkStages(where string, stages []etym.Stage) []string {
	var problems []string
	for i, stage := range stages {
		if strings.TrimSpace(stage.Language) == "" {
			problems = append(problems, fmt.Sprintf("%s stage %d: empty language", where, i))
		}
		if strings.TrimSpace(stage.Form) == "" {
			problems = append(problems, fmt.Sprintf("%s stage %d: empty form", where, i))
		}
		if strings.HasPrefix(stage.Form, "*") && !stage.Reconstructed {
			problems = append(problems, fmt.Sprintf("%s stage %d: starred form not marked reconstructed", where, i))
		}
	}
	return problems
}
