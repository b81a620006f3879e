// Package job turns a configuration into an executable plan and runs it.
// The planner decides which tasks still need to run based on the complete
// artifacts already on disk; the builder assembles the pipelines; serial
// and parallel jobs execute them.
package job

import (
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Plan lists the tasks each stage still needs to run, in canonical order.
type Plan struct {
	Stage1 []artifact.Task
	Stage2 []artifact.Task
}

// Has reports whether the plan contains a task in either stage.
func (p *Plan) Has(task artifact.Task) bool {
	for _, t := range p.Stage1 {
		if t == task {
			return true
		}
	}
	for _, t := range p.Stage2 {
		if t == task {
			return true
		}
	}
	return false
}

// Empty reports whether nothing is planned.
func (p *Plan) Empty() bool {
	return len(p.Stage1) == 0 && len(p.Stage2) == 0
}

// BuildPlan decides which tasks run. A task is planned when it is
// configured, its artifact is not complete and no downstream artifact
// already covers it.
func BuildPlan(conf *config.Config) (*Plan, error) {
	plan := &Plan{}
	complete := func(out *config.Output) bool {
		return out != nil && out.Enabled && artifact.IsComplete(out.Path)
	}

	if conf.Run.Stage1 == nil || conf.Run.Stage1.Enabled {
		dbComplete := conf.Documents != nil && artifact.IsComplete(conf.Documents.DB.Path)
		indexComplete := conf.Index != nil && complete(conf.Index.Output)
		if conf.Documents != nil && !dbComplete && !indexComplete {
			plan.Stage1 = append(plan.Stage1, artifact.Documents)
		}
		if conf.Index != nil && !indexComplete {
			plan.Stage1 = append(plan.Stage1, artifact.Index)
		}
	}

	if conf.Run.Stage2 == nil || conf.Run.Stage2.Enabled {
		topicsComplete := conf.Topics != nil && complete(conf.Topics.Output)
		queriesComplete := conf.Queries != nil && complete(conf.Queries.Output)
		retrieveComplete := conf.Retrieve != nil && complete(conf.Retrieve.Output)
		if conf.Topics != nil && !topicsComplete && !queriesComplete && !retrieveComplete {
			plan.Stage2 = append(plan.Stage2, artifact.Topics)
		}
		if conf.Queries != nil && !queriesComplete && !retrieveComplete {
			plan.Stage2 = append(plan.Stage2, artifact.Queries)
		}
		if conf.Retrieve != nil && !retrieveComplete {
			plan.Stage2 = append(plan.Stage2, artifact.Retrieve)
		}
		if conf.Rerank != nil {
			if complete(conf.Rerank.Output) {
				return nil, internalerr.Config("Rerank is already complete. Delete its output directory to rerun reranking.")
			}
			plan.Stage2 = append(plan.Stage2, artifact.Rerank)
		}
		if conf.Score != nil {
			if !plan.Has(artifact.Retrieve) && !plan.Has(artifact.Rerank) {
				return nil, internalerr.Config("Scorer can only run if retrieve or rerank is in the plan")
			}
			plan.Stage2 = append(plan.Stage2, artifact.Score)
		}
	}

	if plan.Empty() {
		return nil, internalerr.Config("No tasks are configured to run")
	}
	if err := checkOrder(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// checkOrder verifies the planned tasks form a subsequence of the
// canonical task order.
func checkOrder(plan *Plan) error {
	planned := append(append([]artifact.Task{}, plan.Stage1...), plan.Stage2...)
	order := artifact.Order()
	i := 0
	for _, task := range planned {
		for i < len(order) && order[i] != task {
			i++
		}
		if i == len(order) {
			return internalerr.Data("planned tasks are out of order: %v", planned)
		}
		i++
	}
	return nil
}
