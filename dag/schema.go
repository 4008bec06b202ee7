package dag

import (
	"fmt"

	"github.com/kbukum/dagflow/validation"
)

// CheckSchema checks field-level constraints: name length, semver version,
// non-empty triggers and nodes, retry and backoff bounds, uses/run
// exclusivity, gate conditions and id uniqueness. Structural checks belong
// to Validate.
func CheckSchema(g *Graph) error {
	v := validation.New()
	v.Merge(validation.Struct(g))

	for i, t := range g.Triggers {
		field := fmt.Sprintf("triggers[%d]", i)
		if t.Kind == TriggerSchedule {
			v.Custom(t.Cron != "", field+".cron", "is required for schedule triggers")
		} else {
			v.Custom(t.Cron == "", field+".cron", "only applies to schedule triggers")
		}
		v.Custom(t.Kind == TriggerPush || len(t.Paths) == 0, field+".paths", "only applies to push triggers")
	}

	seen := make(map[NodeID]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n == nil {
			continue
		}
		field := fmt.Sprintf("nodes[%d]", i)
		if j, dup := seen[n.NodeID()]; dup {
			v.AddError(field+".id", fmt.Sprintf("duplicates nodes[%d].id %q", j, n.NodeID()))
		} else {
			seen[n.NodeID()] = i
		}
		if t, ok := n.(*TaskNode); ok {
			v.ExactlyOne(field, []string{"uses", "run"}, t.Uses, t.Run)
		}
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
