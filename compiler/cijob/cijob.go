// Package cijob compiles a graph into a CI job graph: one job per task,
// with needs derived from task ancestors and if taken from incoming gates.
package cijob

import (
	"fmt"
	"maps"
	"strings"

	"github.com/kbukum/dagflow/compiler"
	"github.com/kbukum/dagflow/dag"
)

// RunsOn is the runner label of every job.
const RunsOn = "ubuntu-latest"

// Workflow is the compiled target.
type Workflow struct {
	Name string            `yaml:"name" json:"name"`
	On   On                `yaml:"on" json:"on"`
	Env  map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Jobs map[string]Job    `yaml:"jobs" json:"jobs"`
}

// On maps triggers. Each trigger kind is a separate key.
type On struct {
	Push        *Push       `yaml:"push,omitempty" json:"push,omitempty"`
	PullRequest *Branches   `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`
	Schedule    []CronEntry `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

type Push struct {
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Paths    []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}

type Branches struct {
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
}

type CronEntry struct {
	Cron string `yaml:"cron" json:"cron"`
}

// Job is one task.
type Job struct {
	RunsOn string   `yaml:"runs-on" json:"runs-on"`
	Needs  []string `yaml:"needs,omitempty" json:"needs,omitempty"`
	If     string   `yaml:"if,omitempty" json:"if,omitempty"`
	Steps  []Step   `yaml:"steps" json:"steps"`
}

type Step struct {
	Name string            `yaml:"name" json:"name"`
	Uses string            `yaml:"uses,omitempty" json:"uses,omitempty"`
	Run  string            `yaml:"run,omitempty" json:"run,omitempty"`
	Env  map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// SecretRef is the placeholder a secret name compiles to.
func SecretRef(name string) string { return fmt.Sprintf("${{ secrets.%s }}", name) }

// Compile translates g. The graph defaults env becomes the workflow env.
func Compile(g *dag.Graph) (*Workflow, error) {
	on, err := compileTriggers(g.Triggers)
	if err != nil {
		return nil, err
	}
	wf := &Workflow{
		Name: g.Name,
		On:   on,
		Jobs: make(map[string]Job),
	}
	if g.Defaults != nil && len(g.Defaults.Env) > 0 {
		wf.Env = maps.Clone(g.Defaults.Env)
	}

	idx := g.Index()
	for _, n := range g.Nodes {
		task, ok := n.(*dag.TaskNode)
		if !ok {
			continue
		}
		job, err := compileJob(idx, task)
		if err != nil {
			return nil, err
		}
		wf.Jobs[string(task.ID)] = job
	}
	return wf, nil
}

func compileTriggers(triggers []dag.Trigger) (On, error) {
	var on On
	for _, t := range triggers {
		switch t.Kind {
		case dag.TriggerPush:
			if on.Push == nil {
				on.Push = &Push{}
			}
			on.Push.Branches = append(on.Push.Branches, t.Branches...)
			on.Push.Paths = append(on.Push.Paths, t.Paths...)
		case dag.TriggerPullRequest:
			if on.PullRequest == nil {
				on.PullRequest = &Branches{}
			}
			on.PullRequest.Branches = append(on.PullRequest.Branches, t.Branches...)
		case dag.TriggerSchedule:
			on.Schedule = append(on.Schedule, CronEntry{Cron: t.Cron})
		default:
			return On{}, compiler.Errorf(compiler.PhaseCompilation, string(t.Kind), "unsupported trigger kind %q", t.Kind)
		}
	}
	return on, nil
}

func compileJob(idx *dag.Index, task *dag.TaskNode) (Job, error) {
	if (task.Uses == "") == (task.Run == "") {
		return Job{}, compiler.Errorf(compiler.PhaseCompilation, string(task.ID),
			"task %q must set exactly one of uses or run", task.ID)
	}

	step := Step{Name: string(task.ID), Uses: task.Uses, Run: task.Run}
	if len(task.Env) > 0 || len(task.Secrets) > 0 {
		step.Env = make(map[string]string, len(task.Env)+len(task.Secrets))
		maps.Copy(step.Env, task.Env)
		for _, name := range task.Secrets {
			step.Env[name] = SecretRef(name)
		}
	}

	return Job{
		RunsOn: RunsOn,
		Needs:  needs(idx, task.ID),
		If:     condition(idx, task.ID),
		Steps:  []Step{step},
	}, nil
}

// needs walks incoming edges backwards, through non-task nodes, and returns
// the task ancestors in first-discovery order.
func needs(idx *dag.Index, id dag.NodeID) []string {
	var out []string
	seen := make(map[dag.NodeID]bool)
	visited := make(map[dag.NodeID]bool)

	var walk func(dag.NodeID)
	walk = func(id dag.NodeID) {
		for _, e := range idx.Incoming(id) {
			src, ok := idx.Node(e.From)
			if !ok {
				continue
			}
			if src.Kind() == dag.KindTask {
				if !seen[e.From] {
					seen[e.From] = true
					out = append(out, string(e.From))
				}
				continue
			}
			if visited[e.From] {
				continue
			}
			visited[e.From] = true
			walk(e.From)
		}
	}
	walk(id)
	return out
}

// condition ANDs the conditions of every gate directly before id.
func condition(idx *dag.Index, id dag.NodeID) string {
	var conds []string
	for _, e := range idx.Incoming(id) {
		src, ok := idx.Node(e.From)
		if !ok {
			continue
		}
		if gate, ok := src.(*dag.GateNode); ok {
			conds = append(conds, gate.Condition)
		}
	}
	switch len(conds) {
	case 0:
		return ""
	case 1:
		return conds[0]
	}
	for i, c := range conds {
		conds[i] = "(" + c + ")"
	}
	return strings.Join(conds, " && ")
}
