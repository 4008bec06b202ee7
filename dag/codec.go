package dag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dagflow/errors"
)

// graphDoc is the persisted shape of a Graph. The node discriminant is
// written as _tag; kind is accepted on decode.
type graphDoc struct {
	Name     string       `json:"name" yaml:"name"`
	Version  string       `json:"version" yaml:"version"`
	Triggers []triggerDoc `json:"triggers" yaml:"triggers"`
	Defaults *defaultsDoc `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Nodes    []nodeDoc    `json:"nodes" yaml:"nodes"`
	Edges    []edgeDoc    `json:"edges" yaml:"edges"`
}

type triggerDoc struct {
	Tag      string   `json:"_tag,omitempty" yaml:"_tag,omitempty"`
	Kind     string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`
	Paths    []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Cron     string   `json:"cron,omitempty" yaml:"cron,omitempty"`
}

type defaultsDoc struct {
	Retry   *retryDoc         `json:"retry,omitempty" yaml:"retry,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout *durationMs       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type retryDoc struct {
	MaxAttempts int         `json:"maxAttempts" yaml:"maxAttempts"`
	Backoff     *backoffDoc `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

type backoffDoc struct {
	Kind        string  `json:"kind" yaml:"kind"`
	BaseDelayMs int64   `json:"baseDelayMs" yaml:"baseDelayMs"`
	Factor      float64 `json:"factor" yaml:"factor"`
	MaxDelayMs  int64   `json:"maxDelayMs" yaml:"maxDelayMs"`
}

type nodeDoc struct {
	Tag       string            `json:"_tag,omitempty" yaml:"_tag,omitempty"`
	Kind      string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID        string            `json:"id" yaml:"id"`
	Uses      string            `json:"uses,omitempty" yaml:"uses,omitempty"`
	Run       string            `json:"run,omitempty" yaml:"run,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Secrets   []string          `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Retry     *retryDoc         `json:"retry,omitempty" yaml:"retry,omitempty"`
	Condition string            `json:"condition,omitempty" yaml:"condition,omitempty"`
	FormID    string            `json:"formId,omitempty" yaml:"formId,omitempty"`
	Timeout   *durationMs       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type edgeDoc struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// durationMs is persisted as integer milliseconds. Strings such as "30s"
// are accepted on decode.
type durationMs int64

func (d durationMs) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

func newDurationMs(d time.Duration) *durationMs {
	if d == 0 {
		return nil
	}
	ms := durationMs(d.Milliseconds())
	return &ms
}

func (d *durationMs) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be milliseconds or a duration string: %w", err)
	}
	*d = durationMs(n)
	return nil
}

func (d *durationMs) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *durationMs) parse(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = durationMs(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = durationMs(parsed.Milliseconds())
	return nil
}

// MarshalJSON encodes g in its persisted form.
func (g Graph) MarshalJSON() ([]byte, error) {
	doc, err := toDoc(&g)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the persisted form.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var doc graphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return fromDoc(&doc, g)
}

// MarshalYAML encodes g in its persisted form.
func (g Graph) MarshalYAML() (any, error) {
	return toDoc(&g)
}

// UnmarshalYAML decodes the persisted form.
func (g *Graph) UnmarshalYAML(value *yaml.Node) error {
	var doc graphDoc
	if err := value.Decode(&doc); err != nil {
		return err
	}
	return fromDoc(&doc, g)
}

func toDoc(g *Graph) (*graphDoc, error) {
	doc := &graphDoc{
		Name:     g.Name,
		Version:  g.Version,
		Triggers: make([]triggerDoc, 0, len(g.Triggers)),
		Nodes:    make([]nodeDoc, 0, len(g.Nodes)),
		Edges:    make([]edgeDoc, 0, len(g.Edges)),
	}
	for _, t := range g.Triggers {
		doc.Triggers = append(doc.Triggers, triggerDoc{
			Tag:      string(t.Kind),
			Branches: t.Branches,
			Paths:    t.Paths,
			Cron:     t.Cron,
		})
	}
	if d := g.Defaults; d != nil {
		doc.Defaults = &defaultsDoc{
			Retry:   toRetryDoc(d.Retry),
			Env:     d.Env,
			Timeout: newDurationMs(d.Timeout),
		}
	}
	for i, n := range g.Nodes {
		nd := nodeDoc{}
		switch n := n.(type) {
		case *TaskNode:
			nd.ID, nd.Uses, nd.Run, nd.Env, nd.Secrets = string(n.ID), n.Uses, n.Run, n.Env, n.Secrets
			nd.Retry = toRetryDoc(n.Retry)
		case *GateNode:
			nd.ID, nd.Condition = string(n.ID), n.Condition
		case *FanoutNode:
			nd.ID = string(n.ID)
		case *FaninNode:
			nd.ID = string(n.ID)
		case *CollectNode:
			nd.ID, nd.FormID, nd.Timeout = string(n.ID), n.FormID, newDurationMs(n.Timeout)
		default:
			return nil, errors.InvalidGraph(fmt.Sprintf("nodes[%d]: unsupported node type %T", i, n))
		}
		nd.Tag = string(n.Kind())
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, e := range g.Edges {
		cond := e.Condition
		if cond == "" {
			cond = ConditionAlways
		}
		doc.Edges = append(doc.Edges, edgeDoc{From: string(e.From), To: string(e.To), Condition: string(cond)})
	}
	return doc, nil
}

func fromDoc(doc *graphDoc, g *Graph) error {
	out := Graph{Name: doc.Name, Version: doc.Version}

	for i, td := range doc.Triggers {
		kind := firstNonEmpty(td.Tag, td.Kind)
		switch TriggerKind(kind) {
		case TriggerPush, TriggerPullRequest, TriggerSchedule:
		default:
			return errors.InvalidGraph(fmt.Sprintf("triggers[%d]: unknown trigger kind %q", i, kind))
		}
		out.Triggers = append(out.Triggers, Trigger{
			Kind:     TriggerKind(kind),
			Branches: td.Branches,
			Paths:    td.Paths,
			Cron:     td.Cron,
		})
	}

	if dd := doc.Defaults; dd != nil {
		out.Defaults = &Defaults{Retry: fromRetryDoc(dd.Retry), Env: dd.Env}
		if dd.Timeout != nil {
			out.Defaults.Timeout = dd.Timeout.Duration()
		}
	}

	for i, nd := range doc.Nodes {
		n, err := decodeNode(i, nd)
		if err != nil {
			return err
		}
		out.Nodes = append(out.Nodes, n)
	}

	for i, ed := range doc.Edges {
		from, err := ParseNodeID(ed.From)
		if err != nil {
			return withField(err, fmt.Sprintf("edges[%d].from", i))
		}
		to, err := ParseNodeID(ed.To)
		if err != nil {
			return withField(err, fmt.Sprintf("edges[%d].to", i))
		}
		out.Edges = append(out.Edges, Connect(from, to, Condition(ed.Condition)))
	}

	*g = out
	return nil
}

func decodeNode(i int, nd nodeDoc) (Node, error) {
	id, err := ParseNodeID(nd.ID)
	if err != nil {
		return nil, withField(err, fmt.Sprintf("nodes[%d].id", i))
	}
	kind := Kind(firstNonEmpty(nd.Tag, nd.Kind))
	switch kind {
	case KindTask:
		return Task(id, TaskConfig{
			Uses:    nd.Uses,
			Run:     nd.Run,
			Env:     nd.Env,
			Secrets: nd.Secrets,
			Retry:   fromRetryDoc(nd.Retry),
		}), nil
	case KindGate:
		return Gate(id, nd.Condition), nil
	case KindFanout:
		return Fanout(id), nil
	case KindFanin:
		return Fanin(id), nil
	case KindCollect:
		var timeout time.Duration
		if nd.Timeout != nil {
			timeout = nd.Timeout.Duration()
		}
		return Collect(id, nd.FormID, timeout), nil
	case "":
		return nil, errors.InvalidGraph(fmt.Sprintf("nodes[%d]: missing _tag", i))
	default:
		return nil, errors.InvalidGraph(fmt.Sprintf("nodes[%d]: unknown node kind %q", i, kind))
	}
}

func toRetryDoc(p *RetryPolicy) *retryDoc {
	if p == nil {
		return nil
	}
	rd := &retryDoc{MaxAttempts: p.MaxAttempts}
	if b := p.Backoff; b != nil {
		rd.Backoff = &backoffDoc{Kind: b.Kind, BaseDelayMs: b.BaseDelayMs, Factor: b.Factor, MaxDelayMs: b.MaxDelayMs}
	}
	return rd
}

func fromRetryDoc(rd *retryDoc) *RetryPolicy {
	if rd == nil {
		return nil
	}
	p := &RetryPolicy{MaxAttempts: rd.MaxAttempts}
	if b := rd.Backoff; b != nil {
		p.Backoff = &Backoff{Kind: b.Kind, BaseDelayMs: b.BaseDelayMs, Factor: b.Factor, MaxDelayMs: b.MaxDelayMs}
	}
	return p
}

func withField(err error, field string) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.WithDetail("field", field)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
