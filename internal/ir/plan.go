package ir

// Action is the operation a plan node will perform.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	ActionNoOp    Action = "noop"
)

// Plan is a calculated execution plan.
type Plan struct {
	Metadata *PlanMetadata      `json:"metadata"`
	Changes  []*ResourceChange  `json:"changes"`
	Summary  *PlanSummary       `json:"summary"`
	Outputs  map[string]*Output `json:"outputs,omitempty"`
	Destroy  bool               `json:"destroy,omitempty"`
}

type PlanMetadata struct {
	Timestamp  string `json:"timestamp"`
	ConfigHash string `json:"config_hash,omitempty"`
	Serial     int    `json:"serial"`
}

// ResourceChange is one action for one resource, with the attribute-level diff.
type ResourceChange struct {
	Address string                    `json:"address"`
	Action  Action                    `json:"action"`
	Desired *Resource                 `json:"desired,omitempty"`
	Prior   *ResourceState            `json:"prior,omitempty"`
	Diff    map[string]*AttributeDiff `json:"diff,omitempty"`

	// Blocked marks a node whose attributes still carry a pending value.
	// Blocked nodes and their dependents are planned but never applied.
	Blocked   bool     `json:"blocked,omitempty"`
	BlockedOn []string `json:"blocked_on,omitempty"`
}

// AttributeDiff records the before/after of one changed attribute.
type AttributeDiff struct {
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	Sensitive         bool   `json:"sensitive,omitempty"`
	ForcesReplacement bool   `json:"forces_replacement,omitempty"`
	Action            Action `json:"action"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Delete  int `json:"delete"`
	NoOp    int `json:"noop"`
	Blocked int `json:"blocked"`
}

// HasChanges reports whether the plan contains any action besides NoOp.
func (p *Plan) HasChanges() bool {
	for _, c := range p.Changes {
		if c.Action != ActionNoOp {
			return true
		}
	}
	return false
}
