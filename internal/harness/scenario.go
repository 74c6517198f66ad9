package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hdrreg/internal/schema"
)

// Scenario defines a registry scenario: a sequence of operations with
// expected outcomes, an optional concurrent stress phase, and assertions
// over the resulting trace and final registry state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registry overrides the registry configuration for this scenario.
	Registry *RegistrySettings `yaml:"registry,omitempty"`

	// RunID is an optional fixed run id for the journal.
	// If empty, the generator passed to Run decides.
	RunID string `yaml:"run_id,omitempty"`

	// Steps run in order on a single goroutine.
	Steps []Step `yaml:"steps"`

	// Stress runs after Steps, with several isolates hammering one header.
	Stress *Stress `yaml:"stress,omitempty"`

	// Assertions validate the final trace and state.
	// Supported types: op_count, op_order, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RegistrySettings are the per-scenario registry knobs.
// Nonzero values override the configuration passed to Run. Debug is
// additive: either source can turn it on.
type RegistrySettings struct {
	MaxBytes       int64 `yaml:"max_bytes,omitempty"`
	InitialVersion int64 `yaml:"initial_version,omitempty"`
	Debug          bool  `yaml:"debug,omitempty"`
}

// Step is one registry operation.
type Step struct {
	// Op is the operation name (see the Op* constants).
	Op string `yaml:"op"`

	// As names the node (create, find_*, acquire), the store (open,
	// reopen) or the version (set_data, get_data) this step produces, for
	// later steps.
	As string `yaml:"as,omitempty"`

	// Node references a node or store named by an earlier step's As.
	Node string `yaml:"node,omitempty"`

	// Suite and Name form the natural key for create, find_by_name and
	// acquire.
	Suite int    `yaml:"suite,omitempty"`
	Name  string `yaml:"name,omitempty"`

	// Size is the initial payload size for create and acquire.
	Size int `yaml:"size,omitempty"`

	// Data is the source buffer for set_data and update, and the initial
	// payload for open.
	Data string `yaml:"data,omitempty"`

	// Offset is the destination offset for set_data.
	Offset int `yaml:"offset,omitempty"`

	// Length is the number of bytes set_data copies. Nil means len(Data).
	Length *int `yaml:"length,omitempty"`

	// ID is an explicit lookup id for find_by_id and reopen. Node wins when
	// both are set.
	ID int64 `yaml:"id,omitempty"`

	// Reclaim lists the stores or acquired nodes an open may give up, in
	// order, when the registry runs out of memory. Each reclaim closes or
	// releases one of them.
	Reclaim []string `yaml:"reclaim,omitempty"`

	// Since is the caller version for get_data: an integer, or the name of
	// a version remembered by an earlier step's As. Nil means "never seen".
	Since *VersionRef `yaml:"since,omitempty"`

	// Expect is checked against the step's observed outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// VersionRef is either a literal version or the name of a remembered one.
type VersionRef struct {
	Literal *int64
	Name    string
}

// UnmarshalYAML accepts an integer or a name.
func (v *VersionRef) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		v.Literal = &n
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: since must be an integer or a version name", node.Line)
	}
	v.Name = s
	return nil
}

// Expect is a subset match: only fields that are set are compared.
type Expect struct {
	Outcome  string  `yaml:"outcome,omitempty"`
	Version  *int64  `yaml:"version,omitempty"`
	RefCount *int    `yaml:"ref_count,omitempty"`
	Data     *string `yaml:"data,omitempty"`
	Size     *int    `yaml:"size,omitempty"`
	Deleted  *bool   `yaml:"deleted,omitempty"`
}

// Stress describes the concurrent phase. Each isolate repeats
// acquire, set_data, get_data, release on the same natural key while the
// harness holds one pinning reference so the header survives throughout.
type Stress struct {
	Isolates   int    `yaml:"isolates"`
	Iterations int    `yaml:"iterations"`
	Suite      int    `yaml:"suite"`
	Name       string `yaml:"name"`
	Size       int    `yaml:"size,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of op_count, op_order, final_state.
	Type string `yaml:"type"`

	// Op and Count are used by op_count.
	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Ops is the expected order for op_order.
	Ops []string `yaml:"ops,omitempty"`

	// Headers and BytesInUse are checked by final_state.
	Headers    int    `yaml:"headers,omitempty"`
	BytesInUse *int64 `yaml:"bytes_in_use,omitempty"`
}

// Operation names.
const (
	OpCreate     = "create"
	OpFindByID   = "find_by_id"
	OpFindByName = "find_by_name"
	OpSetData    = "set_data"
	OpGetData    = "get_data"
	OpIncRef     = "inc_ref"
	OpDecRef     = "dec_ref"
	OpDelete     = "delete"
	OpAcquire    = "acquire"
	OpRelease    = "release"

	// Record store ops, driven through a recordstore.Manager.
	OpOpen    = "open"
	OpReopen  = "reopen"
	OpRefresh = "refresh"
	OpUpdate  = "update"
	OpClose   = "close"

	// OpStress is only ever produced by the harness, as the summary event
	// of a stress phase.
	OpStress = "stress"

	// OpReclaim is only ever produced by the harness, when an open gives up
	// one of its reclaim entries.
	OpReclaim = "reclaim"
)

// Assertion type constants.
const (
	AssertOpCount    = "op_count"
	AssertOpOrder    = "op_order"
	AssertFinalState = "final_state"
)

var validAlias = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadScenario reads a scenario file, validates it against the scenario
// schema, and decodes it. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(path, data)
}

// ParseScenario is LoadScenario for in-memory data. name is used in errors.
func ParseScenario(name string, data []byte) (*Scenario, error) {
	if err := schema.ValidateYAML(schema.Scenario, name, data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: that every referenced
// alias was introduced by an earlier step and that each op has the
// arguments it needs.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	nodes := make(map[string]bool)
	stores := make(map[string]bool)
	versions := make(map[string]bool)
	for i, step := range s.Steps {
		if step.As != "" && !validAlias.MatchString(step.As) {
			return fmt.Errorf("steps[%d]: invalid alias %q", i, step.As)
		}

		switch step.Op {
		case OpCreate, OpAcquire:
			if step.Name == "" {
				return fmt.Errorf("steps[%d]: name is required for %s", i, step.Op)
			}
			if step.As != "" {
				nodes[step.As] = true
			}
		case OpFindByName:
			if step.Name == "" {
				return fmt.Errorf("steps[%d]: name is required for %s", i, step.Op)
			}
			if step.As != "" {
				nodes[step.As] = true
			}
		case OpFindByID:
			if step.Node == "" && step.ID == 0 {
				return fmt.Errorf("steps[%d]: node or id is required for %s", i, step.Op)
			}
			if step.Node != "" && !nodes[step.Node] {
				return fmt.Errorf("steps[%d]: unknown node %q", i, step.Node)
			}
			if step.As != "" {
				nodes[step.As] = true
			}
		case OpSetData, OpGetData:
			if !nodes[step.Node] {
				return fmt.Errorf("steps[%d]: unknown node %q", i, step.Node)
			}
			if step.Since != nil && step.Since.Name != "" && !versions[step.Since.Name] {
				return fmt.Errorf("steps[%d]: unknown version %q", i, step.Since.Name)
			}
			if step.As != "" {
				versions[step.As] = true
			}
		case OpIncRef, OpDecRef, OpDelete, OpRelease:
			if !nodes[step.Node] {
				return fmt.Errorf("steps[%d]: unknown node %q", i, step.Node)
			}
		case OpOpen:
			if step.Name == "" {
				return fmt.Errorf("steps[%d]: name is required for %s", i, step.Op)
			}
			for _, alias := range step.Reclaim {
				if !stores[alias] && !nodes[alias] {
					return fmt.Errorf("steps[%d]: unknown reclaim target %q", i, alias)
				}
			}
			if step.As != "" {
				stores[step.As] = true
			}
		case OpReopen:
			if step.Node == "" && step.ID == 0 {
				return fmt.Errorf("steps[%d]: node or id is required for %s", i, step.Op)
			}
			if step.Node != "" && !stores[step.Node] {
				return fmt.Errorf("steps[%d]: unknown store %q", i, step.Node)
			}
			if step.As != "" {
				stores[step.As] = true
			}
		case OpRefresh, OpUpdate, OpClose:
			if !stores[step.Node] {
				return fmt.Errorf("steps[%d]: unknown store %q", i, step.Node)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if len(step.Reclaim) > 0 && step.Op != OpOpen {
			return fmt.Errorf("steps[%d]: reclaim is only valid for %s", i, OpOpen)
		}
	}

	if st := s.Stress; st != nil {
		if st.Isolates < 1 || st.Iterations < 1 {
			return fmt.Errorf("stress: isolates and iterations must be positive")
		}
		if st.Name == "" {
			return fmt.Errorf("stress: name is required")
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertOpCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for op_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for op_count", index)
		}
	case AssertOpOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for op_order", index)
		}
	case AssertFinalState:
		if a.Headers < 0 {
			return fmt.Errorf("assertions[%d]: headers must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
