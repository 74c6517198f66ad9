package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: basic
description: create and read back
steps:
  - op: create
    as: a
    suite: 1
    name: Scores
    size: 4
    expect:
      outcome: ok
      version: 0
  - op: get_data
    node: a
    since: -1
assertions:
  - type: op_count
    op: create
    count: 1
  - type: op_order
    ops: [create, get_data]
  - type: final_state
    headers: 1
`

func TestValidateYAML_ValidScenario(t *testing.T) {
	require.NoError(t, ValidateYAML(Scenario, "basic.yaml", []byte(validScenario)))
}

func TestValidateYAML_ValidConfig(t *testing.T) {
	doc := `
registry:
  max_bytes: 4096
  debug: true
retry:
  max_retries: 3
  base_delay: 5ms
log:
  level: debug
journal:
  path: ./hdrreg.db
`
	require.NoError(t, ValidateYAML(Config, "hdrreg.yaml", []byte(doc)))
}

func TestValidateYAML_EmptyConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateYAML(Config, "empty.yaml", []byte("{}\n")))
}

func TestValidateYAML_Violations(t *testing.T) {
	tests := []struct {
		name string
		def  string
		doc  string
	}{
		{
			name: "unknown op",
			def:  Scenario,
			doc: `
name: bad
description: x
steps:
  - op: explode
`,
		},
		{
			name: "missing description",
			def:  Scenario,
			doc: `
name: bad
steps:
  - op: create
`,
		},
		{
			name: "empty steps",
			def:  Scenario,
			doc: `
name: bad
description: x
steps: []
`,
		},
		{
			name: "unknown field",
			def:  Scenario,
			doc: `
name: bad
description: x
step: []
`,
		},
		{
			name: "op_count without count",
			def:  Scenario,
			doc: `
name: bad
description: x
steps:
  - op: create
assertions:
  - type: op_count
    op: create
`,
		},
		{
			name: "bad log level",
			def:  Config,
			doc: `
log:
  level: loud
`,
		},
		{
			name: "negative budget",
			def:  Config,
			doc: `
registry:
  max_bytes: -1
`,
		},
		{
			name: "bad delay",
			def:  Config,
			doc: `
retry:
  base_delay: soon
`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML(tt.def, "doc.yaml", []byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Issues)
			assert.Equal(t, ErrCodeViolation, verr.Issues[0].Code)
			assert.Equal(t, "doc.yaml", verr.File)
		})
	}
}

func TestValidateYAML_SyntaxError(t *testing.T) {
	err := ValidateYAML(Scenario, "broken.yaml", []byte("name: [unterminated\n"))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeSyntax, verr.Issues[0].Code)
}

func TestValidateYAML_UnknownDefinition(t *testing.T) {
	err := ValidateYAML("#Nope", "doc.yaml", []byte("{}\n"))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeUnknownDef, verr.Issues[0].Code)
}

func TestIssue_Error(t *testing.T) {
	withLine := Issue{Field: "steps.0.op", Message: "bad op", Code: ErrCodeViolation, Line: 4}
	assert.Equal(t, "[E202] line 4: steps.0.op: bad op", withLine.Error())

	noLine := Issue{Field: "name", Message: "required", Code: ErrCodeViolation}
	assert.Equal(t, "[E202] name: required", noLine.Error())
}
