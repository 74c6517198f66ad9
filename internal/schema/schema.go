// Package schema validates hdrreg YAML documents against the CUE
// definitions embedded in schema.cue.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Definitions known to Validate.
const (
	Config   = "#Config"
	Scenario = "#Scenario"
)

// Validation error codes (E200-E209)
const (
	ErrCodeSyntax     = "E201" // document is not valid YAML
	ErrCodeViolation  = "E202" // document does not satisfy the schema
	ErrCodeUnknownDef = "E203" // no such schema definition
)

// Issue is one schema violation.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	if i.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", i.Code, i.Line, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Field, i.Message)
}

// ValidationError carries every issue found in one document.
type ValidationError struct {
	File   string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return fmt.Sprintf("%s: %s", e.File, strings.Join(msgs, "; "))
}

// cue.Context is not safe for concurrent use.
var (
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
)

func compiled() (*cue.Context, cue.Value, error) {
	if ctx == nil {
		c := cuecontext.New()
		v := c.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			return nil, cue.Value{}, fmt.Errorf("compile schema: %w", err)
		}
		ctx, schema = c, v
	}
	return ctx, schema, nil
}

// ValidateYAML checks a YAML document against the named definition.
// It returns a *ValidationError when the document is malformed or violates
// the schema, and a plain error when the schema itself is unusable.
func ValidateYAML(def, filename string, data []byte) error {
	mu.Lock()
	defer mu.Unlock()

	c, s, err := compiled()
	if err != nil {
		return err
	}

	d := s.LookupPath(cue.ParsePath(def))
	if !d.Exists() {
		return &ValidationError{File: filename, Issues: []Issue{{
			Field:   def,
			Message: "unknown schema definition",
			Code:    ErrCodeUnknownDef,
		}}}
	}

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(err, filename, ErrCodeSyntax)}
	}
	doc := c.BuildFile(f)
	if err := doc.Err(); err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(err, filename, ErrCodeSyntax)}
	}

	v := d.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(err, filename, ErrCodeViolation)}
	}
	return nil
}

// issuesFrom flattens a CUE error list, preferring positions that point
// into the validated document over positions in schema.cue.
func issuesFrom(err error, filename, code string) []Issue {
	list := errors.Errors(err)
	if len(list) == 0 {
		return []Issue{{Field: "document", Message: err.Error(), Code: code}}
	}

	issues := make([]Issue, 0, len(list))
	for _, e := range list {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "document"
		}
		format, args := e.Msg()
		issue := Issue{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		}
		for _, pos := range errors.Positions(e) {
			if pos.Filename() == filename {
				issue.Line = pos.Line()
				break
			}
		}
		issues = append(issues, issue)
	}
	return issues
}
