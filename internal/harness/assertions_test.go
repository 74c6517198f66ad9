package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrreg/internal/header"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Op: OpCreate, Outcome: OutcomeOK},
		{Seq: 2, Op: OpSetData, Outcome: OutcomeOK},
		{Seq: 3, Op: OpSetData, Outcome: OutcomeOK},
		{Seq: 4, Op: OpDecRef, Outcome: OutcomeOK},
		{Seq: 5, Op: OpDelete, Outcome: OutcomeOK},
	}
}

func TestAssertOpCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertOpCount(trace, Assertion{Op: OpSetData, Count: 2}))
	assert.NoError(t, assertOpCount(trace, Assertion{Op: OpAcquire, Count: 0}))

	err := assertOpCount(trace, Assertion{Op: OpSetData, Count: 3})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertOpCount, aerr.Type)
	assert.Equal(t, "2 occurrences", aerr.Actual)
}

func TestAssertOpOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertOpOrder(trace, Assertion{Ops: []string{OpCreate, OpDelete}}))
	assert.NoError(t, assertOpOrder(trace, Assertion{Ops: []string{OpCreate, OpSetData, OpDecRef}}))

	err := assertOpOrder(trace, Assertion{Ops: []string{OpDelete, OpCreate}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertOpOrder(trace, Assertion{Ops: []string{OpCreate, OpRelease}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: release")
}

func TestAssertFinalState(t *testing.T) {
	result := NewResult()
	result.Final = header.Stats{Headers: 2, BytesInUse: 140}

	assert.NoError(t, assertFinalState(result, Assertion{Headers: 2}))
	assert.NoError(t, assertFinalState(result, Assertion{Headers: 2, BytesInUse: ptr(int64(140))}))

	err := assertFinalState(result, Assertion{Headers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 live headers")

	err = assertFinalState(result, Assertion{Headers: 2, BytesInUse: ptr(int64(0))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "140 bytes in use")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	msgs := EvaluateAssertions(result, []Assertion{
		{Type: AssertOpCount, Op: OpCreate, Count: 1},
		{Type: AssertOpCount, Op: OpCreate, Count: 5},
		{Type: AssertFinalState, Headers: 0},
		{Type: "bogus"},
	})
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "assertions[1]")
	assert.Contains(t, msgs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertOpCount,
		Expected: "1 occurrences of create",
		Actual:   "0 occurrences",
		Trace:    []TraceEvent{{Seq: 1, Op: OpFindByName, StoreName: "S", Outcome: OutcomeNotFound}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: op_count")
	assert.Contains(t, msg, "[1] find_by_name S/0 not_found v0 rc=0")
}
