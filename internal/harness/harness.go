package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/roach88/hdrreg/internal/canon"
	"github.com/roach88/hdrreg/internal/config"
	"github.com/roach88/hdrreg/internal/header"
	"github.com/roach88/hdrreg/internal/journal"
	"github.com/roach88/hdrreg/internal/recordstore"
	"github.com/roach88/hdrreg/internal/testutil"
)

// Options configures a scenario run.
type Options struct {
	// Journal receives every trace event. Nil disables journaling.
	Journal *journal.Journal

	// RunIDs generates the journal run id. If nil, the scenario's run_id
	// (or testutil.DefaultRunID) is used.
	RunIDs journal.RunIDGenerator

	// Logger receives harness and registry logs. If nil, logs are discarded.
	Logger *slog.Logger

	// Config supplies the registry and retry settings. If nil,
	// config.Default() is used. The scenario's registry block overrides it.
	Config *config.Config
}

// node is a named header reference held by the scenario.
type node struct {
	h  *header.Header
	hd *header.Handle // set for nodes produced by acquire
	id header.LookupID
}

// Harness executes one scenario against a private registry.
type Harness struct {
	reg      *header.Registry
	manager  *recordstore.Manager
	debug    bool
	seq      int64 // last issued trace seq
	logger   *slog.Logger
	journal  *journal.Journal
	runID    string
	nodes    map[string]*node
	stores   map[string]*recordstore.SharedHeader
	versions map[string]header.Version
	result   *Result

	// Set while an open step runs: the reclaim entries not yet used and
	// the events reclaiming produced.
	reclaimable []string
	reclaimed   []TraceEvent
}

// observation is what one step produced.
type observation struct {
	event   TraceEvent
	data    []byte
	hasData bool
	deleted *bool
}

// neverSeen is the caller version used when a get_data step has no since.
const neverSeen = header.Version(math.MinInt64)

// Run executes a scenario in a fresh registry and returns the result.
//
// Execution flow:
// 1. Create a registry and record store manager from the config and the
//    scenario's registry settings
// 2. Begin a journal run, if a journal was given
// 3. Execute steps in order, checking expect clauses
// 4. Execute the stress phase, if any
// 5. Capture final state and evaluate assertions
//
// A returned error means the scenario could not be executed at all;
// expectation and assertion failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	settings := config.Default()
	if opts.Config != nil {
		settings = *opts.Config
	}
	cfg := settings.Header(logger)
	if rs := scenario.Registry; rs != nil {
		if rs.MaxBytes != 0 {
			cfg.MaxBytes = rs.MaxBytes
		}
		if rs.InitialVersion != 0 {
			cfg.InitialVersion = header.Version(rs.InitialVersion)
		}
		cfg.Debug = cfg.Debug || rs.Debug
	}
	reg := header.New(cfg)
	defer reg.Close()

	h := &Harness{
		reg:      reg,
		debug:    cfg.Debug,
		logger:   logger,
		journal:  opts.Journal,
		nodes:    make(map[string]*node),
		stores:   make(map[string]*recordstore.SharedHeader),
		versions: make(map[string]header.Version),
		result:   NewResult(),
	}
	h.manager = recordstore.NewManager(reg, settings.Manager(logger, recordstore.ReclaimFunc(h.reclaim)))

	if h.journal != nil {
		gen := opts.RunIDs
		if gen == nil {
			id := scenario.RunID
			if id == "" {
				id = testutil.DefaultRunID
			}
			gen = testutil.NewFixedRunIDGenerator(id)
		}
		runID, err := h.journal.BeginRun(ctx, gen, scenario.Name)
		if err != nil {
			return nil, err
		}
		h.runID = runID
		h.result.RunID = runID
	}

	for i, step := range scenario.Steps {
		obs, err := h.executeStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		for _, ev := range h.reclaimed {
			if err := h.record(ctx, ev); err != nil {
				return nil, err
			}
		}
		h.reclaimed = nil
		if err := h.record(ctx, obs.event); err != nil {
			return nil, err
		}
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, obs) {
				h.result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
			}
		}
		h.logger.Debug("step completed",
			"step", i,
			"op", step.Op,
			"outcome", obs.event.Outcome,
			"lookup_id", obs.event.LookupID,
			"version", obs.event.Version,
		)
	}

	if scenario.Stress != nil {
		ev, failures := h.runStress(ctx, scenario.Stress)
		for _, msg := range failures {
			h.result.AddError("stress: " + msg)
		}
		if err := h.record(ctx, ev); err != nil {
			return nil, err
		}
	}

	h.result.Final = reg.Stats()
	h.result.Headers = reg.Snapshot()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// record stamps ev with the next seq, appends it to the trace, and
// journals it. Seqs start at 1 in every run, so replays match golden traces.
// Only the run goroutine calls record.
func (h *Harness) record(ctx context.Context, ev TraceEvent) error {
	h.seq++
	ev.Seq = h.seq
	h.result.Trace = append(h.result.Trace, ev)
	if h.journal == nil {
		return nil
	}
	return h.journal.WriteEvent(ctx, journal.Event{
		RunID:     h.runID,
		Seq:       ev.Seq,
		Op:        ev.Op,
		SuiteID:   ev.SuiteID,
		StoreName: ev.StoreName,
		LookupID:  ev.LookupID,
		Outcome:   ev.Outcome,
		Version:   ev.Version,
		RefCount:  ev.RefCount,
		Size:      ev.Size,
		Digest:    ev.Digest,
	})
}

// executeStep runs one step. In debug mode a contract violation panics
// inside the registry; the panic is turned into a violation outcome so the
// scenario can assert on it. Outside debug mode panics propagate.
func (h *Harness) executeStep(ctx context.Context, step Step) (obs observation, err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if !h.debug {
			panic(p)
		}
		h.logger.Warn("contract violation", "op", step.Op, "panic", p)
		obs, err = h.violation(step), nil
	}()
	return h.execute(ctx, step)
}

// violation observes the step's node when it has one. The registry
// releases its lock before panicking, so reading state here is safe.
func (h *Harness) violation(step Step) observation {
	if n, ok := h.nodes[step.Node]; ok {
		return h.observe(step, n, OutcomeViolation)
	}
	node := step.Node
	if node == "" {
		node = step.As
	}
	return observation{event: TraceEvent{
		Op:        step.Op,
		Node:      node,
		SuiteID:   step.Suite,
		StoreName: step.Name,
		Outcome:   OutcomeViolation,
	}}
}

func (h *Harness) execute(ctx context.Context, step Step) (observation, error) {
	switch step.Op {
	case OpOpen:
		return h.open(ctx, step), nil
	case OpReopen:
		return h.reopen(step)
	case OpRefresh, OpUpdate, OpClose:
		sh, ok := h.stores[step.Node]
		if !ok {
			return observation{}, fmt.Errorf("unknown store %q", step.Node)
		}
		return h.storeOp(step, sh), nil
	case OpCreate:
		return h.create(step), nil
	case OpFindByID:
		return h.findByID(step)
	case OpFindByName:
		return h.findByName(step), nil
	case OpAcquire:
		return h.acquire(step), nil
	}

	n, ok := h.nodes[step.Node]
	if !ok {
		return observation{}, fmt.Errorf("unknown node %q", step.Node)
	}

	switch step.Op {
	case OpSetData:
		return h.setData(step, n), nil
	case OpGetData:
		return h.getData(step, n)
	case OpIncRef:
		h.reg.IncRef(n.h)
		return h.observe(step, n, OutcomeOK), nil
	case OpDecRef:
		remaining := h.reg.DecRef(n.h)
		obs := h.observe(step, n, OutcomeOK)
		obs.event.RefCount = remaining
		return obs, nil
	case OpDelete:
		h.reg.Delete(n.h)
		return h.observe(step, n, OutcomeOK), nil
	case OpRelease:
		return h.release(step, n)
	default:
		return observation{}, fmt.Errorf("unknown op %q", step.Op)
	}
}

// observe builds an observation from n's current state.
func (h *Harness) observe(step Step, n *node, outcome string) observation {
	info := n.h.Info()
	return observation{event: TraceEvent{
		Op:        step.Op,
		Node:      step.Node,
		SuiteID:   info.SuiteID,
		StoreName: info.StoreName,
		LookupID:  int64(info.LookupID),
		Outcome:   outcome,
		Version:   int64(info.Version),
		RefCount:  info.RefCount,
		Size:      info.Size,
	}}
}

func (h *Harness) remember(alias string, n *node) {
	if alias != "" {
		h.nodes[alias] = n
	}
}

func (h *Harness) create(step Step) observation {
	hdr, err := h.reg.Create(step.Suite, step.Name, step.Size)
	if err != nil {
		return observation{event: TraceEvent{
			Op:        step.Op,
			Node:      step.As,
			SuiteID:   step.Suite,
			StoreName: step.Name,
			Outcome:   outcomeOf(err),
		}}
	}
	n := &node{h: hdr, id: hdr.LookupID()}
	h.remember(step.As, n)
	obs := h.observe(step, n, OutcomeOK)
	obs.event.Node = step.As
	return obs
}

func (h *Harness) findByID(step Step) (observation, error) {
	id := header.LookupID(step.ID)
	if step.Node != "" {
		n, ok := h.nodes[step.Node]
		if !ok {
			return observation{}, fmt.Errorf("unknown node %q", step.Node)
		}
		id = n.id
	}

	hdr, ok := h.reg.FindByID(id)
	if !ok {
		return observation{event: TraceEvent{
			Op:       step.Op,
			Node:     step.Node,
			LookupID: int64(id),
			Outcome:  OutcomeNotFound,
		}}, nil
	}
	n := &node{h: hdr, id: id}
	h.remember(step.As, n)
	obs := h.observe(step, n, OutcomeFound)
	return obs, nil
}

func (h *Harness) findByName(step Step) observation {
	hdr, ok := h.reg.FindByName(step.Suite, step.Name)
	if !ok {
		return observation{event: TraceEvent{
			Op:        step.Op,
			Node:      step.As,
			SuiteID:   step.Suite,
			StoreName: step.Name,
			Outcome:   OutcomeNotFound,
		}}
	}
	n := &node{h: hdr, id: hdr.LookupID()}
	h.remember(step.As, n)
	obs := h.observe(step, n, OutcomeFound)
	obs.event.Node = step.As
	return obs
}

func (h *Harness) acquire(step Step) observation {
	hd, _, err := h.reg.Acquire(step.Suite, step.Name, step.Size)
	if err != nil {
		return observation{event: TraceEvent{
			Op:        step.Op,
			Node:      step.As,
			SuiteID:   step.Suite,
			StoreName: step.Name,
			Outcome:   outcomeOf(err),
		}}
	}
	n := &node{h: hd.Header(), hd: hd, id: hd.LookupID()}
	h.remember(step.As, n)
	obs := h.observe(step, n, OutcomeOK)
	obs.event.Node = step.As
	return obs
}

func (h *Harness) setData(step Step, n *node) observation {
	src := []byte(step.Data)
	size := len(src)
	if step.Length != nil {
		size = *step.Length
	}

	var (
		v   header.Version
		err error
	)
	if n.hd != nil {
		v, err = n.hd.SetRange(src, step.Offset, size)
	} else {
		v, err = h.reg.SetData(n.h, src, step.Offset, size)
	}

	if err != nil {
		return h.observe(step, n, outcomeOf(err))
	}
	if step.As != "" {
		h.versions[step.As] = v
	}
	obs := h.observe(step, n, OutcomeOK)
	obs.event.Version = int64(v)
	obs.event.Digest = canon.PayloadDigest(src[:size])
	return obs
}

func (h *Harness) getData(step Step, n *node) (observation, error) {
	since := neverSeen
	if ref := step.Since; ref != nil {
		switch {
		case ref.Literal != nil:
			since = header.Version(*ref.Literal)
		default:
			v, ok := h.versions[ref.Name]
			if !ok {
				return observation{}, fmt.Errorf("unknown version %q", ref.Name)
			}
			since = v
		}
	}

	if n.hd != nil && n.hd.Released() {
		return h.observe(step, n, OutcomeReleased), nil
	}

	view, v, ok := h.reg.GetData(n.h, since)
	if step.As != "" {
		h.versions[step.As] = v
	}
	if !ok {
		obs := h.observe(step, n, OutcomeUnchanged)
		obs.event.Version = int64(v)
		return obs, nil
	}

	data := view.Clone()
	obs := h.observe(step, n, OutcomeOK)
	obs.event.Version = int64(v)
	obs.event.Digest = canon.PayloadDigest(data)
	obs.data = data
	obs.hasData = true
	return obs, nil
}

func (h *Harness) release(step Step, n *node) (observation, error) {
	if n.hd == nil {
		return observation{}, fmt.Errorf("node %q was not produced by acquire", step.Node)
	}
	deleted, err := n.hd.Release()
	if err != nil {
		return h.observe(step, n, outcomeOf(err)), nil
	}
	obs := h.observe(step, n, OutcomeOK)
	if deleted {
		obs.event.RefCount = 0
	}
	obs.deleted = &deleted
	return obs, nil
}

// outcomeOf maps a registry error to its trace outcome.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case header.IsOutOfMemory(err):
		return OutcomeOutOfMemory
	case header.IsInvalidRange(err):
		return OutcomeInvalidRange
	case header.IsReleased(err):
		return OutcomeReleased
	case header.IsDeleted(err):
		return OutcomeDeleted
	case header.IsClosed(err):
		return OutcomeClosed
	case errors.Is(err, recordstore.ErrNotFound):
		return OutcomeNotFound
	default:
		return "error"
	}
}

// checkExpect compares an observation against an expect clause and returns
// one message per mismatch.
func checkExpect(exp *Expect, obs observation) []string {
	var msgs []string
	ev := obs.event

	if exp.Outcome != "" && exp.Outcome != ev.Outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %q, got %q", exp.Outcome, ev.Outcome))
	}
	if exp.Version != nil && *exp.Version != ev.Version {
		msgs = append(msgs, fmt.Sprintf("expected version %d, got %d", *exp.Version, ev.Version))
	}
	if exp.RefCount != nil && *exp.RefCount != ev.RefCount {
		msgs = append(msgs, fmt.Sprintf("expected ref_count %d, got %d", *exp.RefCount, ev.RefCount))
	}
	if exp.Size != nil && *exp.Size != ev.Size {
		msgs = append(msgs, fmt.Sprintf("expected size %d, got %d", *exp.Size, ev.Size))
	}
	if exp.Data != nil {
		switch {
		case !obs.hasData:
			msgs = append(msgs, fmt.Sprintf("expected data %q, got no data", *exp.Data))
		case *exp.Data != string(obs.data):
			msgs = append(msgs, fmt.Sprintf("expected data %q, got %q", *exp.Data, obs.data))
		}
	}
	if exp.Deleted != nil {
		got := obs.deleted != nil && *obs.deleted
		if *exp.Deleted != got {
			msgs = append(msgs, fmt.Sprintf("expected deleted %t, got %t", *exp.Deleted, got))
		}
	}
	return msgs
}
