package harness

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/hdrreg/internal/header"
)

// runStress pins the stress header, lets every isolate run its
// acquire/set/get/release loop concurrently, then checks that no update
// was lost and no reference leaked. The returned event summarizes the
// phase; its fields do not depend on goroutine scheduling, which is also
// why it carries no payload digest.
func (h *Harness) runStress(ctx context.Context, st *Stress) (TraceEvent, []string) {
	ev := TraceEvent{
		Op:        OpStress,
		SuiteID:   st.Suite,
		StoreName: st.Name,
	}

	pin, _, err := h.reg.Acquire(st.Suite, st.Name, st.Size)
	if err != nil {
		ev.Outcome = outcomeOf(err)
		return ev, []string{fmt.Sprintf("pin acquire failed: %v", err)}
	}
	start := pin.Header().Version()
	baseline := pin.Header().RefCount()

	// All isolates write payloads of the same length so the final size is
	// deterministic.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < st.Isolates; i++ {
		i := i
		payload := []byte(fmt.Sprintf("isolate-%02d", i))
		g.Go(func() error {
			for n := 0; n < st.Iterations; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := h.isolateRound(st, payload); err != nil {
					return fmt.Errorf("isolate %d round %d: %w", i, n, err)
				}
			}
			return nil
		})
	}

	var failures []string
	if err := g.Wait(); err != nil {
		failures = append(failures, err.Error())
	}

	info := pin.Header().Info()
	want := start + header.Version(st.Isolates*st.Iterations)
	if len(failures) == 0 && info.Version != want {
		failures = append(failures, fmt.Sprintf("expected version %d after %d writes, got %d",
			want, st.Isolates*st.Iterations, info.Version))
	}
	if info.RefCount != baseline {
		failures = append(failures, fmt.Sprintf("expected ref_count %d after all isolates released, got %d",
			baseline, info.RefCount))
	}

	deleted, err := pin.Release()
	switch {
	case err != nil:
		failures = append(failures, fmt.Sprintf("pin release failed: %v", err))
	case baseline == 1 && !deleted:
		failures = append(failures, "header survived the last release")
	}
	ev.RefCount = baseline - 1

	h.logger.Debug("stress completed",
		"isolates", st.Isolates,
		"iterations", st.Iterations,
		"version", info.Version,
		"failures", len(failures),
	)

	ev.LookupID = int64(info.LookupID)
	ev.Version = int64(info.Version)
	ev.Size = info.Size
	ev.Outcome = OutcomeOK
	if len(failures) > 0 {
		ev.Outcome = "failed"
	}
	return ev, failures
}

// isolateRound is one isolate's open, update, read back and close cycle.
func (h *Harness) isolateRound(st *Stress, payload []byte) error {
	hd, created, err := h.reg.Acquire(st.Suite, st.Name, st.Size)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if created {
		_, _ = hd.Release()
		return fmt.Errorf("acquire created a new header while pinned")
	}

	v, err := hd.Set(payload)
	if err != nil {
		_, _ = hd.Release()
		return fmt.Errorf("set: %w", err)
	}

	if _, got, ok := hd.Get(v - 1); !ok || got < v {
		_, _ = hd.Release()
		return fmt.Errorf("get: version %d not visible after write", v)
	}

	if _, err := hd.Release(); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}
