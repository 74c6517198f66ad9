package harness

import (
	"context"
	"fmt"

	"github.com/roach88/hdrreg/internal/canon"
	"github.com/roach88/hdrreg/internal/header"
	"github.com/roach88/hdrreg/internal/recordstore"
)

// open resolves a shared header through the manager. While it runs, the
// step's reclaim entries are what the manager may give up on OutOfMemory.
func (h *Harness) open(ctx context.Context, step Step) observation {
	h.reclaimable = step.Reclaim
	defer func() { h.reclaimable = nil }()

	sh, err := h.manager.Open(ctx, step.Suite, step.Name, []byte(step.Data))
	if err != nil {
		return observation{event: TraceEvent{
			Op:        step.Op,
			Node:      step.As,
			SuiteID:   step.Suite,
			StoreName: step.Name,
			Outcome:   outcomeOf(err),
		}}
	}
	if step.As != "" {
		h.stores[step.As] = sh
	}
	return h.observeStore(step.Op, step.As, sh, OutcomeOK, true)
}

func (h *Harness) reopen(step Step) (observation, error) {
	id := header.LookupID(step.ID)
	if step.Node != "" {
		sh, ok := h.stores[step.Node]
		if !ok {
			return observation{}, fmt.Errorf("unknown store %q", step.Node)
		}
		id = sh.LookupID()
	}

	sh, err := h.manager.Reopen(id)
	if err != nil {
		return observation{event: TraceEvent{
			Op:       step.Op,
			Node:     step.As,
			LookupID: int64(id),
			Outcome:  outcomeOf(err),
		}}, nil
	}
	if step.As != "" {
		h.stores[step.As] = sh
	}
	return h.observeStore(step.Op, step.As, sh, OutcomeOK, true), nil
}

// storeOp runs refresh, update or close on an open store.
func (h *Harness) storeOp(step Step, sh *recordstore.SharedHeader) observation {
	switch step.Op {
	case OpRefresh:
		changed, err := sh.Refresh()
		switch {
		case err != nil:
			return h.observeStore(step.Op, step.Node, sh, outcomeOf(err), false)
		case !changed:
			return h.observeStore(step.Op, step.Node, sh, OutcomeUnchanged, false)
		}
		return h.observeStore(step.Op, step.Node, sh, OutcomeOK, true)

	case OpUpdate:
		src := []byte(step.Data)
		v, err := sh.Update(src)
		if err != nil {
			return h.observeStore(step.Op, step.Node, sh, outcomeOf(err), false)
		}
		obs := h.observeStore(step.Op, step.Node, sh, OutcomeOK, false)
		obs.event.Version = int64(v)
		obs.event.Digest = canon.PayloadDigest(src)
		return obs

	default: // OpClose
		if err := sh.Close(); err != nil {
			return h.observeStore(step.Op, step.Node, sh, outcomeOf(err), false)
		}
		_, live := h.reg.FindByID(sh.LookupID())
		deleted := !live
		obs := h.observeStore(step.Op, step.Node, sh, OutcomeOK, false)
		obs.deleted = &deleted
		return obs
	}
}

// observeStore reports the shared header's live ref count and size with
// the version of the store's private copy. withData attaches that copy.
func (h *Harness) observeStore(op, alias string, sh *recordstore.SharedHeader, outcome string, withData bool) observation {
	info := sh.Info()
	obs := observation{event: TraceEvent{
		Op:        op,
		Node:      alias,
		SuiteID:   info.SuiteID,
		StoreName: info.StoreName,
		LookupID:  int64(sh.LookupID()),
		Outcome:   outcome,
		Version:   int64(sh.Version()),
		RefCount:  info.RefCount,
		Size:      info.Size,
	}}
	if withData {
		data := sh.Bytes()
		obs.event.Digest = canon.PayloadDigest(data)
		obs.data = data
		obs.hasData = true
	}
	return obs
}

// reclaim is the manager's Reclaimer. Each call gives up the next entry of
// the running open step: a store is closed, an acquired node released.
// With nothing left to give up it returns nil and the manager retries
// until its budget runs out.
func (h *Harness) reclaim(ctx context.Context) error {
	if len(h.reclaimable) == 0 {
		return nil
	}
	alias := h.reclaimable[0]
	h.reclaimable = h.reclaimable[1:]

	if sh, ok := h.stores[alias]; ok {
		err := sh.Close()
		obs := h.observeStore(OpReclaim, alias, sh, outcomeOf(err), false)
		h.reclaimed = append(h.reclaimed, obs.event)
		return err
	}

	n, ok := h.nodes[alias]
	if !ok || n.hd == nil {
		return fmt.Errorf("cannot reclaim %q: not a store or acquired node", alias)
	}
	deleted, err := n.hd.Release()
	obs := h.observe(Step{Op: OpReclaim, Node: alias}, n, outcomeOf(err))
	if deleted {
		obs.event.RefCount = 0
	}
	h.reclaimed = append(h.reclaimed, obs.event)
	return err
}
