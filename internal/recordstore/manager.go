package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/roach88/hdrreg/internal/header"
)

// ErrNotFound is returned by Reopen when the lookup id is not live.
var ErrNotFound = errors.New("shared header not found")

// Reclaimer frees registry memory so a failed allocation can be retried,
// for example by closing idle record stores.
type Reclaimer interface {
	Reclaim(ctx context.Context) error
}

// ReclaimFunc adapts a function to Reclaimer.
type ReclaimFunc func(ctx context.Context) error

// Reclaim calls f(ctx).
func (f ReclaimFunc) Reclaim(ctx context.Context) error {
	return f(ctx)
}

// Options controls a Manager.
type Options struct {
	// MaxRetries bounds how many times Open retries after OutOfMemory.
	// Zero disables retrying.
	MaxRetries uint64

	// BaseDelay is the first Fibonacci backoff step between retries.
	BaseDelay time.Duration

	// Reclaimer is invoked before each retry. Nil means retry without
	// reclaiming.
	Reclaimer Reclaimer

	// Logger receives retry and lifecycle logs. If nil, logs are discarded.
	Logger *slog.Logger
}

// Manager opens shared headers on behalf of record stores.
//
// Thread-safety: Manager is safe for concurrent use; all shared state lives
// in the registry.
type Manager struct {
	reg  *header.Registry
	opts Options
	log  *slog.Logger
}

// NewManager creates a manager over reg.
func NewManager(reg *header.Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Millisecond
	}
	return &Manager{reg: reg, opts: opts, log: logger}
}

// Open resolves the shared header for (suiteID, storeName). If this call
// creates the header, it is seeded with initial in the same critical
// section, so concurrent openers never see an unseeded payload. The
// returned SharedHeader already holds a copy of the current payload.
func (m *Manager) Open(ctx context.Context, suiteID int, storeName string, initial []byte) (*SharedHeader, error) {
	var (
		hd      *header.Handle
		created bool
		attempt int
	)

	b := retry.WithMaxRetries(m.opts.MaxRetries, retry.NewFibonacci(m.opts.BaseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		hd, created, err = m.reg.AcquireWith(suiteID, storeName, initial)
		if err == nil {
			return nil
		}
		if !header.IsOutOfMemory(err) {
			return err
		}

		m.log.Warn("shared header allocation failed",
			"suite_id", suiteID,
			"store_name", storeName,
			"attempt", attempt,
		)
		if m.opts.Reclaimer != nil {
			if rerr := m.opts.Reclaimer.Reclaim(ctx); rerr != nil {
				return fmt.Errorf("reclaim: %w", rerr)
			}
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("open shared header %d/%q: %w", suiteID, storeName, err)
	}

	sh := newSharedHeader(hd, m.log)
	if _, err := sh.Refresh(); err != nil {
		_, _ = hd.Release()
		return nil, err
	}

	m.log.Debug("shared header opened",
		"lookup_id", hd.LookupID(),
		"suite_id", suiteID,
		"store_name", storeName,
		"created", created,
		"version", sh.Version(),
	)
	return sh, nil
}

// Reopen takes another reference on a header by lookup id, the fast path
// for callers that resolved the header before.
func (m *Manager) Reopen(id header.LookupID) (*SharedHeader, error) {
	hd, ok := m.reg.AcquireByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: lookup id %d", ErrNotFound, id)
	}
	sh := newSharedHeader(hd, m.log)
	if _, err := sh.Refresh(); err != nil {
		_, _ = hd.Release()
		return nil, err
	}
	return sh, nil
}

// neverSeen is older than any version the registry can issue.
const neverSeen = header.Version(math.MinInt64)
