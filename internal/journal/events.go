package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run is one recorded execution.
type Run struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Events   int    `json:"events"`
}

// Event is one recorded registry operation.
type Event struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"`
	Op        string `json:"op"`
	SuiteID   int    `json:"suite_id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
	LookupID  int64  `json:"lookup_id,omitempty"`
	Outcome   string `json:"outcome"`
	Version   int64  `json:"version"`
	RefCount  int    `json:"ref_count"`
	Size      int    `json:"size"`
	Digest    string `json:"digest,omitempty"`
}

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// BeginRun inserts a run row and returns its id.
func (j *Journal) BeginRun(ctx context.Context, gen RunIDGenerator, scenario string) (string, error) {
	id := gen.Generate()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario)
		VALUES (?, ?)
	`, id, scenario)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// WriteEvent inserts an event.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - rewriting the
// same seq is silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (j *Journal) WriteEvent(ctx context.Context, ev Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, op, suite_id, store_name, lookup_id, outcome, version, ref_count, size, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.Op,
		ev.SuiteID,
		ev.StoreName,
		ev.LookupID,
		ev.Outcome,
		ev.Version,
		ev.RefCount,
		ev.Size,
		ev.Digest,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ReadEvents returns a run's events ordered by seq.
// Returns an empty slice (not nil) if the run has no events.
func (j *Journal) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, op, suite_id, store_name, lookup_id, outcome, version, ref_count, size, digest
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.RunID,
			&ev.Seq,
			&ev.Op,
			&ev.SuiteID,
			&ev.StoreName,
			&ev.LookupID,
			&ev.Outcome,
			&ev.Version,
			&ev.RefCount,
			&ev.Size,
			&ev.Digest,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadRun returns a single run with its event count.
// Returns ErrRunNotFound if the id is unknown.
func (j *Journal) ReadRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	err := j.db.QueryRowContext(ctx, `
		SELECT r.id, r.scenario, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id, r.scenario
	`, runID).Scan(&run.ID, &run.Scenario, &run.Events)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs in insertion order.
func (j *Journal) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.scenario, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.rowid, r.id, r.scenario
		ORDER BY r.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Scenario, &run.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CountOps returns how many events of each op a run recorded.
func (j *Journal) CountOps(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT op, COUNT(*)
		FROM events
		WHERE run_id = ?
		GROUP BY op
		ORDER BY op ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count ops: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var op string
		var n int
		if err := rows.Scan(&op, &n); err != nil {
			return nil, fmt.Errorf("scan op count: %w", err)
		}
		counts[op] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate op counts: %w", err)
	}
	return counts, nil
}
