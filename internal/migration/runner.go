package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rowplane/rowplane/internal/destination"
	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/process"
	"github.com/rowplane/rowplane/internal/row"
	"github.com/rowplane/rowplane/internal/source"
)

// BatchError ends an import. It names the row that was being processed.
type BatchError struct {
	MigrationID   string
	SourceIDs     []string
	SourceIDsHash string
	Err           error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("migration %s stopped at source ids %v: %v", e.MigrationID, e.SourceIDs, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ImportOptions control a single import run.
type ImportOptions struct {
	// Update reprocesses rows that were imported before, even when their
	// source data did not change.
	Update bool
	// Workers is the number of rows processed concurrently. Values below 2
	// process rows one after the other.
	Workers int
}

// Summary counts what an import run did with each source row.
type Summary struct {
	MigrationID string
	RunID       string
	Processed   int
	Created     int
	Updated     int
	Unchanged   int
	Skipped     int
	Failed      int
	Ignored     int
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
	outcomeFailed
	outcomeIgnored
)

func (s *Summary) add(o outcome) {
	s.Processed++
	switch o {
	case outcomeCreated:
		s.Created++
	case outcomeUpdated:
		s.Updated++
	case outcomeUnchanged:
		s.Unchanged++
	case outcomeSkipped:
		s.Skipped++
	case outcomeFailed:
		s.Failed++
	case outcomeIgnored:
		s.Ignored++
	}
}

// Runner imports and rolls back one migration.
type Runner struct {
	def    *Definition
	source source.Source
	dest   destination.Destination
	idmap  *idmap.IdentityMap
	exec   *process.Executor
	log    *logging.Logger
}

// Definition returns the migration definition.
func (r *Runner) Definition() *Definition {
	return r.def
}

// IdentityMap returns the map of the migration.
func (r *Runner) IdentityMap() *idmap.IdentityMap {
	return r.idmap
}

// Import processes every source row. Rows are independent; a row that is
// skipped or rejected by the destination is recorded and the run continues.
// Anything else stops the run with a *BatchError. The summary reflects the
// rows handled up to that point.
func (r *Runner) Import(ctx context.Context, opts ImportOptions) (*Summary, error) {
	runID := uuid.NewString()
	summary := &Summary{MigrationID: r.def.ID, RunID: runID}

	if err := r.idmap.EnsureTables(ctx); err != nil {
		return summary, err
	}
	m := r.idmap.ForRun(runID)

	if opts.Update {
		n, err := m.MarkAllNeedsUpdate(ctx)
		if err != nil {
			return summary, err
		}
		r.log.Info("%s: marked %d rows for update", r.def.ID, n)
	}

	r.log.Info("%s: import run %s started", r.def.ID, runID)
	var err error
	if opts.Workers > 1 {
		err = r.importConcurrently(ctx, m, opts, summary)
	} else {
		err = r.importSequentially(ctx, m, opts, summary)
	}
	if err != nil {
		r.log.Error("%s: import run %s stopped after %d rows: %v", r.def.ID, runID, summary.Processed, err)
		return summary, err
	}

	r.log.Info("%s: %d processed, %d created, %d updated, %d unchanged, %d skipped, %d failed, %d ignored",
		r.def.ID, summary.Processed, summary.Created, summary.Updated, summary.Unchanged,
		summary.Skipped, summary.Failed, summary.Ignored)
	return summary, nil
}

func (r *Runner) importSequentially(ctx context.Context, m *idmap.IdentityMap, opts ImportOptions, summary *Summary) error {
	for rw, err := range r.source.Rows(ctx) {
		if err != nil {
			return fmt.Errorf("migration %s: failed to read source: %w", r.def.ID, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := r.importRow(ctx, m, rw, opts.Update)
		if err != nil {
			return err
		}
		summary.add(o)
	}
	return nil
}

func (r *Runner) importConcurrently(ctx context.Context, m *idmap.IdentityMap, opts ImportOptions, summary *Summary) error {
	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan *row.Row)

	g.Go(func() error {
		defer close(rows)
		for rw, err := range r.source.Rows(gctx) {
			if err != nil {
				return fmt.Errorf("migration %s: failed to read source: %w", r.def.ID, err)
			}
			select {
			case rows <- rw:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var mu sync.Mutex
	for range opts.Workers {
		g.Go(func() error {
			for rw := range rows {
				o, err := r.importRow(gctx, m, rw, opts.Update)
				if err != nil {
					return err
				}
				mu.Lock()
				summary.add(o)
				mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

// importRow runs one row through the process pipelines and the destination
// and records the result in the map.
func (r *Runner) importRow(ctx context.Context, m *idmap.IdentityMap, rw *row.Row, update bool) (outcome, error) {
	sourceIDs, err := rw.SourceIDValues(r.def.Source.IDs)
	if err != nil {
		// Save logs the missing key and reports the row as malformed
		return r.save(ctx, m, rw, nil, nil, idmap.StatusFailed, outcomeSkipped)
	}
	hash := idmap.HashSourceIDs(sourceIDs)

	fail := func(err error) (outcome, error) {
		return 0, &BatchError{MigrationID: r.def.ID, SourceIDs: sourceIDs, SourceIDsHash: hash, Err: err}
	}

	entry, err := m.Lookup(ctx, hash)
	if err != nil {
		return fail(err)
	}
	if entry != nil && !update && settled(entry.Status) && entry.ContentHash == rw.Hash() {
		return outcomeUnchanged, nil
	}

	for _, prop := range r.def.Process {
		if _, err := r.exec.Run(ctx, rw, prop.Steps, prop.Name, nil); err != nil {
			skip, ok := process.IsSkip(err)
			if !ok {
				return fail(err)
			}
			if err := m.Messages().Append(ctx, hash, idmap.LevelInformational, skip.Error()); err != nil {
				return fail(err)
			}
			if skip.SaveToMap {
				return r.save(ctx, m, rw, sourceIDs, nil, idmap.StatusIgnored, outcomeIgnored)
			}
			return outcomeSkipped, nil
		}
	}

	var oldIDs []string
	if entry != nil {
		oldIDs = entry.DestinationIDs
	}
	destIDs, err := r.dest.Import(ctx, rw, oldIDs)
	if err != nil {
		var destErr *destination.Error
		if !errors.As(err, &destErr) {
			return fail(err)
		}
		r.log.Warn("%s: row %v rejected: %v", r.def.ID, sourceIDs, err)
		if err := m.Messages().Append(ctx, hash, idmap.LevelError, err.Error()); err != nil {
			return fail(err)
		}
		return r.save(ctx, m, rw, sourceIDs, nil, idmap.StatusFailed, outcomeFailed)
	}

	result := outcomeCreated
	if len(oldIDs) > 0 {
		result = outcomeUpdated
	}
	return r.save(ctx, m, rw, sourceIDs, destIDs, idmap.StatusImported, result)
}

// settled reports whether a row with this status is left alone until its
// source data changes. Failed and needs-update rows are always retried.
func settled(s idmap.Status) bool {
	return s == idmap.StatusImported || s == idmap.StatusIgnored
}

// save writes the map entry and returns result, or outcomeSkipped when the
// entry was malformed.
func (r *Runner) save(ctx context.Context, m *idmap.IdentityMap, rw *row.Row, sourceIDs, destIDs []string, status idmap.Status, result outcome) (outcome, error) {
	err := m.Save(ctx, rw, destIDs, status, r.dest.RollbackAction())
	if err == nil {
		return result, nil
	}

	var perr *idmap.MapPersistenceError
	if errors.As(err, &perr) && perr.Malformed {
		return outcomeSkipped, nil
	}
	batchErr := &BatchError{MigrationID: r.def.ID, SourceIDs: sourceIDs, Err: err}
	if perr != nil {
		batchErr.SourceIDsHash = perr.SourceIDsHash
	}
	return 0, batchErr
}

// RollbackSummary counts what a rollback did.
type RollbackSummary struct {
	MigrationID string
	Deleted     int
	Preserved   int
}

// Rollback undoes the migration. Entries marked delete have their destination
// entity removed before the map entry is dropped; entries marked preserve
// only lose their map entry. Messages are kept.
func (r *Runner) Rollback(ctx context.Context) (*RollbackSummary, error) {
	summary := &RollbackSummary{MigrationID: r.def.ID}
	if err := r.idmap.EnsureTables(ctx); err != nil {
		return summary, err
	}

	entries, err := r.idmap.Entries(ctx)
	if err != nil {
		return summary, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if entry.RollbackAction == idmap.RollbackDelete && len(entry.DestinationIDs) > 0 {
			if err := r.dest.Rollback(ctx, entry.DestinationIDs); err != nil {
				return summary, &BatchError{
					MigrationID:   r.def.ID,
					SourceIDs:     entry.SourceIDs,
					SourceIDsHash: entry.SourceIDsHash,
					Err:           err,
				}
			}
			summary.Deleted++
		} else {
			summary.Preserved++
		}

		if err := r.idmap.Delete(ctx, entry.SourceIDsHash); err != nil {
			return summary, err
		}
	}

	r.log.Info("%s: rolled back %d rows, preserved %d", r.def.ID, summary.Deleted, summary.Preserved)
	return summary, nil
}

// Status describes the progress of a migration.
type Status struct {
	MigrationID string
	Label       string
	// Total is the number of source rows, or -1 when the source could not
	// be read.
	Total       int
	Counts      map[idmap.Status]int
	Unprocessed int
	Messages    int
}

// Status counts source rows and map entries without changing anything.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	st := &Status{MigrationID: r.def.ID, Label: r.def.Label, Counts: map[idmap.Status]int{}}
	for _, s := range idmap.Statuses {
		st.Counts[s] = 0
	}

	for _, err := range r.source.Rows(ctx) {
		if err != nil {
			r.log.Warn("%s: source not readable: %v", r.def.ID, err)
			st.Total = -1
			break
		}
		st.Total++
	}

	exists, err := r.idmap.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		if st.Counts, err = r.idmap.StatusCounts(ctx); err != nil {
			return nil, err
		}
		if st.Messages, err = r.idmap.Messages().Count(ctx); err != nil {
			return nil, err
		}
	}

	if st.Total >= 0 {
		mapped := 0
		for _, n := range st.Counts {
			mapped += n
		}
		st.Unprocessed = max(st.Total-mapped, 0)
	}
	return st, nil
}
