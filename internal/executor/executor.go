package executor

import (
	"context"
	"fmt"

	"github.com/dbporter/dbporter/database"
	"github.com/dbporter/dbporter/internal/planner"
	"github.com/dbporter/dbporter/internal/registry"
)

const (
	// primaryBatchSize is the insert batch size for primary records
	primaryBatchSize = 1000
	// linkBatchSize is the insert batch size for link-table rows, which
	// are lighter-weight than primary rows
	linkBatchSize = 2000
)

// Execute runs a migration plan against a source and a destination
// connection in four strictly sequential phases: destructive clean
// (reverse plan order), primary record copy (plan order), link-table
// copy, and sequence resynchronization.
//
// Per-table problems (missing tables on either side) are downgraded to
// warnings and never stop the run. Any other destination write failure
// is fatal: integrity enforcement is restored and a *FatalError is
// returned. The destination must not be written by anyone else for the
// duration of the run.
func Execute(ctx context.Context, plan *planner.Plan, models []registry.Model, source, dest Conn, onProgress ProgressFunc) (*RunReport, error) {
	if onProgress == nil {
		onProgress = func(Severity, string) {}
	}

	index := registry.Index(models)
	for _, name := range plan.FlatOrder {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("plan references model %s which is not in the model manifest", name)
		}
	}

	// Session-scoped settings (replication role, FOREIGN_KEY_CHECKS,
	// pragmas) must hit the same session as the writes they cover, so
	// all destination work runs on one pinned connection.
	destConn, err := dest.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire destination connection: %w", err)
	}
	defer func() { _ = destConn.Close() }()

	report := &RunReport{
		Models:     []TableReport{},
		LinkTables: []TableReport{},
		Warnings:   []string{},
	}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		report.Warnings = append(report.Warnings, msg)
		onProgress(SeverityWarning, msg)
	}

	onProgress(SeverityInfo, "disabling referential integrity enforcement on destination")
	if err := dest.Driver.SetIntegrityEnforcement(ctx, destConn, false); err != nil {
		return nil, fmt.Errorf("failed to disable integrity enforcement: %w", err)
	}

	// Enforcement is restored unconditionally, even on early abort
	restored := false
	restore := func() error {
		if restored {
			return nil
		}
		restored = true
		return dest.Driver.SetIntegrityEnforcement(ctx, destConn, true)
	}
	defer func() { _ = restore() }()

	missingDest := make(map[string]bool)
	missingSource := make(map[string]bool)

	// Phase 1: destructive clean, dependents before dependencies
	onProgress(SeverityInfo, "phase 1/4: cleaning destination tables")
	for i := len(plan.FlatOrder) - 1; i >= 0; i-- {
		model := index[plan.FlatOrder[i]]

		exists, err := dest.Driver.TableExists(ctx, destConn, model.Table)
		if err != nil {
			return report, abort(onProgress, PhaseClean, model.Name, err)
		}
		if !exists {
			missingDest[model.Name] = true
			warn("table %s not found in destination; skipping clean for %s", model.Table, model.Name)
			continue
		}

		if err := dest.Driver.TruncateTable(ctx, destConn, model.Table); err != nil {
			if dest.Driver.IsMissingTable(err) {
				missingDest[model.Name] = true
				warn("table %s not found in destination; skipping clean for %s", model.Table, model.Name)
				continue
			}
			return report, abort(onProgress, PhaseClean, model.Name, err)
		}
		onProgress(SeverityInfo, fmt.Sprintf("cleaned table %s", model.Table))
	}

	// Phase 2: primary record copy, dependencies before dependents
	onProgress(SeverityInfo, "phase 2/4: copying primary records")
	for _, name := range plan.FlatOrder {
		model := index[name]
		entry := TableReport{Model: model.Name, Table: model.Table}

		if missingDest[model.Name] {
			entry.Skipped = true
			report.Models = append(report.Models, entry)
			warn("skipping %s: destination table %s is missing", model.Name, model.Table)
			continue
		}

		exists, err := source.Driver.TableExists(ctx, source.DB, model.Table)
		if err != nil {
			return report, abort(onProgress, PhaseCopy, model.Name, err)
		}
		if !exists {
			missingSource[model.Name] = true
			entry.Skipped = true
			report.Models = append(report.Models, entry)
			warn("table %s not found in source; skipping %s", model.Table, model.Name)
			continue
		}

		columns, rows, err := fetchRows(ctx, source, model.Table)
		if err != nil {
			// Source-side read failures do not endanger the
			// destination; continue with the next model
			entry.Skipped = true
			report.Models = append(report.Models, entry)
			warn("failed to read %s from source: %v", model.Name, err)
			continue
		}

		if len(rows) == 0 {
			report.Models = append(report.Models, entry)
			onProgress(SeverityInfo, fmt.Sprintf("copied %s: no rows", model.Name))
			continue
		}

		inserted, err := insertRows(ctx, dest.Driver, destConn, model.Table, columns, rows, primaryBatchSize)
		if err != nil {
			if dest.Driver.IsMissingTable(err) {
				missingDest[model.Name] = true
				entry.Skipped = true
				report.Models = append(report.Models, entry)
				warn("table %s not found in destination; skipping insert for %s", model.Table, model.Name)
				continue
			}
			// A partially-inserted dependency chain is unsafe to
			// continue from
			entry.Failed = true
			report.Models = append(report.Models, entry)
			return report, abort(onProgress, PhaseCopy, model.Name, err)
		}
		entry.Rows = inserted
		report.Models = append(report.Models, entry)
		onProgress(SeverityInfo, fmt.Sprintf("copied %s: %d rows", model.Name, inserted))
	}

	// Phase 3: link-table copy. Referenced rows are already present, so
	// ordering no longer matters and failures are best-effort warnings.
	onProgress(SeverityInfo, "phase 3/4: copying link tables")
	manifestLinks := make(map[string]bool)
	for _, link := range registry.LinkTables(models) {
		manifestLinks[link.Table] = true
	}
	for _, table := range plan.LinkTables {
		if !manifestLinks[table] {
			warn("link table %s from the plan has no to-many reference in the model manifest; skipping", table)
		}
	}
	for _, link := range registry.LinkTables(models) {
		if !contains(plan.LinkTables, link.Table) {
			continue
		}
		entry := TableReport{Model: link.Model, Table: link.Table}
		rows, err := copyLinkTable(ctx, source, dest.Driver, destConn, link.Table)
		if err != nil {
			entry.Skipped = true
			warn("failed to copy link table %s (%s.%s): %v", link.Table, link.Model, link.Field, err)
		} else {
			entry.Rows = rows
			onProgress(SeverityInfo, fmt.Sprintf("copied link table %s: %d rows", link.Table, rows))
		}
		report.LinkTables = append(report.LinkTables, entry)
	}

	onProgress(SeverityInfo, "restoring referential integrity enforcement on destination")
	if err := restore(); err != nil {
		return report, &FatalError{Phase: PhaseLinks, Err: fmt.Errorf("failed to restore integrity enforcement: %w", err)}
	}

	// Phase 4: advance identity generators past the migrated keys
	onProgress(SeverityInfo, "phase 4/4: resynchronizing primary key sequences")
	for _, name := range plan.FlatOrder {
		model := index[name]
		if !model.AutoIncrement {
			continue
		}
		if missingDest[model.Name] || missingSource[model.Name] {
			// Already warned about the absent table
			continue
		}
		if err := dest.Driver.ResyncSequence(ctx, destConn, model.Table, model.PrimaryKey); err != nil {
			if dest.Driver.IsMissingTable(err) {
				continue
			}
			warn("could not adjust sequence for table %s: %v", model.Table, err)
			continue
		}
		onProgress(SeverityInfo, fmt.Sprintf("resynchronized sequence for %s", model.Table))
	}

	onProgress(SeverityInfo, "migration complete")
	return report, nil
}

// copyLinkTable moves all association rows for one link table. Link
// tables are wiped before copy because phase 1 only truncates primary
// tables; a Postgres CASCADE truncate may have cleared them already, but
// other engines will not have.
func copyLinkTable(ctx context.Context, source Conn, destDriver database.Driver, destConn database.DBTX, table string) (int, error) {
	srcExists, err := source.Driver.TableExists(ctx, source.DB, table)
	if err != nil {
		return 0, err
	}
	if !srcExists {
		return 0, fmt.Errorf("table %s not found in source", table)
	}

	dstExists, err := destDriver.TableExists(ctx, destConn, table)
	if err != nil {
		return 0, err
	}
	if !dstExists {
		return 0, fmt.Errorf("table %s not found in destination", table)
	}

	if err := destDriver.TruncateTable(ctx, destConn, table); err != nil {
		return 0, err
	}

	columns, rows, err := fetchRows(ctx, source, table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return insertRows(ctx, destDriver, destConn, table, columns, rows, linkBatchSize)
}

func abort(onProgress ProgressFunc, phase Phase, model string, err error) error {
	fatal := &FatalError{Phase: phase, Model: model, Err: err}
	onProgress(SeverityError, fatal.Error())
	return fatal
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
