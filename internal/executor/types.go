package executor

import (
	"database/sql"
	"fmt"

	"github.com/dbporter/dbporter/database"
)

// Severity classifies a progress event
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// ProgressFunc receives progress events during execution. It is invoked
// synchronously after each meaningful step; a nil ProgressFunc is valid
// and reporting is never required for correctness.
type ProgressFunc func(severity Severity, message string)

// Phase identifies one of the four execution phases
type Phase string

const (
	PhaseClean     Phase = "clean"
	PhaseCopy      Phase = "copy"
	PhaseLinks     Phase = "link-tables"
	PhaseSequences Phase = "sequences"
)

// Conn pairs a live database handle with its engine driver
type Conn struct {
	DB     *sql.DB
	Driver database.Driver
}

// FatalError aborts a run. It carries the phase and model being
// processed when the underlying failure occurred.
type FatalError struct {
	Phase Phase
	Model string
	Err   error
}

func (e *FatalError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("migration aborted during %s phase: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("migration aborted during %s phase at %s: %v", e.Phase, e.Model, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// TableReport is the per-table outcome of a run
type TableReport struct {
	Model   string `json:"model,omitempty"`
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Skipped bool   `json:"skipped,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
}

// RunReport captures the outcome of one execution run. It is returned to
// the caller and not persisted here.
type RunReport struct {
	Models     []TableReport `json:"models"`
	LinkTables []TableReport `json:"link_tables"`
	Warnings   []string      `json:"warnings"`
}

// TotalRows returns the number of primary rows copied
func (r *RunReport) TotalRows() int {
	total := 0
	for _, m := range r.Models {
		total += m.Rows
	}
	return total
}

// Migrated returns the number of models copied without being skipped
func (r *RunReport) Migrated() int {
	count := 0
	for _, m := range r.Models {
		if !m.Skipped && !m.Failed {
			count++
		}
	}
	return count
}

// Skipped returns the number of models skipped due to missing tables
func (r *RunReport) Skipped() int {
	count := 0
	for _, m := range r.Models {
		if m.Skipped {
			count++
		}
	}
	return count
}
