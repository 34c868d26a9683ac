package planner

import (
	"fmt"
	"sort"
	"strings"
)

// PlanEntry is one model inside a migration group, with the qualified
// names of the models it depends on.
type PlanEntry struct {
	Model        string   `json:"model"`
	Dependencies []string `json:"dependencies"`
}

// Plan is the full output of dependency planning. It is the sole
// artifact handed to execution and carries no live handles, so it can be
// persisted and executed much later.
type Plan struct {
	// Groups is the ordered migration levels. Order between groups is
	// significant; order within a group is not.
	Groups [][]PlanEntry `json:"grouped_migration_order"`
	// FlatOrder is the concatenation of all groups, persisted for
	// simpler execution-time consumption. The destructive clean phase
	// walks it in reverse.
	FlatOrder []string `json:"migration_order"`
	// LinkTables holds the storage names of the link tables behind
	// to-many references
	LinkTables []string `json:"m2m_through_models"`
	Warnings   []string `json:"warnings"`
}

// Models returns the total number of models in the plan
func (p *Plan) Models() int {
	return len(p.FlatOrder)
}

// CycleError reports an unresolvable dependency cycle. Names holds every
// model left unordered, sorted by qualified name.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected among models: %s", strings.Join(e.Names, ", "))
}

func newCycleError(names []string) *CycleError {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return &CycleError{Names: sorted}
}
