package plan

import (
	"fmt"
	"strings"
)

// PlanCycle is raised by pass 4 when the operation graph is not acyclic.
type PlanCycle struct {
	Path []string
}

func (e *PlanCycle) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// UnknownReference is raised when a LoadStmt names a source that was never
// declared with SOURCE.
type UnknownReference struct {
	Name string
}

func (e *UnknownReference) Error() string {
	return fmt.Sprintf("unknown reference %q", e.Name)
}
