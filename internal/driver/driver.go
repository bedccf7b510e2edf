// Package driver implements the four entry points spec §6 names
// (Compile, Run, Validate, DescribeConnector): the single place cmd/sqlflow
// and tests construct a pipeline run against a loaded profile.Profile.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/engine"
	"github.com/giaosudau/sqlflow-sub007/internal/executor"
	"github.com/giaosudau/sqlflow-sub007/internal/ops"
	"github.com/giaosudau/sqlflow-sub007/internal/parser"
	"github.com/giaosudau/sqlflow-sub007/internal/plan"
	"github.com/giaosudau/sqlflow-sub007/internal/profile"
	"github.com/giaosudau/sqlflow-sub007/internal/variables"
)

// Driver ties a loaded profile to the compiler and executor. One Driver
// typically backs one process's worth of cmd/sqlflow invocations, so its
// DescribeConnector cache persists across calls within that lifetime.
type Driver struct {
	profile *profile.Profile
	log     ops.Logger

	describeCache *lru.Cache[string, connector.Schema]
}

// describeCacheSize bounds the per-(connector name, object) describe() cache;
// pipelines reference a source's schema at most a handful of times, so this
// easily covers a realistic run.
const describeCacheSize = 256

// New constructs a Driver against prof. log may be nil (ops.Discard is used).
func New(prof *profile.Profile, log ops.Logger) *Driver {
	if log == nil {
		log = ops.Discard
	}
	cache, _ := lru.New[string, connector.Schema](describeCacheSize)
	return &Driver{profile: prof, log: log, describeCache: cache}
}

func (d *Driver) resolvedVariables(cliVars map[string]string) *variables.ResolvedVariables {
	return variables.NewResolvedVariables(variables.Scopes{
		CLI:     cliVars,
		Profile: d.profile.Variables,
	})
}

// Compile parses src and lowers it into an executable Plan against cliVars
// overlaid on the profile's own variables.
func (d *Driver) Compile(src string, cliVars map[string]string) (*plan.Plan, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return plan.Compile(prog, d.resolvedVariables(cliVars))
}

// Run compiles src and executes the resulting plan against an engine opened
// per the profile's engine section, returning the per-operation result.
func (d *Driver) Run(ctx context.Context, src string, cliVars map[string]string) (*executor.RunResult, error) {
	p, err := d.Compile(src, cliVars)
	if err != nil {
		return nil, err
	}

	eng, err := engine.Open(ctx, engine.Config{
		Mode:        d.profile.Engine().Mode,
		Path:        d.profile.Engine().Path,
		MemoryLimit: d.profile.Engine().MemoryLimit,
		Logger:      d.log,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	exec := executor.New(eng, d.log)
	exec.WithProfileConnectors(d.profileConnectors())
	return exec.Run(ctx, p)
}

func (d *Driver) profileConnectors() map[string]executor.ProfileConnector {
	out := make(map[string]executor.ProfileConnector, len(d.profile.Connectors))
	for name, c := range d.profile.Connectors {
		out[name] = executor.ProfileConnector{Type: c.Type, Params: c.Params}
	}
	return out
}

// Explanation is Validate's human-readable plan description: the compiled
// operations in execution order, with their dependencies, suitable for
// --dry-run CLI output.
type Explanation struct {
	Operations []OperationExplanation `json:"operations"`
}

// OperationExplanation describes one plan operation for Explanation.
type OperationExplanation struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
	Detail    string   `json:"detail"`
}

// Validate compiles src and produces a human-readable Explanation of the
// resulting plan without executing it, per SPEC_FULL.md's supplement #1.
func (d *Driver) Validate(src string, cliVars map[string]string) (*Explanation, error) {
	p, err := d.Compile(src, cliVars)
	if err != nil {
		return nil, err
	}
	return explain(p), nil
}

func explain(p *plan.Plan) *Explanation {
	out := &Explanation{Operations: make([]OperationExplanation, 0, len(p.Operations))}
	for _, op := range p.Operations {
		deps := append([]string{}, op.DependsOn...)
		sort.Strings(deps)
		out.Operations = append(out.Operations, OperationExplanation{
			ID:        op.ID,
			Kind:      string(op.Kind),
			DependsOn: deps,
			Detail:    describeOperation(op),
		})
	}
	return out
}

func describeOperation(op *plan.Operation) string {
	switch pl := op.Payload.(type) {
	case *plan.SourceDefPayload:
		if pl.TypeTag != "" {
			return fmt.Sprintf("declares source %q of type %s", pl.Name, pl.TypeTag)
		}
		return fmt.Sprintf("declares source %q from profile connector %q", pl.Name, pl.FromRef)
	case *plan.LoadPayload:
		detail := fmt.Sprintf("loads %q from %q in %s mode", pl.TargetTable, pl.SourceRef, pl.Mode)
		if len(pl.MergeKeys) > 0 {
			detail += fmt.Sprintf(" on keys [%s]", strings.Join(pl.MergeKeys, ", "))
		}
		return detail
	case *plan.TransformPayload:
		if pl.ProducedTable != "" {
			return fmt.Sprintf("runs a transform producing table %q", pl.ProducedTable)
		}
		return "runs a transform statement"
	case *plan.ExportPayload:
		return fmt.Sprintf("exports a query to %q via %s", pl.DestinationURI, pl.TypeTag)
	default:
		return "unknown operation"
	}
}

// DiffValidate runs Validate against two variable overlays of the same
// source and returns a JSON Patch describing what changed between them, so
// a human can see exactly what a SET or CLI override altered in the
// compiled plan.
func (d *Driver) DiffValidate(src string, before, after map[string]string) ([]byte, error) {
	eBefore, err := d.Validate(src, before)
	if err != nil {
		return nil, fmt.Errorf("driver: compiling with the first variable overlay: %w", err)
	}
	eAfter, err := d.Validate(src, after)
	if err != nil {
		return nil, fmt.Errorf("driver: compiling with the second variable overlay: %w", err)
	}

	jsonBefore, err := json.Marshal(eBefore)
	if err != nil {
		return nil, err
	}
	jsonAfter, err := json.Marshal(eAfter)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(jsonBefore, jsonAfter)
}

// DescribeConnector reports the schema of a named profile connector's
// object, caching per (connector name, object) for this Driver's lifetime
// since schema introspection is one of the more expensive connector calls.
func (d *Driver) DescribeConnector(ctx context.Context, name, object string) (connector.Schema, error) {
	cacheKey := name + "\x00" + object
	if sch, ok := d.describeCache.Get(cacheKey); ok {
		return sch, nil
	}

	cfg, ok := d.profile.Connectors[name]
	if !ok {
		return nil, &connector.ConnectorConfig{Connector: name, Reason: "no such connector in profile"}
	}

	eng, err := engine.Open(ctx, engine.Config{Mode: engine.ModeMemory, Logger: d.log})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	exec := executor.New(eng, d.log)
	sch, err := exec.DescribeSourceType(ctx, cfg.Type, cfg.Params, object)
	if err != nil {
		return nil, err
	}
	d.describeCache.Add(cacheKey, sch)
	return sch, nil
}
