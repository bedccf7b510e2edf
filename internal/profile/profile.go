// Package profile parses SQLFlow profile documents: the keyed YAML
// configuration spec §6 defines, via gopkg.in/yaml.v3 (the teacher's own
// config-document library).
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giaosudau/sqlflow-sub007/internal/engine"
)

// EngineSection is the "engines.duckdb" profile section. The key name is
// spec.md's normative external interface; internally it configures the
// SQLite-backed engine adapter (see DESIGN.md).
type EngineSection struct {
	Mode        engine.Mode `yaml:"mode"`
	Path        string      `yaml:"path"`
	MemoryLimit string      `yaml:"memory_limit"`
}

// ConnectorSection is one entry of the "connectors" map: a named, typed
// connector configuration.
type ConnectorSection struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// engines is the top-level "engines" key; spec.md only normatively defines
// the "duckdb" sub-key. Parse uses yaml.Unmarshal without KnownFields, so
// any other sub-key under "engines" is ignored rather than rejected.
type engines struct {
	DuckDB EngineSection `yaml:"duckdb"`
}

// Profile is a fully parsed profile document.
type Profile struct {
	Engines    engines                     `yaml:"engines"`
	Variables  map[string]string           `yaml:"variables"`
	Connectors map[string]ConnectorSection `yaml:"connectors"`
}

// Engine returns the duckdb-keyed engine section (see EngineSection's doc).
func (p *Profile) Engine() EngineSection {
	return p.Engines.DuckDB
}

// InvalidProfile is raised when a profile document is structurally invalid
// or fails a cross-field validation rule.
type InvalidProfile struct {
	Reason string
}

func (e *InvalidProfile) Error() string {
	return fmt.Sprintf("invalid profile: %s", e.Reason)
}

// Parse parses a profile document from raw YAML bytes.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &InvalidProfile{Reason: err.Error()}
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a profile document from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidProfile{Reason: err.Error()}
	}
	return Parse(data)
}

func validate(p *Profile) error {
	switch p.Engines.DuckDB.Mode {
	case "", engine.ModeMemory:
		// fine; "" defaults to memory in engine.Open
	case engine.ModePersistent:
		if p.Engines.DuckDB.Path == "" {
			return &InvalidProfile{Reason: "engines.duckdb.path is required when mode is persistent"}
		}
	default:
		return &InvalidProfile{Reason: fmt.Sprintf("engines.duckdb.mode must be memory or persistent, got %q", p.Engines.DuckDB.Mode)}
	}
	for name, c := range p.Connectors {
		if c.Type == "" {
			return &InvalidProfile{Reason: fmt.Sprintf("connectors.%s.type is required", name)}
		}
	}
	return nil
}
