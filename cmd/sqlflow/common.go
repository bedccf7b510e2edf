package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/giaosudau/sqlflow-sub007/internal/driver"
	"github.com/giaosudau/sqlflow-sub007/internal/ops"
	"github.com/giaosudau/sqlflow-sub007/internal/profile"
)

// commonFlags is embedded by every subcommand that needs a profile and a
// pipeline source file, per spec §7's CLI surface.
type commonFlags struct {
	Profile  string   `long:"profile" required:"true" description:"Path to a profile YAML document"`
	Pipeline string   `long:"pipeline" required:"true" description:"Path to a .sf pipeline file"`
	Var      []string `long:"var" description:"Override a pipeline variable, as NAME=VALUE (repeatable)"`
	Verbose  bool     `long:"verbose" description:"Enable debug-level logging"`
}

// newDriver loads f's profile and constructs a logrus-backed Logger tagged
// with a fresh run ID, so every log line from one invocation correlates
// under a single run_id field.
func (f commonFlags) newDriver() (*driver.Driver, ops.Logger, error) {
	prof, err := profile.Load(f.Profile)
	if err != nil {
		return nil, nil, err
	}

	level := logrus.InfoLevel
	if f.Verbose {
		level = logrus.DebugLevel
	}
	log := ops.NewLogrus(level).WithFields(logrus.Fields{"run_id": uuid.NewString()})

	return driver.New(prof, log), log, nil
}

func (f commonFlags) readSource() (string, error) {
	data, err := os.ReadFile(f.Pipeline)
	if err != nil {
		return "", fmt.Errorf("sqlflow: reading pipeline file: %w", err)
	}
	return string(data), nil
}

// parseVars turns a repeated --var NAME=VALUE flag slice into the map
// driver.Compile/Run/Validate expect as their CLI variable overlay.
func parseVars(assignments []string) (map[string]string, error) {
	out := make(map[string]string, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("sqlflow: --var %q is not of the form NAME=VALUE", a)
		}
		out[name] = value
	}
	return out, nil
}
