package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

type cmdCompile struct {
	commonFlags
}

func (cmd cmdCompile) Execute(_ []string) error {
	src, err := cmd.readSource()
	if err != nil {
		return err
	}
	cliVars, err := parseVars(cmd.Var)
	if err != nil {
		return err
	}
	drv, _, err := cmd.newDriver()
	if err != nil {
		return err
	}

	p, err := drv.Compile(src, cliVars)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "compile failed:", err)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, op := range p.Operations {
		if err := enc.Encode(map[string]any{
			"id":         op.ID,
			"kind":       op.Kind,
			"depends_on": op.DependsOn,
		}); err != nil {
			return err
		}
	}
	color.New(color.FgGreen).Fprintln(os.Stderr, fmt.Sprintf("compiled %d operations", len(p.Operations)))
	return nil
}
