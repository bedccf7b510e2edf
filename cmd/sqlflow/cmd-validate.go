package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

type cmdValidate struct {
	commonFlags
	CompareVars []string `long:"compare-var" description:"A second variable overlay (NAME=VALUE, repeatable) to diff the plan against"`
}

func (cmd cmdValidate) Execute(_ []string) error {
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

	explanation, err := drv.Validate(src, cliVars)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "validate failed:", err)
		return err
	}

	for _, op := range explanation.Operations {
		fmt.Printf("%-20s %-12s %s\n", op.ID, op.Kind, op.Detail)
		if len(op.DependsOn) > 0 {
			fmt.Printf("%-20s   depends on: %v\n", "", op.DependsOn)
		}
	}

	if len(cmd.CompareVars) == 0 {
		return nil
	}

	compareVars, err := parseVars(cmd.CompareVars)
	if err != nil {
		return err
	}
	patch, err := drv.DiffValidate(src, cliVars, compareVars)
	if err != nil {
		return err
	}
	var pretty map[string]any
	if err := json.Unmarshal(patch, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		color.New(color.FgCyan).Fprintln(os.Stderr, "plan diff against --compare-var overlay:")
		return enc.Encode(pretty)
	}
	fmt.Println(string(patch))
	return nil
}
