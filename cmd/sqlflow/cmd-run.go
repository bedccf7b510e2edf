package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/giaosudau/sqlflow-sub007/internal/executor"
)

type cmdRun struct {
	commonFlags
}

func (cmd cmdRun) Execute(_ []string) error {
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

	result, err := drv.Run(context.Background(), src, cliVars)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "run failed:", err)
		return err
	}

	for _, op := range result.Operations {
		printOperationResult(op)
	}

	if result.Failed() {
		return fmt.Errorf("sqlflow: one or more operations failed")
	}
	return nil
}

func printOperationResult(op executor.OperationResult) {
	switch op.Status {
	case executor.StatusSucceeded:
		color.New(color.FgGreen).Fprintf(os.Stderr, "  ok      %s (%d rows)\n", op.ID, op.Rows)
	case executor.StatusFailed:
		color.New(color.FgRed).Fprintf(os.Stderr, "  failed  %s: %v\n", op.ID, op.Err)
	case executor.StatusSkipped:
		color.New(color.FgYellow).Fprintf(os.Stderr, "  skipped %s\n", op.ID)
	case executor.StatusCanceled:
		color.New(color.FgYellow).Fprintf(os.Stderr, "  canceled %s\n", op.ID)
	}
}
