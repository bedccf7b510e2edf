package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
)

type cmdDescribe struct {
	Profile   string `long:"profile" required:"true" description:"Path to a profile YAML document"`
	Connector string `long:"connector" required:"true" description:"Name of a profile connector to describe"`
	Object    string `long:"object" description:"Object name to describe (table, file path, or URL, connector-dependent)"`
}

func (cmd cmdDescribe) Execute(_ []string) error {
	cf := commonFlags{Profile: cmd.Profile}
	drv, _, err := cf.newDriver()
	if err != nil {
		return err
	}

	sch, err := drv.DescribeConnector(context.Background(), cmd.Connector, cmd.Object)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "describe failed:", err)
		return err
	}

	for _, col := range sch {
		fmt.Printf("%-32s %s\n", col.Name, col.Type)
	}
	return nil
}
