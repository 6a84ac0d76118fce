package main

import (
	"context"
	"fmt"

	"github.com/speddy/speddy/core"
)

// materializeWeeks is the default span of materialize.
const materializeWeeks = 4

func (cli *commandLine) materialize(from, to core.Date) error {
	if from.IsZero() {
		from = cli.app.ScheduleSvc.Today()
	}
	if to.IsZero() {
		to = from.AddDays(7*materializeWeeks - 1)
	}

	created, err := cli.app.ScheduleSvc.GenerateAll(context.Background(), from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "generated %d sessions from %s to %s\n", len(created), from, to)
	return nil
}
