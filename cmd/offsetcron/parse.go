package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"offsetcron/internal/task/scheduler"
)

func parse(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	var failed int
	for _, s := range ctx.Args() {
		ms, err := scheduler.ParseMs(s)
		if err != nil {
			fmt.Fprintln(ctx.App.ErrWriter, err)
			failed++
			continue
		}
		fmt.Fprintf(ctx.App.Writer, "%q\t%d\t%s\n", s, ms, time.Duration(ms)*time.Millisecond)
	}
	if failed > 0 {
		return cli.NewExitError("", 1)
	}
	return nil
}
