package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "offsetcron"
	app.Usage = "run jobs at fixed offsets from UTC midnight"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "load a job file and run the scheduler until interrupted",
			Action: run,
			Flags:  runFlags,
		},
		{
			Name:      "next",
			Usage:     "print the next firing instants of an offset/interval pair",
			ArgsUsage: " ",
			Action:    next,
			Flags:     nextFlags,
		},
		{
			Name:      "parse",
			Usage:     "print the millisecond value of duration strings",
			ArgsUsage: "DURATION...",
			Action:    parse,
		},
		{
			Name:   "history",
			Usage:  "print recent job firings from the history store",
			Action: history,
			Flags:  historyFlags,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "offsetcron:", err)
		os.Exit(1)
	}
}
