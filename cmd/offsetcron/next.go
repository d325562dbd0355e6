package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"offsetcron/internal/task/scheduler"
)

var (
	nextAt     string
	nextRepeat string
	nextCount  int
	nextFrom   string

	nextFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "at, a",
			Usage:       "offset from UTC midnight, in ms or as a duration like 2h30m",
			Destination: &nextAt,
		},
		cli.StringFlag{
			Name:        "repeat, r",
			Usage:       "repeat interval, in ms or as a duration (default: one day)",
			Destination: &nextRepeat,
		},
		cli.IntFlag{
			Name:        "count, n",
			Usage:       "how many instants to print",
			Value:       5,
			Destination: &nextCount,
		},
		cli.StringFlag{
			Name:        "from",
			Usage:       "RFC 3339 reference instant (default: now)",
			Destination: &nextFrom,
		},
	}
)

func next(ctx *cli.Context) error {
	if nextAt == "" {
		return errors.New("next: --at is required")
	}
	sched, err := scheduler.NewSchedule(scheduler.Text(nextAt), scheduler.Text(nextRepeat))
	if err != nil {
		return fmt.Errorf("next: %w", err)
	}
	now := time.Now().UTC()
	from := now
	if nextFrom != "" {
		if from, err = time.Parse(time.RFC3339, nextFrom); err != nil {
			return fmt.Errorf("next: --from: %w", err)
		}
	}
	for _, t := range scheduler.Preview(sched, from, nextCount) {
		fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", t.Format("2006-01-02 15:04:05.000Z07:00"), humanize.RelTime(t, now, "ago", "from now"))
	}
	return nil
}
