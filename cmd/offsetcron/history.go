package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"offsetcron/internal/app"
	"offsetcron/internal/storage"
)

var (
	historyCount  int
	historyJob    string
	historyFailed bool

	historyFlags = []cli.Flag{
		configFlag,
		cli.IntFlag{
			Name:        "count, n",
			Usage:       "how many firings to print",
			Value:       20,
			Destination: &historyCount,
		},
		cli.StringFlag{
			Name:        "job, j",
			Usage:       "only firings of this job",
			Destination: &historyJob,
		},
		cli.BoolFlag{
			Name:        "failed, f",
			Usage:       "only failed firings",
			Destination: &historyFailed,
		},
	}
)

func history(ctx *cli.Context) error {
	st, err := app.OpenHistory(configPath)
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("history: no storage configured in " + configPath)
	}
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer st.Close()

	rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := st.RecentFirings(rctx, storage.Query{Limit: historyCount, Name: historyJob, FailedOnly: historyFailed})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(ctx.App.Writer, "no firings recorded")
		return nil
	}

	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIRED\tJOB\tTOOK\tRESULT\tNEXT")
	now := time.Now()
	for _, f := range rows {
		result := "ok"
		if !f.OK {
			result = "failed: " + f.Error
		}
		next := "-"
		if !f.Next.IsZero() {
			next = humanize.RelTime(f.Next, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(f.Fired, now, "ago", "from now"),
			f.Name,
			time.Duration(f.TookMS)*time.Millisecond,
			result,
			next,
		)
	}
	return tw.Flush()
}
