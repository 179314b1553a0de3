package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/chazu/shapecache/ictrace"
)

var (
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Trace database (default trace.database from the config)",
	}
	kindFlag = &cli.StringFlag{
		Name:  "kind",
		Usage: "Only show events for sites of this kind, e.g. load or keyed-store",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of events to print (0 for all)",
		Value: 100,
	}
	summaryFlag = &cli.BoolFlag{
		Name:  "summary",
		Usage: "Print event counts per kind and reason instead of events",
	}
)

var traceCommand = &cli.Command{
	Name:   "trace",
	Usage:  "Inspect a recorded inline cache trace",
	Flags:  []cli.Flag{dbFlag, kindFlag, limitFlag, summaryFlag},
	Action: traceAction,
}

func traceAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	path := ctx.String(dbFlag.Name)
	if path == "" {
		path = cfg.Trace.Database
	}
	if path == "" {
		return fmt.Errorf("no trace database: pass --%s or set trace.database", dbFlag.Name)
	}
	store, err := ictrace.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if ctx.Bool(summaryFlag.Name) {
		rows, err := store.Summary(ctx.Context)
		if err != nil {
			return err
		}
		renderSummary(ctx.App.Writer, rows)
		return nil
	}
	events, err := store.Query(ctx.Context, ctx.String(kindFlag.Name), ctx.Int(limitFlag.Name))
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Fprintln(ctx.App.Writer, e)
	}
	return nil
}

func renderSummary(w io.Writer, rows []ictrace.SummaryRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Reason", "Events"})
	total := 0
	for _, r := range rows {
		table.Append([]string{r.Kind, string(r.Reason), strconv.Itoa(r.Count)})
		total += r.Count
	}
	table.SetFooter([]string{"", "total", strconv.Itoa(total)})
	table.Render()
}
