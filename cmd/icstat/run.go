package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/shapecache/config"
	"github.com/chazu/shapecache/ic"
	"github.com/chazu/shapecache/ictrace"
	"github.com/chazu/shapecache/vm"
)

var isolatesFlag = &cli.IntFlag{
	Name:  "isolates",
	Usage: "Number of isolates to run concurrently",
	Value: 1,
}

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "Run workloads and print inline cache statistics",
	Flags:  []cli.Flag{isolatesFlag, iterationsFlag, workloadFlag},
	Action: runAction,
}

// newRunner creates an isolate and its engine.
func newRunner(cfg *config.Config, sink ictrace.Sink, iterations int) (*runner, error) {
	iso := vm.NewIsolate(cfg.VMOptions())
	e, err := ic.NewEngine(iso, cfg.ToIC(sink))
	if err != nil {
		return nil, err
	}
	return &runner{iso: iso, e: e, n: iterations}, nil
}

func (r *runner) runAll(ws []workload) error {
	for _, w := range ws {
		if err := w.run(r); err != nil {
			return fmt.Errorf("workload %s: %w", w.name, err)
		}
	}
	return nil
}

type isolateResult struct {
	stats   ic.ICStats
	elapsed time.Duration
}

func runAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	ws, err := selectWorkloads(ctx.StringSlice(workloadFlag.Name))
	if err != nil {
		return err
	}
	n := ctx.Int(isolatesFlag.Name)
	if n < 1 {
		return fmt.Errorf("--%s must be at least 1", isolatesFlag.Name)
	}

	sink, ring, store, err := cfg.OpenTrace()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	results := make([]isolateResult, n)
	g, gctx := errgroup.WithContext(ctx.Context)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := newRunner(cfg, sink, ctx.Int(iterationsFlag.Name))
			if err != nil {
				return err
			}
			start := time.Now()
			if err := r.runAll(ws); err != nil {
				return fmt.Errorf("isolate %d: %w", i, err)
			}
			results[i] = isolateResult{stats: ic.CollectICStats(r.e), elapsed: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	renderStats(ctx.App.Writer, results)
	if ring != nil {
		fmt.Fprintf(ctx.App.Writer, "\ntrace: %d events buffered, %d dropped\n", ring.Len(), ring.Dropped())
	}
	if store != nil {
		if err := store.Flush(ctx.Context); err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "trace: written to %s\n", cfg.Trace.Database)
	}
	return nil
}

func renderStats(w io.Writer, results []isolateResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Isolate", "Sites", "Mono", "Poly", "Mega", "Generic", "Hit %", "Mono %", "Stub cache", "Handlers", "Time"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	var total ic.ICStats
	var elapsed time.Duration
	for i, r := range results {
		table.Append(statsRow(strconv.Itoa(i), r.stats, r.elapsed))
		total.Add(r.stats)
		elapsed += r.elapsed
	}
	if len(results) > 1 {
		table.SetFooter(statsRow("total", total, elapsed))
	}
	table.Render()
}

func statsRow(label string, s ic.ICStats, elapsed time.Duration) []string {
	return []string{
		label,
		strconv.Itoa(s.TotalSites),
		strconv.Itoa(s.Monomorphic),
		strconv.Itoa(s.Polymorphic),
		strconv.Itoa(s.Megamorphic),
		strconv.Itoa(s.Generic),
		fmt.Sprintf("%.1f", s.HitRate),
		fmt.Sprintf("%.1f", s.MonomorphicRate),
		fmt.Sprintf("%d/%d", s.StubCacheEntries, s.StubCacheUpdates),
		strconv.FormatUint(s.HandlersCompiled, 10),
		elapsed.Round(time.Microsecond).String(),
	}
}
