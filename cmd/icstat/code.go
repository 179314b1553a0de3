package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/ic"
)

var siteFlag = &cli.IntFlag{
	Name:  "site",
	Usage: "Only print handlers of the site with this id (0 for all)",
}

var codeCommand = &cli.Command{
	Name:   "code",
	Usage:  "Run workloads and print the code of every installed handler",
	Flags:  []cli.Flag{iterationsFlag, workloadFlag, siteFlag},
	Action: codeAction,
}

func codeAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	ws, err := selectWorkloads(ctx.StringSlice(workloadFlag.Name))
	if err != nil {
		return err
	}
	r, err := newRunner(cfg, nil, ctx.Int(iterationsFlag.Name))
	if err != nil {
		return err
	}
	if err := r.runAll(ws); err != nil {
		return err
	}

	only := ctx.Int(siteFlag.Name)
	w := ctx.App.Writer
	var failed error
	r.e.Sites().Each(func(site *ic.Site) {
		if failed != nil || (only != 0 && site.ID != only) {
			return
		}
		fmt.Fprintf(w, "=== %s ===\n", site)
		for _, h := range r.e.Handlers(site) {
			if h == nil {
				continue
			}
			code, err := r.e.Code(h)
			if err != nil {
				failed = err
				return
			}
			fmt.Fprintln(w, codegen.Listing(code))
		}
	})
	return failed
}
