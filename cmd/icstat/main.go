// icstat runs synthetic workloads through the inline cache engine and
// reports what the caches did.
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v2"

	"github.com/chazu/shapecache/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Directory to search upwards for " + config.FileName,
		Value: ".",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log verbosity (0=notice, 1=info, 2=debug); overrides the config file",
		Value: -1,
	}
	iterationsFlag = &cli.IntFlag{
		Name:    "iterations",
		Aliases: []string{"n"},
		Usage:   "Iterations per workload",
		Value:   1000,
	}
	workloadFlag = &cli.StringSliceFlag{
		Name:    "workload",
		Aliases: []string{"w"},
		Usage:   "Workloads to run (default all)",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "icstat",
		Usage: "inline cache statistics for synthetic workloads",
		Flags: []cli.Flag{configFlag, verbosityFlag},
		Commands: []*cli.Command{
			runCommand,
			traceCommand,
			shapesCommand,
			codeCommand,
			workloadsCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.FindAndLoad(ctx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if v := ctx.Int(verbosityFlag.Name); v >= 0 {
		cfg.Log.Verbosity = v
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)
	return cfg, nil
}

var workloadsCommand = &cli.Command{
	Name:  "workloads",
	Usage: "List the available workloads",
	Action: func(ctx *cli.Context) error {
		for _, w := range workloads {
			fmt.Fprintf(ctx.App.Writer, "%-10s %s\n", w.name, w.desc)
		}
		return nil
	},
}
