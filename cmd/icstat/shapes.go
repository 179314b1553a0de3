package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"github.com/chazu/shapecache/vm"
)

var outFlag = &cli.StringFlag{
	Name:    "out",
	Aliases: []string{"o"},
	Usage:   "Write DOT output to this file instead of stdout",
}

var shapesCommand = &cli.Command{
	Name:   "shapes",
	Usage:  "Run workloads and dump the shape transition tree as DOT",
	Flags:  []cli.Flag{iterationsFlag, workloadFlag, outFlag},
	Action: shapesAction,
}

func shapesAction(ctx *cli.Context) error {
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

	dot := render.DOT(shapeGraph(r.iso.Shapes), "shapes")
	if path := ctx.String(outFlag.Name); path != "" {
		if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d shapes)\n", path, r.iso.Shapes.Count())
		return nil
	}
	_, err = fmt.Fprint(ctx.App.Writer, dot)
	return err
}

// shapeGraph builds the transition tree rooted at every root shape. Each
// shape is a node; each transition an edge from parent to child.
func shapeGraph(f *vm.ShapeFactory) *lattice.Graph {
	g := &lattice.Graph{}
	seen := make(map[*vm.Shape]bool)
	stack := f.Roots()
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[s] {
			continue
		}
		seen[s] = true
		g.Nodes = append(g.Nodes, s.String())
		for _, child := range s.Transitions() {
			g.Edges = append(g.Edges, lattice.Edge{Caller: s.String(), Callee: child.String()})
			stack = append(stack, child)
		}
	}
	g.Dedup()
	return g
}
