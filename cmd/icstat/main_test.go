package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zboralski/lattice/render"

	"github.com/chazu/shapecache/config"
	"github.com/chazu/shapecache/ic"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	require.NoError(t, app.Run(append([]string{"icstat", "--verbosity", "0"}, args...)))
	return out.String()
}

func testRunner(t *testing.T, n int) *runner {
	t.Helper()
	r, err := newRunner(config.Default(), nil, n)
	require.NoError(t, err)
	return r
}

func TestWorkloadsRun(t *testing.T) {
	for _, w := range workloads {
		t.Run(w.name, func(t *testing.T) {
			r := testRunner(t, 200)
			require.NoError(t, w.run(r))
			stats := ic.CollectICStats(r.e)
			require.NotZero(t, stats.TotalHits+stats.CompareHits, "workload never hit a cache")
		})
	}
}

func TestWorkloadStates(t *testing.T) {
	r := testRunner(t, 100)
	require.NoError(t, r.runAll(workloads))
	sites := r.e.Sites()

	require.Equal(t, ic.Monomorphic, sites.Get(siteID(1, 0)).State)
	require.Equal(t, ic.Monomorphic, sites.Get(siteID(1, 2)).State)
	require.Equal(t, ic.Polymorphic, sites.Get(siteID(2, 0)).State)
	require.Equal(t, ic.Megamorphic, sites.Get(siteID(2, 1)).State)
	require.Equal(t, ic.Polymorphic, sites.Get(siteID(3, 0)).State)
	require.Equal(t, ic.Monomorphic, sites.Get(siteID(4, 0)).State)
	require.Equal(t, ic.Monomorphic, sites.Get(siteID(4, 2)).State)
	require.Equal(t, ic.CompareNumber, r.e.CompareSite(siteID(6, 0), 0).State)
	require.Equal(t, ic.CompareInternalizedString, r.e.CompareSite(siteID(6, 1), 0).State)
}

func TestSelectWorkloads(t *testing.T) {
	all, err := selectWorkloads(nil)
	require.NoError(t, err)
	require.Len(t, all, len(workloads))

	some, err := selectWorkloads([]string{"calls", "points"})
	require.NoError(t, err)
	require.Equal(t, "calls", some[0].name)
	require.Equal(t, "points", some[1].name)

	_, err = selectWorkloads([]string{"nope"})
	require.ErrorContains(t, err, "unknown workload")
}

func TestRunCommand(t *testing.T) {
	out := runApp(t, "--config", t.TempDir(), "run", "--isolates", "3", "-n", "50")
	lower := strings.ToLower(out)
	require.Contains(t, lower, "total")
	require.Contains(t, lower, "hit %")
}

func TestShapeGraph(t *testing.T) {
	r := testRunner(t, 10)
	require.NoError(t, runPoints(r))
	g := shapeGraph(r.iso.Shapes)
	require.NotEmpty(t, g.Nodes)
	require.NotEmpty(t, g.Edges)
	require.LessOrEqual(t, len(g.Nodes), r.iso.Shapes.Count())
	require.NotEmpty(t, render.DOT(g, "shapes"))

	path := filepath.Join(t.TempDir(), "shapes.dot")
	runApp(t, "--config", t.TempDir(), "shapes", "-n", "10", "-w", "points", "-o", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestCodeCommand(t *testing.T) {
	out := runApp(t, "--config", t.TempDir(), "code", "-n", "10", "-w", "points", "--site", "100")
	require.Contains(t, out, "===")
	require.Contains(t, out, "LoadField")
	require.Equal(t, 1, strings.Count(out, "=== "), "only the selected site is printed")
}

func TestTraceCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`
[trace]
enabled = true
ring_size = 64
database = "trace.db"
`), 0644))

	out := runApp(t, "--config", dir, "run", "-n", "20", "-w", "points,shapes")
	require.Contains(t, out, "trace.db")

	summary := runApp(t, "--config", dir, "trace", "--summary")
	require.Contains(t, summary, "transition")
	require.Contains(t, summary, "load")

	events := runApp(t, "--config", dir, "trace", "--kind", "store", "--limit", "5")
	lines := strings.Split(strings.TrimSpace(events), "\n")
	require.NotEmpty(t, lines)
	require.LessOrEqual(t, len(lines), 5)
	for _, l := range lines {
		require.True(t, strings.HasPrefix(l, "store#"), l)
	}
}

func TestWorkloadsCommand(t *testing.T) {
	out := runApp(t, "workloads")
	for _, name := range workloadNames() {
		require.Contains(t, out, name)
	}
}
