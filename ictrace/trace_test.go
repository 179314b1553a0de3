package ictrace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(site int, kind string, reason Reason) Event {
	return Event{
		Isolate: uuid.New(),
		Site:    site,
		Kind:    kind,
		Name:    "x",
		From:    "uninitialized",
		To:      "monomorphic",
		Shape:   7,
		Reason:  reason,
		Time:    time.Unix(1700000000, int64(site)),
	}
}

func TestRingKeepsNewest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Record(event(i, "load", ReasonTransition))
	}

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Site)
	assert.Equal(t, 4, events[2].Site)
	assert.Equal(t, uint64(2), r.Dropped())
	assert.Equal(t, 3, r.Len())
}

func TestRingPartial(t *testing.T) {
	r := NewRing(4)
	r.Record(event(1, "store", ReasonTransition))

	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "store", events[0].Kind)
	assert.Zero(t, r.Dropped())
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRing(2), NewRing(2)
	Multi{a, b, Discard}.Record(event(1, "load", ReasonFlush))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestEventString(t *testing.T) {
	e := event(3, "load", ReasonTransition)
	e.Handler = "LoadField"
	assert.Equal(t, "load#3 x transition: uninitialized -> monomorphic shape#7 LoadField", e.String())

	e = Event{Kind: "compare", Site: 1, From: "smi", To: "number", Reason: ReasonTransition}
	assert.Equal(t, "compare#1 - transition: smi -> number", e.String())
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer store.Close()

	in := event(1, "load", ReasonTransition)
	in.Detail = "first"
	store.Record(in)
	store.Record(event(2, "store", ReasonUncacheable))
	store.Record(event(3, "load", ReasonInvalidation))

	all, err := store.Query(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, in.Isolate, all[0].Isolate)
	assert.Equal(t, "first", all[0].Detail)
	assert.Equal(t, uint32(7), all[0].Shape)
	assert.True(t, in.Time.Equal(all[0].Time))

	loads, err := store.Query(ctx, "load", 1)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, 1, loads[0].Site)

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SummaryRow{
		{Kind: "load", Reason: ReasonInvalidation, Count: 1},
		{Kind: "load", Reason: ReasonTransition, Count: 1},
		{Kind: "store", Reason: ReasonUncacheable, Count: 1},
	}, summary)
}

func TestSQLiteFlushThreshold(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()
	store.FlushEvery = 2

	store.Record(event(1, "load", ReasonTransition))
	store.Record(event(2, "load", ReasonTransition))
	assert.Empty(t, store.buf)

	store.Record(event(3, "load", ReasonTransition))
	assert.Len(t, store.buf, 1)

	events, err := store.Query(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
