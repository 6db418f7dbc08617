package tracing

import (
	"context"
	"fmt"
	"sort"

	"github.com/sarchlab/rados/datarecording"
)

// Entry is the row type of one of the tables a DBTracer writes.
type Entry interface {
	ProcessEntry | TransitionEntry | AllocationEntry |
		FreeEntry | RequestEntry | RunEntry
}

// Filter narrows a listing of recorded events. A zero PID keeps every
// process and a zero Limit keeps every event.
type Filter struct {
	PID    int
	Limit  int
	Offset int
	Newest bool
}

func (f Filter) selection() datarecording.Selection {
	sel := datarecording.Selection{}.OrderByNumber("ID")

	if f.Newest {
		sel = sel.Descending()
	}

	if f.PID > 0 {
		sel = sel.Equal("PID", f.PID)
	}

	return sel.Page(f.Limit, f.Offset)
}

// TraceReader lists the events stored by a DBTracer.
type TraceReader struct {
	reader datarecording.DataReader
}

// NewTraceReader maps every tracer table on the reader.
func NewTraceReader(reader datarecording.DataReader) *TraceReader {
	for table, t := range traceTables {
		reader.MapTable(table, t.sample)
	}

	return &TraceReader{reader: reader}
}

// List returns the recorded events of one kind in recording order, together
// with the number of events that pass the filter ignoring its limit.
func List[T Entry](
	ctx context.Context,
	r *TraceReader,
	f Filter,
) ([]T, int, error) {
	table := tableOf[T]()

	rows, err := r.reader.Query(ctx, table, f.selection())
	if err != nil {
		return nil, 0, err
	}

	events := make([]T, 0, len(rows.Entries))
	for _, e := range rows.Entries {
		events = append(events, *e.(*T))
	}

	return events, rows.Total, nil
}

func tableOf[T Entry]() string {
	var zero T

	switch any(zero).(type) {
	case ProcessEntry:
		return TableProcesses
	case TransitionEntry:
		return TableTransitions
	case AllocationEntry:
		return TableAllocations
	case FreeEntry:
		return TableFrees
	case RequestEntry:
		return TableRequests
	default:
		return TableRuns
	}
}

type traceTable struct {
	sample any
	list   func(context.Context, *TraceReader, Filter) ([]any, int, error)
}

var traceTables = map[string]traceTable{
	TableProcesses:   {ProcessEntry{}, listAny[ProcessEntry]},
	TableTransitions: {TransitionEntry{}, listAny[TransitionEntry]},
	TableAllocations: {AllocationEntry{}, listAny[AllocationEntry]},
	TableFrees:       {FreeEntry{}, listAny[FreeEntry]},
	TableRequests:    {RequestEntry{}, listAny[RequestEntry]},
	TableRuns:        {RunEntry{}, listAny[RunEntry]},
}

func listAny[T Entry](
	ctx context.Context,
	r *TraceReader,
	f Filter,
) ([]any, int, error) {
	events, total, err := List[T](ctx, r, f)
	if err != nil {
		return nil, 0, err
	}

	list := make([]any, len(events))
	for i, e := range events {
		list[i] = e
	}

	return list, total, nil
}

// Tables returns the names of the tracer tables, sorted.
func Tables() []string {
	names := make([]string, 0, len(traceTables))
	for name := range traceTables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Sample returns a zero event of the table, which names its columns.
func Sample(table string) (any, bool) {
	t, ok := traceTables[table]
	return t.sample, ok
}

// Events lists the events of a table chosen at run time. Each event is a
// value of the table's entry type.
func (r *TraceReader) Events(
	ctx context.Context,
	table string,
	f Filter,
) ([]any, int, error) {
	t, ok := traceTables[table]
	if !ok {
		return nil, 0, fmt.Errorf("unknown table %q", table)
	}

	return t.list(ctx, r, f)
}
