// Package report renders kernel snapshots as text tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

// Processes writes the process table.
func Processes(w io.Writer, processes []process.Process) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tName\tState")

	for _, p := range processes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.PID, p.Name, p.State)
	}

	return tw.Flush()
}

// PageTable writes one line per page.
func PageTable(w io.Writer, pageSize int, pages []memory.PageInfo) error {
	fmt.Fprintf(w, "Memory Layout (Paged, %d units per page):\n", pageSize)

	tw := newTable(w)
	fmt.Fprintln(tw, "Page\tStatus\tPID\tResourceID")

	for _, p := range pages {
		status, pid, rid := "Allocated", strconv.Itoa(int(p.Owner)), "-"
		if p.Free {
			status, pid = "Free", "-"
		}

		if p.HasResource {
			rid = strconv.Itoa(int(p.Resource))
		}

		fmt.Fprintf(tw, "Page %d\t%s\t%s\t%s\n", p.Index, status, pid, rid)
	}

	return tw.Flush()
}

// MemoryMap writes the owner of every unit, one page per line. Free units
// are shown as dots.
func MemoryMap(w io.Writer, pageSize int, units []process.PID) error {
	if pageSize <= 0 {
		return fmt.Errorf("page size %d is not positive", pageSize)
	}

	var b strings.Builder

	b.WriteString("Detailed Memory Map:\n")

	for start := 0; start < len(units); start += pageSize {
		end := min(start+pageSize, len(units))
		fmt.Fprintf(&b, "Page %d [%d-%d] ", start/pageSize, start, end-1)

		for _, owner := range units[start:end] {
			if owner == process.NoPID {
				b.WriteByte('.')
				continue
			}

			b.WriteString(strconv.Itoa(int(owner)))
		}

		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// WaitGraph writes what each process holds and requests, followed by the
// wait-for edges.
func WaitGraph(w io.Writer, rows []resource.Row, edges []resource.Edge) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tHeld\tRequested")

	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.PID, ids(r.Held), ids(r.Requested))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range edges {
		fmt.Fprintf(w, "P%d waits for P%d (resource %d)\n",
			e.From, e.To, e.Resource)
	}

	return nil
}

// State writes the process table, the page table, the unit map, and the
// wait graph of one kernel state, separated by blank lines.
func State(w io.Writer, s kernel.State) error {
	if err := Processes(w, s.Processes); err != nil {
		return err
	}

	fmt.Fprintln(w)

	if err := PageTable(w, s.Geometry.PageSize, s.Memory.Pages); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d of %d pages free\n",
		s.Memory.FreePages, s.Geometry.NumPages)
	fmt.Fprintln(w)

	if err := MemoryMap(w, s.Geometry.PageSize, s.Memory.Units); err != nil {
		return err
	}

	fmt.Fprintln(w)

	return WaitGraph(w, s.WaitGraph.Rows, s.WaitGraph.Edges)
}

// Runs writes the run log of a scheduling cycle.
func Runs(w io.Writer, events []scheduler.RunEvent) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tName\tRan")

	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.PID, e.Name, e.End.Sub(e.Start))
	}

	return tw.Flush()
}

func ids(list []resource.ID) string {
	if len(list) == 0 {
		return "-"
	}

	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = strconv.Itoa(int(id))
	}

	return strings.Join(parts, ",")
}
