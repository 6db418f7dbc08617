// Package memory implements a paged allocator over a fixed array of units.
// Pages are the unit of allocation: every unit in a page always belongs to
// the same process.
package memory

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

// ErrInvalidGeometry is returned when the memory cannot be divided into pages
// of the requested size.
var ErrInvalidGeometry = errors.New("invalid memory geometry")

// Outcome is the result category of an allocation.
type Outcome int

// The possible outcomes of an allocation.
const (
	Granted Outcome = iota
	Busy
	OutOfMemory
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Busy:
		return "busy"
	case OutOfMemory:
		return "out of memory"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes the outcome of an allocation. Owner is set for Busy
// results. Pages lists the pages granted.
type Result struct {
	Outcome Outcome
	Owner   process.PID
	Pages   []int
}

// Allocator owns the memory units and the mapping from resources to pages.
// It is not safe for concurrent use.
type Allocator struct {
	units    []process.PID
	pageSize int
	numPages int

	pagesOf  map[resource.ID][]int
	resOrder []resource.ID
}

// NewAllocator creates an allocator with totalUnits units divided into pages
// of pageSize units. All units start free.
func NewAllocator(totalUnits, pageSize int) (*Allocator, error) {
	if totalUnits <= 0 || pageSize <= 0 {
		return nil, fmt.Errorf("%w: size %d, page size %d",
			ErrInvalidGeometry, totalUnits, pageSize)
	}

	if totalUnits%pageSize != 0 {
		return nil, fmt.Errorf("%w: page size %d does not divide size %d",
			ErrInvalidGeometry, pageSize, totalUnits)
	}

	a := &Allocator{
		units:    make([]process.PID, totalUnits),
		pageSize: pageSize,
		numPages: totalUnits / pageSize,
		pagesOf:  make(map[resource.ID][]int),
	}

	for i := range a.units {
		a.units[i] = process.NoPID
	}

	return a, nil
}

// Size returns the number of units.
func (a *Allocator) Size() int {
	return len(a.units)
}

// PageSize returns the number of units in a page.
func (a *Allocator) PageSize() int {
	return a.pageSize
}

// NumPages returns the number of pages.
func (a *Allocator) NumPages() int {
	return a.numPages
}

// PagesNeeded returns how many pages an allocation of size units takes. A
// resource always takes at least one page.
func (a *Allocator) PagesNeeded(size int) int {
	if size <= 0 {
		return 1
	}

	needed := size / a.pageSize
	if size%a.pageSize != 0 {
		needed++
	}

	return needed
}

// Allocate binds enough free pages for size units to the resource on behalf
// of pid. If another process owns the resource, nothing changes and the
// result is Busy. If there are not enough free pages, nothing changes and the
// result is OutOfMemory. Re-allocating a resource that pid already owns
// moves it onto the new pages and frees the old ones.
func (a *Allocator) Allocate(
	pid process.PID,
	size int,
	id resource.ID,
) Result {
	a.mustBeValidOwner(pid)

	if owner, ok := a.OwnerOf(id); ok && owner != pid {
		return Result{Outcome: Busy, Owner: owner}
	}

	needed := a.PagesNeeded(size)
	if needed > a.numPages {
		return Result{Outcome: OutOfMemory}
	}

	pages := a.findFreePages(needed)
	if len(pages) < needed {
		return Result{Outcome: OutOfMemory}
	}

	previous, remapped := a.pagesOf[id]

	for _, page := range pages {
		a.fillPage(page, pid)
	}

	for _, page := range previous {
		a.fillPage(page, process.NoPID)
	}

	a.pagesOf[id] = pages
	if !remapped {
		a.resOrder = append(a.resOrder, id)
	}

	return Result{Outcome: Granted, Owner: pid, Pages: pages}
}

// findFreePages returns up to n free pages, lowest index first.
func (a *Allocator) findFreePages(n int) []int {
	pages := make([]int, 0, n)

	for page := 0; page < a.numPages && len(pages) < n; page++ {
		if a.isPageFree(page) {
			pages = append(pages, page)
		}
	}

	return pages
}

func (a *Allocator) isPageFree(page int) bool {
	start, end := a.pageBounds(page)
	for _, owner := range a.units[start:end] {
		if owner != process.NoPID {
			return false
		}
	}

	return true
}

func (a *Allocator) fillPage(page int, owner process.PID) {
	start, end := a.pageBounds(page)
	for i := start; i < end; i++ {
		a.units[i] = owner
	}
}

func (a *Allocator) pageBounds(page int) (start, end int) {
	start = page * a.pageSize
	return start, start + a.pageSize
}

// Free reclaims the pages of every resource pid owns and forgets those
// resources. It returns the resources freed, in the order they were first
// allocated. Freeing a process that owns nothing is a no-op.
func (a *Allocator) Free(pid process.PID) []resource.ID {
	var freed []resource.ID

	kept := a.resOrder[:0]
	for _, id := range a.resOrder {
		if a.pageOwner(a.pagesOf[id][0]) != pid {
			kept = append(kept, id)
			continue
		}

		for _, page := range a.pagesOf[id] {
			a.fillPage(page, process.NoPID)
		}

		delete(a.pagesOf, id)
		freed = append(freed, id)
	}

	a.resOrder = kept

	return freed
}

// OwnerOf returns the process owning the resource, if the resource is
// allocated.
func (a *Allocator) OwnerOf(id resource.ID) (process.PID, bool) {
	pages, ok := a.pagesOf[id]
	if !ok {
		return process.NoPID, false
	}

	owner := a.pageOwner(pages[0])
	if owner == process.NoPID {
		return process.NoPID, false
	}

	return owner, true
}

// PagesOf returns the pages bound to the resource.
func (a *Allocator) PagesOf(id resource.ID) []int {
	pages := a.pagesOf[id]

	list := make([]int, len(pages))
	copy(list, pages)

	return list
}

// Resources returns the allocated resources, in the order they were first
// allocated.
func (a *Allocator) Resources() []resource.ID {
	list := make([]resource.ID, len(a.resOrder))
	copy(list, a.resOrder)

	return list
}

// FreePages returns the number of pages that no process owns.
func (a *Allocator) FreePages() int {
	n := 0
	for page := 0; page < a.numPages; page++ {
		if a.isPageFree(page) {
			n++
		}
	}

	return n
}

// pageOwner returns the owner of a page, which is the owner of its first
// unit. It panics if the units of the page disagree.
func (a *Allocator) pageOwner(page int) process.PID {
	start, end := a.pageBounds(page)
	owner := a.units[start]

	for i := start + 1; i < end; i++ {
		if a.units[i] != owner {
			panic(fmt.Sprintf("page %d is partially owned: unit %d belongs "+
				"to %d, unit %d belongs to %d",
				page, start, owner, i, a.units[i]))
		}
	}

	return owner
}

func (a *Allocator) mustBeValidOwner(pid process.PID) {
	if pid <= process.NoPID {
		panic(fmt.Sprintf("pid %d cannot own memory", pid))
	}
}
