package memory

import (
	"fmt"

	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

// PageInfo is one row of the page table.
type PageInfo struct {
	Index       int         `json:"index"`
	Free        bool        `json:"free"`
	Owner       process.PID `json:"owner,omitempty"`
	Resource    resource.ID `json:"resource,omitempty"`
	HasResource bool        `json:"has_resource"`
}

// Snapshot returns the page table in page order.
func (a *Allocator) Snapshot() []PageInfo {
	resourceOf := make(map[int]resource.ID)
	for _, id := range a.resOrder {
		for _, page := range a.pagesOf[id] {
			resourceOf[page] = id
		}
	}

	pages := make([]PageInfo, a.numPages)
	for i := range pages {
		owner := a.pageOwner(i)
		id, hasResource := resourceOf[i]

		pages[i] = PageInfo{
			Index:       i,
			Free:        owner == process.NoPID,
			Owner:       owner,
			Resource:    id,
			HasResource: hasResource,
		}
	}

	return pages
}

// Units returns the owner of every unit. Free units hold process.NoPID.
func (a *Allocator) Units() []process.PID {
	units := make([]process.PID, len(a.units))
	copy(units, a.units)

	return units
}

// Validate checks that every page has a single owner, that every resource is
// bound to pages of a single process, and that no page is bound to two
// resources.
func (a *Allocator) Validate() error {
	for page := 0; page < a.numPages; page++ {
		start, end := a.pageBounds(page)
		for i := start + 1; i < end; i++ {
			if a.units[i] != a.units[start] {
				return fmt.Errorf("page %d is partially owned", page)
			}
		}
	}

	boundTo := make(map[int]resource.ID)
	for _, id := range a.resOrder {
		pages := a.pagesOf[id]
		if len(pages) == 0 {
			return fmt.Errorf("resource %d is bound to no page", id)
		}

		owner := a.units[pages[0]*a.pageSize]
		for _, page := range pages {
			if other, ok := boundTo[page]; ok {
				return fmt.Errorf("page %d is bound to resources %d and %d",
					page, other, id)
			}

			boundTo[page] = id

			if a.units[page*a.pageSize] != owner {
				return fmt.Errorf("resource %d spans processes %d and %d",
					id, owner, a.units[page*a.pageSize])
			}
		}

		if owner == process.NoPID {
			return fmt.Errorf("resource %d is bound to free pages", id)
		}
	}

	return nil
}
