package ftl

import (
	"github.com/dshills/QuantaFTL/internal/nand"
)

// Location is a physical (block, page) coordinate.
type Location struct {
	Block int
	Page  int
}

var unmapped = Location{Block: -1, Page: -1}

// Mapped reports whether the location refers to a physical page.
func (l Location) Mapped() bool {
	return l.Block >= 0 && l.Page >= 0
}

// Table is the logical-to-physical mapping table.
//
// Update is the only place pages are demoted to invalid. When the reverse
// index is enabled, physical-to-logical lookups are O(1); otherwise Owner
// scans the table.
type Table struct {
	store   *nand.Store
	entries []Location
	reverse map[Location]int
}

// NewTable creates a table with logicalPages unmapped entries.
func NewTable(store *nand.Store, logicalPages int, reverseIndex bool) *Table {
	t := &Table{
		store:   store,
		entries: make([]Location, logicalPages),
	}
	if reverseIndex {
		t.reverse = make(map[Location]int)
	}
	t.Reset()
	return t
}

// Reset unmaps every logical page.
func (t *Table) Reset() {
	for i := range t.entries {
		t.entries[i] = unmapped
	}
	if t.reverse != nil {
		clear(t.reverse)
	}
}

// Len returns the number of logical pages.
func (t *Table) Len() int {
	return len(t.entries)
}

// InRange reports whether logical is a valid logical page index.
func (t *Table) InRange(logical int) bool {
	return logical >= 0 && logical < len(t.entries)
}

// Lookup returns the mapping of an in-range logical page.
func (t *Table) Lookup(logical int) (Location, bool) {
	loc := t.entries[logical]
	return loc, loc.Mapped()
}

// Update points logical at (block, page). A previous mapping, if any, has its
// physical page invalidated before the new mapping is recorded.
func (t *Table) Update(logical, block, page int) {
	if old := t.entries[logical]; old.Mapped() {
		t.store.Invalidate(old.Block, old.Page)
		if t.reverse != nil && t.reverse[old] == logical {
			delete(t.reverse, old)
		}
	}
	loc := Location{Block: block, Page: page}
	t.entries[logical] = loc
	if t.reverse != nil {
		t.reverse[loc] = logical
	}
}

// Owner returns the logical page mapped to (block, page).
func (t *Table) Owner(block, page int) (int, bool) {
	loc := Location{Block: block, Page: page}
	if t.reverse != nil {
		l, ok := t.reverse[loc]
		return l, ok
	}
	for l, e := range t.entries {
		if e == loc {
			return l, true
		}
	}
	return -1, false
}

// MappedCount returns the number of mapped logical pages.
func (t *Table) MappedCount() int {
	n := 0
	for _, e := range t.entries {
		if e.Mapped() {
			n++
		}
	}
	return n
}

// Entries returns a copy of the table.
func (t *Table) Entries() []Location {
	out := make([]Location, len(t.entries))
	copy(out, t.entries)
	return out
}
