package ftl

import (
	"fmt"

	"github.com/dshills/QuantaFTL/internal/config"
	"github.com/dshills/QuantaFTL/internal/nand"
)

// FreePolicy decides whether a block counts as fully free, which makes it a
// candidate for new writes and a target for wear-leveling relocation.
type FreePolicy func(store *nand.Store, block int) bool

// FirstPageFree treats a block as free when its first page is free.
//
// This only inspects page 0. It agrees with AllPagesFree as long as blocks are
// either fully erased or consumed from page 0 upward, which is how the write
// path and relocation use them. A block with page 0 free and a later page in
// use would be misreported as free.
func FirstPageFree(store *nand.Store, block int) bool {
	return store.Status(block, 0) == nand.PageFree
}

// AllPagesFree treats a block as free only when every page is free.
func AllPagesFree(store *nand.Store, block int) bool {
	for p := 0; p < store.PagesPerBlock(); p++ {
		if store.Status(block, p) != nand.PageFree {
			return false
		}
	}
	return true
}

// PolicyByName maps a configured policy name to its implementation.
func PolicyByName(name string) (FreePolicy, error) {
	switch name {
	case config.PolicyFirstPage, "":
		return FirstPageFree, nil
	case config.PolicyAllPages:
		return AllPagesFree, nil
	default:
		return nil, fmt.Errorf("unknown free policy %q", name)
	}
}
