package ftl

import (
	"github.com/dshills/QuantaFTL/internal/nand"
)

// Allocator picks physical locations for new data.
type Allocator struct {
	store  *nand.Store
	isFree FreePolicy
}

// NewAllocator creates an allocator over store using the given free policy.
func NewAllocator(store *nand.Store, policy FreePolicy) *Allocator {
	if policy == nil {
		policy = FirstPageFree
	}
	return &Allocator{store: store, isFree: policy}
}

// SelectBlockForWrite returns the least-worn free block. Ties go to the
// lowest block index. ok is false when no block is free.
func (a *Allocator) SelectBlockForWrite() (block int, ok bool) {
	block, _, ok = a.ColdestFreeBlock()
	return block, ok
}

// SelectPageInBlock returns the first free page of block.
func (a *Allocator) SelectPageInBlock(block int) (page int, ok bool) {
	for p := 0; p < a.store.PagesPerBlock(); p++ {
		if a.store.Status(block, p) == nand.PageFree {
			return p, true
		}
	}
	return -1, false
}

// ColdestFreeBlock returns the free block with the lowest wear and its wear.
func (a *Allocator) ColdestFreeBlock() (block, wear int, ok bool) {
	block = -1
	for b := 0; b < a.store.Blocks(); b++ {
		if !a.isFree(a.store, b) {
			continue
		}
		if w := a.store.Wear(b); block < 0 || w < wear {
			block, wear = b, w
		}
	}
	return block, wear, block >= 0
}

// HottestBlock returns the block with the highest wear, free or not.
func (a *Allocator) HottestBlock() (block, wear int, ok bool) {
	block = -1
	for b := 0; b < a.store.Blocks(); b++ {
		if w := a.store.Wear(b); block < 0 || w > wear {
			block, wear = b, w
		}
	}
	return block, wear, block >= 0
}

// FreeBlocks counts the blocks the policy considers free.
func (a *Allocator) FreeBlocks() int {
	n := 0
	for b := 0; b < a.store.Blocks(); b++ {
		if a.isFree(a.store, b) {
			n++
		}
	}
	return n
}
