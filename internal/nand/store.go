package nand

import (
	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
)

// Block is an erase unit: a fixed run of pages plus its wear counter.
type Block struct {
	pages []Page
	wear  int
}

// Store is the simulated NAND array. Coordinates passed to the page
// accessors are trusted; only EraseBlock validates its argument.
//
// Store is not safe for concurrent use. The FTL serializes access to it.
type Store struct {
	blocks        []Block
	pagesPerBlock int
	shift         uint
}

// NewStore allocates and initializes a store with the given geometry.
func NewStore(blocks, pagesPerBlock int) *Store {
	s := &Store{
		blocks:        make([]Block, blocks),
		pagesPerBlock: pagesPerBlock,
		shift:         AddressShift(pagesPerBlock),
	}
	for i := range s.blocks {
		s.blocks[i].pages = make([]Page, pagesPerBlock)
	}
	s.Initialize()
	return s
}

// Initialize discards all state: every page becomes free with no data and
// every wear counter returns to zero.
func (s *Store) Initialize() {
	for b := range s.blocks {
		s.blocks[b].wear = 0
		s.resetPages(b)
	}
}

// EraseBlock frees every page in the block and bumps its wear counter.
// Data in the block is lost.
func (s *Store) EraseBlock(block int) error {
	if block < 0 || block >= len(s.blocks) {
		return ftlerrors.InvalidBlockError("erase", block, len(s.blocks))
	}
	s.resetPages(block)
	s.blocks[block].wear++
	return nil
}

func (s *Store) resetPages(block int) {
	pages := s.blocks[block].pages
	for p := range pages {
		pages[p].reset(MakeAddress(block, p, s.shift))
	}
}

// Blocks returns the number of blocks.
func (s *Store) Blocks() int {
	return len(s.blocks)
}

// PagesPerBlock returns the number of pages in each block.
func (s *Store) PagesPerBlock() int {
	return s.pagesPerBlock
}

// AddressShift returns the shift used to pack page addresses.
func (s *Store) AddressShift() uint {
	return s.shift
}

// Page returns a copy of the page at (block, page).
func (s *Store) Page(block, page int) Page {
	return s.blocks[block].pages[page]
}

// Status returns the status of the page at (block, page).
func (s *Store) Status(block, page int) PageStatus {
	return s.blocks[block].pages[page].status
}

// Program stores value in the page and marks it valid.
func (s *Store) Program(block, page int, value int64) {
	p := &s.blocks[block].pages[page]
	p.data = value
	p.hasData = true
	p.status = PageValid
}

// Invalidate demotes the page to invalid. Its data stays until erase.
func (s *Store) Invalidate(block, page int) {
	s.blocks[block].pages[page].status = PageInvalid
}

// Wear returns the wear counter of a block.
func (s *Store) Wear(block int) int {
	return s.blocks[block].wear
}

// BumpWear adds one to the wear counter of a block.
func (s *Store) BumpWear(block int) {
	s.blocks[block].wear++
}

// WearCounters returns a copy of all wear counters, indexed by block.
func (s *Store) WearCounters() []int {
	out := make([]int, len(s.blocks))
	for i := range s.blocks {
		out[i] = s.blocks[i].wear
	}
	return out
}

// CountStatus returns how many pages in the whole array have each status.
func (s *Store) CountStatus() (free, valid, invalid int) {
	for b := range s.blocks {
		for _, p := range s.blocks[b].pages {
			switch p.status {
			case PageFree:
				free++
			case PageValid:
				valid++
			case PageInvalid:
				invalid++
			}
		}
	}
	return free, valid, invalid
}
