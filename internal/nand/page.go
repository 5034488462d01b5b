package nand

import (
	"fmt"
	"math/bits"
)

// PageStatus is the lifecycle state of a physical page.
type PageStatus uint8

const (
	// PageFree pages are erased and writable.
	PageFree PageStatus = iota
	// PageValid pages hold live data referenced by the mapping table.
	PageValid
	// PageInvalid pages hold superseded data and are reclaimed only by erase.
	PageInvalid
)

func (s PageStatus) String() string {
	switch s {
	case PageFree:
		return "free"
	case PageValid:
		return "valid"
	case PageInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("PageStatus(%d)", uint8(s))
	}
}

// Address is the packed physical address of a page: block in the high bits,
// page index in the low AddressShift bits.
type Address uint32

// AddressShift returns the number of low bits used for the page index,
// never less than one.
func AddressShift(pagesPerBlock int) uint {
	if pagesPerBlock <= 2 {
		return 1
	}
	return uint(bits.Len(uint(pagesPerBlock - 1)))
}

// MaxBlocks returns the largest block count whose addresses fit in an Address
// for the given pages per block.
func MaxBlocks(pagesPerBlock int) int {
	return 1 << (32 - AddressShift(pagesPerBlock))
}

// MakeAddress packs a (block, page) pair.
func MakeAddress(block, page int, shift uint) Address {
	return Address(uint32(block)<<shift | uint32(page))
}

// Split unpacks an address into its block and page.
func (a Address) Split(shift uint) (block, page int) {
	mask := uint32(1)<<shift - 1
	return int(uint32(a) >> shift), int(uint32(a) & mask)
}

// Page is one physical page. The zero value is not meaningful; pages are
// produced by Store.Initialize and Store.EraseBlock.
type Page struct {
	data    int64
	hasData bool
	status  PageStatus
	addr    Address
}

// Data returns the stored payload. ok is false when the page holds no data.
func (p Page) Data() (value int64, ok bool) {
	return p.data, p.hasData
}

// Status returns the page status.
func (p Page) Status() PageStatus {
	return p.status
}

// Address returns the packed physical address.
func (p Page) Address() Address {
	return p.addr
}

func (p *Page) reset(addr Address) {
	p.data = 0
	p.hasData = false
	p.status = PageFree
	p.addr = addr
}
