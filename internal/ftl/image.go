package ftl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
	"github.com/dshills/QuantaFTL/internal/nand"
)

const (
	snapshotMagic   = "QFTL"
	imageMagic      = "QFTZ"
	snapshotVersion = 1

	// magic + version + device id + three geometry words
	snapshotHeaderSize = 4 + 2 + 16 + 3*4
	// status + has-data flag + data + address
	pageRecordSize = 1 + 1 + 8 + 4
	// block + page
	mappingRecordSize = 4 + 4
	// magic + codec + raw size
	imageHeaderSize = 4 + 1 + 4
	// an LZ4 block never expands by more than this
	maxLZ4Ratio = 255
)

const (
	codecRaw uint8 = iota
	codecLZ4
)

// PageState is the captured state of one physical page.
type PageState struct {
	Status  nand.PageStatus
	Data    int64
	HasData bool
	Address nand.Address
}

// Snapshot is an immutable copy of the store, wear counters and mapping table.
type Snapshot struct {
	DeviceID      uuid.UUID
	Blocks        int
	PagesPerBlock int
	LogicalPages  int
	Wear          []int
	Pages         []PageState // block-major
	Mapping       []Location
}

// Page returns the captured state of (block, page).
func (s *Snapshot) Page(block, page int) PageState {
	return s.Pages[block*s.PagesPerBlock+page]
}

// Snapshot captures the current device state.
func (f *FTL) Snapshot() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := &Snapshot{
		DeviceID:      f.id,
		Blocks:        f.store.Blocks(),
		PagesPerBlock: f.store.PagesPerBlock(),
		LogicalPages:  f.table.Len(),
		Wear:          f.store.WearCounters(),
		Pages:         make([]PageState, 0, f.store.Blocks()*f.store.PagesPerBlock()),
		Mapping:       f.table.Entries(),
	}
	for b := 0; b < s.Blocks; b++ {
		for p := 0; p < s.PagesPerBlock; p++ {
			page := f.store.Page(b, p)
			data, ok := page.Data()
			s.Pages = append(s.Pages, PageState{
				Status:  page.Status(),
				Data:    data,
				HasData: ok,
				Address: page.Address(),
			})
		}
	}
	return s
}

// MarshalBinary encodes the snapshot. The encoding is deterministic, so two
// snapshots of an unchanged device are byte-for-byte equal.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	if len(s.Wear) != s.Blocks || len(s.Pages) != s.Blocks*s.PagesPerBlock || len(s.Mapping) != s.LogicalPages {
		return nil, ftlerrors.InvalidImageErrorf("snapshot geometry does not match its contents")
	}

	size := snapshotHeaderSize + 4*s.Blocks + pageRecordSize*len(s.Pages) + mappingRecordSize*s.LogicalPages
	buf := make([]byte, size)

	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint16(buf[4:6], snapshotVersion)
	copy(buf[6:22], s.DeviceID[:])
	binary.LittleEndian.PutUint32(buf[22:26], uint32(s.Blocks))
	binary.LittleEndian.PutUint32(buf[26:30], uint32(s.PagesPerBlock))
	binary.LittleEndian.PutUint32(buf[30:34], uint32(s.LogicalPages))
	off := snapshotHeaderSize

	for _, w := range s.Wear {
		binary.LittleEndian.PutUint32(buf[off:], uint32(w))
		off += 4
	}

	for _, p := range s.Pages {
		buf[off] = byte(p.Status)
		if p.HasData {
			buf[off+1] = 1
		}
		binary.LittleEndian.PutUint64(buf[off+2:], uint64(p.Data))
		binary.LittleEndian.PutUint32(buf[off+10:], uint32(p.Address))
		off += pageRecordSize
	}

	for _, m := range s.Mapping {
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(m.Block)))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(m.Page)))
		off += mappingRecordSize
	}

	return buf, nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(buf []byte) error {
	if len(buf) < snapshotHeaderSize || string(buf[0:4]) != snapshotMagic {
		return ftlerrors.InvalidImageErrorf("not a snapshot")
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != snapshotVersion {
		return ftlerrors.InvalidImageErrorf("unsupported snapshot version %d", v)
	}

	blocks := uint64(binary.LittleEndian.Uint32(buf[22:26]))
	pages := uint64(binary.LittleEndian.Uint32(buf[26:30]))
	logical := uint64(binary.LittleEndian.Uint32(buf[30:34]))
	if err := checkSnapshotSize(uint64(len(buf)), blocks, pages, logical); err != nil {
		return err
	}

	copy(s.DeviceID[:], buf[6:22])
	s.Blocks = int(blocks)
	s.PagesPerBlock = int(pages)
	s.LogicalPages = int(logical)
	off := snapshotHeaderSize

	s.Wear = make([]int, s.Blocks)
	for i := range s.Wear {
		s.Wear[i] = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	s.Pages = make([]PageState, s.Blocks*s.PagesPerBlock)
	for i := range s.Pages {
		s.Pages[i] = PageState{
			Status:  nand.PageStatus(buf[off]),
			HasData: buf[off+1] == 1,
			Data:    int64(binary.LittleEndian.Uint64(buf[off+2:])),
			Address: nand.Address(binary.LittleEndian.Uint32(buf[off+10:])),
		}
		off += pageRecordSize
	}

	s.Mapping = make([]Location, s.LogicalPages)
	for i := range s.Mapping {
		s.Mapping[i] = Location{
			Block: int(int32(binary.LittleEndian.Uint32(buf[off:]))),
			Page:  int(int32(binary.LittleEndian.Uint32(buf[off+4:]))),
		}
		off += mappingRecordSize
	}

	return nil
}

// checkSnapshotSize verifies that n bytes hold exactly the records the header
// declares. Each section is subtracted from what remains, so header words
// near the uint32 limit cannot overflow the sum.
func checkSnapshotSize(n, blocks, pages, logical uint64) error {
	mismatch := ftlerrors.InvalidImageErrorf("snapshot size mismatch: %d bytes for %d blocks x %d pages, %d logical pages",
		n, blocks, pages, logical)

	rest := n - snapshotHeaderSize
	wear := 4 * blocks
	if wear > rest {
		return mismatch
	}
	rest -= wear
	if blocks > 0 && pages > rest/(pageRecordSize*blocks) {
		return mismatch
	}
	rest -= pageRecordSize * blocks * pages
	if mappingRecordSize*logical != rest {
		return mismatch
	}
	return nil
}

// EncodeImage returns the LZ4-compressed encoding of a snapshot. Snapshots
// that do not compress are stored raw.
func EncodeImage(s *Snapshot) ([]byte, error) {
	raw, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, imageHeaderSize+lz4.CompressBlockBound(len(raw)))
	copy(out[0:4], imageMagic)
	binary.LittleEndian.PutUint32(out[5:9], uint32(len(raw)))

	n, err := lz4.CompressBlock(raw, out[imageHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("LZ4 compression failed: %w", err)
	}
	if n == 0 || n >= len(raw) {
		out[4] = codecRaw
		n = copy(out[imageHeaderSize:], raw)
	} else {
		out[4] = codecLZ4
	}

	return out[:imageHeaderSize+n], nil
}

// DecodeImage reverses EncodeImage.
func DecodeImage(data []byte) (*Snapshot, error) {
	if len(data) < imageHeaderSize || string(data[0:4]) != imageMagic {
		return nil, ftlerrors.InvalidImageErrorf("not a device image")
	}
	rawSize := int(binary.LittleEndian.Uint32(data[5:9]))
	payload := data[imageHeaderSize:]

	var raw []byte
	switch data[4] {
	case codecRaw:
		raw = payload
	case codecLZ4:
		if rawSize > maxLZ4Ratio*len(payload) {
			return nil, ftlerrors.InvalidImageErrorf("declared size %d is too large for %d compressed bytes", rawSize, len(payload))
		}
		raw = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, ftlerrors.InvalidImageErrorf("LZ4 decompression failed: %v", err)
		}
		if n != rawSize {
			return nil, ftlerrors.InvalidImageErrorf("LZ4 decompression size mismatch: expected %d, got %d", rawSize, n)
		}
	default:
		return nil, ftlerrors.InvalidImageErrorf("unknown image codec %d", data[4])
	}

	s := &Snapshot{}
	if err := s.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteImage writes the compressed image of the current device state to w.
func (f *FTL) WriteImage(w io.Writer) (int64, error) {
	img, err := EncodeImage(f.Snapshot())
	if err != nil {
		return 0, err
	}
	return io.Copy(w, bytes.NewReader(img))
}
