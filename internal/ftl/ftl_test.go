package ftl

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/QuantaFTL/internal/config"
	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
	"github.com/dshills/QuantaFTL/internal/log"
	"github.com/dshills/QuantaFTL/internal/nand"
)

func testConfig(blocks, pages, logical, threshold int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Geometry = config.GeometryConfig{Blocks: blocks, PagesPerBlock: pages, LogicalPages: logical}
	cfg.WearLeveling.Threshold = threshold
	return cfg
}

func newTestFTL(t *testing.T, cfg *config.Config, opts ...Option) *FTL {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	f, err := New(cfg, opts...)
	require.NoError(t, err)
	return f
}

// checkConsistency asserts that every mapped logical page points at a valid
// physical page and that no physical page has two owners.
func checkConsistency(t *testing.T, f *FTL) {
	t.Helper()
	snap := f.Snapshot()
	owners := make(map[Location]int)
	for l, loc := range snap.Mapping {
		if !loc.Mapped() {
			continue
		}
		if prev, dup := owners[loc]; dup {
			t.Fatalf("logical pages %d and %d both map to %+v", prev, l, loc)
		}
		owners[loc] = l
		assert.Equal(t, nand.PageValid, snap.Page(loc.Block, loc.Page).Status, "logical %d at %+v", l, loc)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"no blocks", testConfig(0, 2, 10, 2)},
		{"no pages", testConfig(4, 0, 10, 2)},
		{"no logical pages", testConfig(4, 2, 0, 2)},
		{"zero threshold", testConfig(4, 2, 10, 0)},
		{"unknown policy", func() *config.Config {
			c := testConfig(4, 2, 10, 2)
			c.Allocator.FreePolicy = "lifo"
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, WithLogger(log.Discard()))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ftlerrors.ErrInvalidConfig))
		})
	}
}

func TestUnwrittenPagesAreUnmapped(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))

	for l := 0; l < 10; l++ {
		_, err := f.Read(l)
		assert.True(t, errors.Is(err, ftlerrors.ErrUnmapped), "logical %d", l)
	}
}

func TestInvalidAddress(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))

	for _, l := range []int{-1, 10, 11, 1 << 20} {
		err := f.Write(l, 1)
		assert.True(t, errors.Is(err, ftlerrors.ErrInvalidAddress), "write %d", l)

		_, err = f.Read(l)
		assert.True(t, errors.Is(err, ftlerrors.ErrInvalidAddress), "read %d", l)

		_, _, err = f.Lookup(l)
		assert.True(t, errors.Is(err, ftlerrors.ErrInvalidAddress), "lookup %d", l)
	}

	// Nothing was allocated
	assert.Equal(t, 0, f.Stats().MaxWear)
}

func TestWriteReadScenario(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))
	f.Initialize()

	require.NoError(t, f.Write(3, 99))
	loc, ok, err := f.Lookup(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Location{Block: 0, Page: 0}, loc)

	v, err := f.Read(3)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)

	require.NoError(t, f.Write(3, 7))
	snap := f.Snapshot()
	assert.Equal(t, nand.PageInvalid, snap.Page(0, 0).Status)

	// Block 0's first page is in use, so block 1 is the least-worn free block.
	loc, ok, err = f.Lookup(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Location{Block: 1, Page: 0}, loc)

	v, err = f.Read(3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	// Each write counts toward the wear of its block
	assert.Equal(t, []int{1, 1, 0, 0}, snap.Wear)
	checkConsistency(t, f)
}

func TestDeviceFull(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))

	for l := 0; l < 4; l++ {
		require.NoError(t, f.Write(l, int64(100+l)))
	}

	err := f.Write(5, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ftlerrors.ErrDeviceFull))
	assert.True(t, ftlerrors.Retryable(ftlerrors.GetError(err).Code))

	// Rejected writes leave existing data alone
	for l := 0; l < 4; l++ {
		v, err := f.Read(l)
		require.NoError(t, err)
		assert.Equal(t, int64(100+l), v)
	}
	_, err = f.Read(5)
	assert.True(t, errors.Is(err, ftlerrors.ErrUnmapped))
}

func TestWritePrefersLeastWornBlock(t *testing.T) {
	f := newTestFTL(t, testConfig(3, 2, 10, 5))

	require.NoError(t, f.EraseBlock(0))
	require.NoError(t, f.EraseBlock(0))
	require.NoError(t, f.EraseBlock(1))

	require.NoError(t, f.Write(0, 1))
	loc, _, _ := f.Lookup(0)
	assert.Equal(t, 2, loc.Block)

	require.NoError(t, f.Write(1, 1))
	loc, _, _ = f.Lookup(1)
	assert.Equal(t, 1, loc.Block)
}

func TestBlockFullRetriesThenFails(t *testing.T) {
	cfg := testConfig(1, 1, 4, 2)
	cfg.Allocator.AllocRetries = 2

	calls := 0
	alwaysFree := func(*nand.Store, int) bool {
		calls++
		return true
	}
	f := newTestFTL(t, cfg, WithFreePolicy(alwaysFree))

	require.NoError(t, f.Write(0, 1))
	calls = 0

	err := f.Write(1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ftlerrors.ErrBlockFull))
	// One selection plus two retries
	assert.Equal(t, 3, calls)

	v, err := f.Read(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestReadDetectsStalePage(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))
	require.NoError(t, f.Write(2, 5))

	// Erasing behind the table's back leaves a dangling mapping
	require.NoError(t, f.EraseBlock(0))

	_, err := f.Read(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ftlerrors.ErrStalePage))

	var fErr *ftlerrors.Error
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, 0, fErr.Block)
	assert.Equal(t, 0, fErr.Page)
}

func TestEraseBlock(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 2))

	err := f.EraseBlock(4)
	assert.True(t, errors.Is(err, ftlerrors.ErrInvalidAddress))

	require.NoError(t, f.Write(0, 1))
	require.NoError(t, f.EraseBlock(0))

	snap := f.Snapshot()
	assert.Equal(t, 2, snap.Wear[0])
	for p := 0; p < 2; p++ {
		assert.Equal(t, nand.PageFree, snap.Page(0, p).Status)
		assert.False(t, snap.Page(0, p).HasData)
	}
}

func TestInitializeResets(t *testing.T) {
	f := newTestFTL(t, testConfig(4, 2, 10, 1))
	require.NoError(t, f.Write(1, 1))
	require.NoError(t, f.Write(2, 2))
	f.RunWearLevelingPass()

	f.Initialize()

	st := f.Stats()
	assert.Equal(t, 0, st.MaxWear)
	assert.Equal(t, 0, st.MappedPages)
	assert.Equal(t, 8, st.FreePages)
	assert.Equal(t, 4, st.FreeBlocks)
	_, err := f.Read(1)
	assert.True(t, errors.Is(err, ftlerrors.ErrUnmapped))
}

func TestRoundTripManyPages(t *testing.T) {
	f := newTestFTL(t, testConfig(64, 8, 40, 100))

	for l := 0; l < 40; l++ {
		require.NoError(t, f.Write(l, int64(l*l)))
	}
	for l := 0; l < 40; l++ {
		v, err := f.Read(l)
		require.NoError(t, err)
		assert.Equal(t, int64(l*l), v)
	}
	checkConsistency(t, f)
}

// TestRandomWorkload mixes writes, reads and leveling passes and checks the
// mapping invariants after every step.
func TestRandomWorkload(t *testing.T) {
	for _, reverse := range []bool{false, true} {
		cfg := testConfig(8, 4, 6, 1)
		cfg.Allocator.ReverseIndex = reverse
		f := newTestFTL(t, cfg)

		rng := rand.New(rand.NewSource(7))
		expected := make(map[int]int64)
		passes := 0

		for step := 0; step < 300; step++ {
			l := rng.Intn(6)
			switch {
			case step%3 == 2:
				report := f.RunWearLevelingPass()
				assert.Zero(t, report.Dropped)
				if report.Triggered {
					passes++
				}
			case rng.Intn(4) < 3:
				v := rng.Int63()
				if err := f.Write(l, v); err != nil {
					require.True(t, errors.Is(err, ftlerrors.ErrDeviceFull), "step %d: %v", step, err)
					break
				}
				expected[l] = v
			default:
				v, err := f.Read(l)
				if want, ok := expected[l]; ok {
					require.NoError(t, err, "step %d", step)
					assert.Equal(t, want, v)
				} else {
					assert.True(t, errors.Is(err, ftlerrors.ErrUnmapped))
				}
			}
			checkConsistency(t, f)
		}

		assert.Greater(t, passes, 0, "workload should trigger leveling")
		for l, want := range expected {
			v, err := f.Read(l)
			require.NoError(t, err)
			assert.Equal(t, want, v)
		}
	}
}

func TestReverseIndexMatchesLinearScan(t *testing.T) {
	id := uuid.New()
	run := func(reverse bool) []byte {
		cfg := testConfig(16, 4, 12, 2)
		cfg.Allocator.ReverseIndex = reverse
		f := newTestFTL(t, cfg, WithDeviceID(id))

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			_ = f.Write(rng.Intn(12), int64(i))
			if i%3 == 0 {
				f.RunWearLevelingPass()
			}
		}
		img, err := f.Snapshot().MarshalBinary()
		require.NoError(t, err)
		return img
	}

	assert.Equal(t, run(false), run(true))
}

type countingRecorder struct {
	mu       sync.Mutex
	writes   map[string]int
	reads    map[string]int
	erases   []int
	triggers int
	skips    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{writes: map[string]int{}, reads: map[string]int{}}
}

func code(err error) string {
	if err == nil {
		return "ok"
	}
	return ftlerrors.GetError(err).Code
}

func (r *countingRecorder) RecordWrite(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes[code(err)]++
}

func (r *countingRecorder) RecordRead(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[code(err)]++
}

func (r *countingRecorder) RecordErase(block int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.erases = append(r.erases, block)
}

func (r *countingRecorder) RecordPass(report PassReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report.Triggered {
		r.triggers++
	} else {
		r.skips++
	}
}

func TestRecorderSeesOutcomes(t *testing.T) {
	rec := newCountingRecorder()
	f := newTestFTL(t, testConfig(2, 2, 4, 1), WithRecorder(rec))

	require.NoError(t, f.Write(0, 1))
	require.NoError(t, f.Write(1, 2))
	assert.Error(t, f.Write(2, 3))
	assert.Error(t, f.Write(9, 3))
	_, err := f.Read(0)
	require.NoError(t, err)
	_, err = f.Read(3)
	assert.Error(t, err)

	// Both blocks are in use
	f.RunWearLevelingPass()

	// Block 1 is now the only free block and also the hottest
	require.NoError(t, f.EraseBlock(1))
	f.RunWearLevelingPass()

	assert.Equal(t, 2, rec.writes["ok"])
	assert.Equal(t, 1, rec.writes[ftlerrors.DeviceFull])
	assert.Equal(t, 1, rec.writes[ftlerrors.InvalidAddress])
	assert.Equal(t, 1, rec.reads["ok"])
	assert.Equal(t, 1, rec.reads[ftlerrors.Unmapped])
	assert.Equal(t, []int{1}, rec.erases)
	assert.Equal(t, 2, rec.skips)
}

func TestConcurrentAccess(t *testing.T) {
	f := newTestFTL(t, testConfig(256, 4, 64, 3))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l := (w*16 + i) % 64
				if err := f.Write(l, int64(l)); err != nil {
					assert.True(t, errors.Is(err, ftlerrors.ErrDeviceFull))
				}
				if v, err := f.Read(l); err == nil {
					assert.Equal(t, int64(l), v)
				}
				if i%10 == 0 {
					f.RunWearLevelingPass()
				}
			}
		}(w)
	}
	wg.Wait()

	checkConsistency(t, f)
}

func TestStats(t *testing.T) {
	cfg := testConfig(4, 2, 10, 50)
	cfg.WearLeveling.MaxWear = 2
	f := newTestFTL(t, cfg)

	require.NoError(t, f.Write(0, 1))
	require.NoError(t, f.Write(0, 2))
	for i := 0; i < 3; i++ {
		require.NoError(t, f.EraseBlock(3))
	}

	st := f.Stats()
	assert.Equal(t, f.ID().String(), st.DeviceID)
	assert.Equal(t, 4, st.Blocks)
	assert.Equal(t, 2, st.PagesPerBlock)
	assert.Equal(t, 10, st.LogicalPages)
	assert.Equal(t, 2, st.FreeBlocks)
	assert.Equal(t, 0, st.MinWear)
	assert.Equal(t, 3, st.MaxWear)
	assert.Equal(t, 3, st.WearSpread())
	assert.Equal(t, 1, st.BlocksOverMaxWear)
	assert.Equal(t, 1, st.ValidPages)
	assert.Equal(t, 1, st.InvalidPages)
	assert.Equal(t, 6, st.FreePages)
	assert.Equal(t, 1, st.MappedPages)
}
