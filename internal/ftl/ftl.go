package ftl

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/QuantaFTL/internal/config"
	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
	"github.com/dshills/QuantaFTL/internal/log"
	"github.com/dshills/QuantaFTL/internal/nand"
)

// Recorder receives operation outcomes. The metrics package provides the
// Prometheus implementation.
type Recorder interface {
	RecordWrite(err error)
	RecordRead(err error)
	RecordErase(block int)
	RecordPass(report PassReport)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(error) {}
func (nopRecorder) RecordRead(error) {}
func (nopRecorder) RecordErase(int) {}
func (nopRecorder) RecordPass(PassReport) {}

// Option configures an FTL.
type Option func(*FTL)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l log.Logger) Option {
	return func(f *FTL) {
		f.logger = l
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(f *FTL) {
		f.recorder = r
	}
}

// WithFreePolicy overrides the configured free-block policy.
func WithFreePolicy(p FreePolicy) Option {
	return func(f *FTL) {
		f.policy = p
	}
}

// WithDeviceID sets the device identity instead of generating one.
func WithDeviceID(id uuid.UUID) Option {
	return func(f *FTL) {
		f.id = id
	}
}

// FTL is a flash translation layer over an in-memory NAND store.
//
// FTL is safe for concurrent use. Writes, erases and wear-leveling passes
// hold the exclusive lock for their whole duration; reads share it.
type FTL struct {
	mu sync.RWMutex

	id        uuid.UUID
	store     *nand.Store
	table     *Table
	alloc     *Allocator
	policy    FreePolicy
	threshold int
	maxWear   int
	retries   int

	logger   log.Logger
	recorder Recorder
}

// New creates an initialized FTL for cfg.
func New(cfg *config.Config, opts ...Option) (*FTL, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, ftlerrors.InvalidConfigErrorf("%v", err)
	}
	if cfg.WearLeveling.Threshold < 1 {
		return nil, ftlerrors.InvalidConfigErrorf("wear-leveling threshold must be at least 1, got %d", cfg.WearLeveling.Threshold)
	}
	if cfg.Allocator.AllocRetries < 0 {
		return nil, ftlerrors.InvalidConfigErrorf("alloc retries cannot be negative")
	}
	policy, err := PolicyByName(cfg.Allocator.FreePolicy)
	if err != nil {
		return nil, ftlerrors.InvalidConfigErrorf("%v", err)
	}

	f := &FTL{
		id:        uuid.New(),
		policy:    policy,
		threshold: cfg.WearLeveling.Threshold,
		maxWear:   cfg.WearLeveling.MaxWear,
		retries:   cfg.Allocator.AllocRetries,
		logger:    log.Default(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.logger = f.logger.With(log.String("device", f.id.String()))
	f.store = nand.NewStore(cfg.Geometry.Blocks, cfg.Geometry.PagesPerBlock)
	f.table = NewTable(f.store, cfg.Geometry.LogicalPages, cfg.Allocator.ReverseIndex)
	f.alloc = NewAllocator(f.store, f.policy)

	f.logger.Debug("ftl created",
		log.Int("blocks", cfg.Geometry.Blocks),
		log.Int("pages_per_block", cfg.Geometry.PagesPerBlock),
		log.Int("logical_pages", cfg.Geometry.LogicalPages),
		log.Int("wear_threshold", f.threshold),
		log.Bool("reverse_index", cfg.Allocator.ReverseIndex))

	return f, nil
}

// ID returns the device identity.
func (f *FTL) ID() uuid.UUID {
	return f.id
}

// Initialize resets the store and the mapping table. All data and wear
// history is discarded.
func (f *FTL) Initialize() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.store.Initialize()
	f.table.Reset()
	f.logger.Info("device initialized")
}

// Write stores value at logical page.
func (f *FTL) Write(logical int, value int64) (err error) {
	defer func() { f.recorder.RecordWrite(err) }()

	if !f.table.InRange(logical) {
		f.logger.Warn("invalid page", log.LogicalPage(logical), log.String("op", "write"))
		return ftlerrors.InvalidLogicalAddressError("write", logical, f.table.Len())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	block, page, err := f.allocate(logical)
	if err != nil {
		return err
	}

	f.store.Program(block, page, value)
	// A write counts toward wear the same as an erase.
	f.store.BumpWear(block)
	f.checkMaxWear(block)
	f.table.Update(logical, block, page)

	f.logger.Debug("page written", log.LogicalPage(logical), log.Location("to", block, page))
	return nil
}

// allocate picks a target page. Block and page selection happen under the
// same lock, so no other write can consume the page in between.
func (f *FTL) allocate(logical int) (block, page int, err error) {
	for attempt := 0; attempt <= f.retries; attempt++ {
		b, ok := f.alloc.SelectBlockForWrite()
		if !ok {
			f.logger.Warn("no block available", log.LogicalPage(logical))
			return -1, -1, ftlerrors.DeviceFullError(logical)
		}
		block = b
		if p, ok := f.alloc.SelectPageInBlock(b); ok {
			return b, p, nil
		}
		f.logger.Warn("no free page in block", log.LogicalPage(logical), log.Block(b), log.Int("attempt", attempt))
	}
	return -1, -1, ftlerrors.BlockFullError(logical, block)
}

// Read returns the value stored at logical page.
func (f *FTL) Read(logical int) (value int64, err error) {
	defer func() { f.recorder.RecordRead(err) }()

	if !f.table.InRange(logical) {
		f.logger.Warn("invalid page", log.LogicalPage(logical), log.String("op", "read"))
		return 0, ftlerrors.InvalidLogicalAddressError("read", logical, f.table.Len())
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	loc, ok := f.table.Lookup(logical)
	if !ok {
		return 0, ftlerrors.UnmappedError(logical)
	}

	page := f.store.Page(loc.Block, loc.Page)
	if page.Status() != nand.PageValid {
		f.logger.Error("page not valid", log.LogicalPage(logical),
			log.Location("at", loc.Block, loc.Page),
			log.String("status", page.Status().String()))
		return 0, ftlerrors.StalePageError(logical, loc.Block, loc.Page, page.Status().String())
	}

	value, _ = page.Data()
	return value, nil
}

// Lookup returns the physical location of logical page.
func (f *FTL) Lookup(logical int) (Location, bool, error) {
	if !f.table.InRange(logical) {
		return unmapped, false, ftlerrors.InvalidLogicalAddressError("lookup", logical, f.table.Len())
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	loc, ok := f.table.Lookup(logical)
	return loc, ok, nil
}

// EraseBlock erases a block. The mapping table is not consulted; any live
// data in the block must have been relocated already.
func (f *FTL) EraseBlock(block int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.store.EraseBlock(block); err != nil {
		return err
	}
	f.checkMaxWear(block)
	f.recorder.RecordErase(block)
	return nil
}

// checkMaxWear logs when a block first passes the nominal endurance. The
// limit is informational and nothing stops further use of the block.
func (f *FTL) checkMaxWear(block int) {
	if f.maxWear > 0 && f.store.Wear(block) == f.maxWear+1 {
		f.logger.Warn("block exceeded nominal max wear", log.Block(block), log.Int("max_wear", f.maxWear))
	}
}
