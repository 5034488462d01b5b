package ftl

import (
	"log/slog"

	"github.com/dshills/QuantaFTL/internal/log"
	"github.com/dshills/QuantaFTL/internal/nand"
)

// PassReport describes one wear-leveling pass.
type PassReport struct {
	Triggered bool
	Reason    string // why the pass did nothing, empty when triggered

	HotBlock  int
	HotWear   int
	ColdBlock int
	ColdWear  int

	Relocated int // valid pages moved to the cold block
	Dropped   int // valid pages left behind because the cold block filled up
}

// Skip reasons.
const (
	ReasonNoFreeBlock    = "no free block"
	ReasonBelowThreshold = "wear spread below threshold"
)

// RunWearLevelingPass moves live data off the most-worn block into the
// least-worn free block, then erases the most-worn block.
//
// The pass does nothing when there is no free block or when the wear spread
// is below the threshold. If the cold block runs out of free pages, the
// remaining valid pages of the hot block are not moved and are lost when the
// hot block is erased. Their logical pages keep pointing at the erased
// location and read back as stale.
func (f *FTL) RunWearLevelingPass() PassReport {
	f.mu.Lock()
	defer f.mu.Unlock()

	report := f.level()
	f.recorder.RecordPass(report)
	return report
}

func (f *FTL) level() PassReport {
	report := PassReport{HotBlock: -1, ColdBlock: -1}

	hot, maxWear, hotOK := f.alloc.HottestBlock()
	cold, minWear, coldOK := f.alloc.ColdestFreeBlock()
	if !hotOK || !coldOK {
		report.Reason = ReasonNoFreeBlock
		f.logger.Debug("wear leveling skipped", log.String("reason", report.Reason))
		return report
	}

	report.HotBlock, report.HotWear = hot, maxWear
	report.ColdBlock, report.ColdWear = cold, minWear
	if maxWear-minWear < f.threshold {
		report.Reason = ReasonBelowThreshold
		f.logger.Debug("wear leveling skipped",
			log.String("reason", report.Reason),
			log.Int("max_wear", maxWear),
			log.Int("min_wear", minWear))
		return report
	}
	report.Triggered = true
	debug := f.logger.Enabled(slog.LevelDebug)

	for j := 0; j < f.store.PagesPerBlock(); j++ {
		if f.store.Status(hot, j) != nand.PageValid {
			continue
		}

		k, ok := f.alloc.SelectPageInBlock(cold)
		if !ok {
			report.Dropped++
			f.logger.Warn("cold block full, page not relocated",
				log.Location("page", hot, j), log.Block(cold))
			continue
		}

		value, _ := f.store.Page(hot, j).Data()
		f.store.Program(cold, k, value)
		if owner, ok := f.table.Owner(hot, j); ok {
			f.table.Update(owner, cold, k)
			if debug {
				f.logger.Debug("page relocated", log.LogicalPage(owner),
					log.Location("from", hot, j), log.Location("to", cold, k))
			}
		}
		// Update already did this for owned pages.
		f.store.Invalidate(hot, j)
		report.Relocated++
	}

	// hot comes from the store's own block range
	_ = f.store.EraseBlock(hot)
	f.checkMaxWear(hot)
	f.recorder.RecordErase(hot)

	f.logger.Info("wear leveling pass complete",
		log.Int("hot_block", hot),
		log.Int("hot_wear", maxWear),
		log.Int("cold_block", cold),
		log.Int("cold_wear", minWear),
		log.Int("relocated", report.Relocated),
		log.Int("dropped", report.Dropped))

	return report
}
