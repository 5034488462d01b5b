package ftl

// Stats is a point-in-time summary of the device.
type Stats struct {
	DeviceID      string `json:"device_id"`
	Blocks        int    `json:"blocks"`
	PagesPerBlock int    `json:"pages_per_block"`
	LogicalPages  int    `json:"logical_pages"`

	FreeBlocks        int `json:"free_blocks"`
	MinWear           int `json:"min_wear"`
	MaxWear           int `json:"max_wear"`
	NominalMaxWear    int `json:"nominal_max_wear"`
	BlocksOverMaxWear int `json:"blocks_over_max_wear"`

	FreePages    int `json:"free_pages"`
	ValidPages   int `json:"valid_pages"`
	InvalidPages int `json:"invalid_pages"`
	MappedPages  int `json:"mapped_pages"`
}

// WearSpread returns the gap between the most and least worn blocks.
func (s Stats) WearSpread() int {
	return s.MaxWear - s.MinWear
}

// Stats scans the device and returns a summary.
func (f *FTL) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st := Stats{
		DeviceID:       f.id.String(),
		Blocks:         f.store.Blocks(),
		PagesPerBlock:  f.store.PagesPerBlock(),
		LogicalPages:   f.table.Len(),
		FreeBlocks:     f.alloc.FreeBlocks(),
		NominalMaxWear: f.maxWear,
		MappedPages:    f.table.MappedCount(),
	}
	for b, w := range f.store.WearCounters() {
		if b == 0 || w < st.MinWear {
			st.MinWear = w
		}
		if b == 0 || w > st.MaxWear {
			st.MaxWear = w
		}
		if f.maxWear > 0 && w > f.maxWear {
			st.BlocksOverMaxWear++
		}
	}
	st.FreePages, st.ValidPages, st.InvalidPages = f.store.CountStatus()
	return st
}
