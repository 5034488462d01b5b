package errors

// Category-specific constructors for the FTL operations

// Addressing errors
func InvalidLogicalAddressError(op string, logical, limit int) *Error {
	return Newf(InvalidAddress, "logical page %d out of range [0, %d)", logical, limit).
		WithOp(op).
		WithLogical(logical)
}

func InvalidBlockError(op string, block, limit int) *Error {
	return Newf(InvalidAddress, "block %d out of range [0, %d)", block, limit).
		WithOp(op).
		WithLocation(block, -1)
}

func UnmappedError(logical int) *Error {
	return Newf(Unmapped, "logical page %d has no valid mapping", logical).
		WithOp("read").
		WithLogical(logical)
}

// Media errors
func StalePageError(logical, block, page int, status string) *Error {
	return Newf(StalePage, "logical page %d maps to a page that is not valid", logical).
		WithOp("read").
		WithLogical(logical).
		WithLocation(block, page).
		WithDetailf("Physical page (%d,%d) has status %s.", block, page, status).
		WithHint("The mapping table and page store disagree; this indicates an internal defect.")
}

// Allocation errors
func DeviceFullError(logical int) *Error {
	return New(DeviceFull, "no block available").
		WithOp("write").
		WithLogical(logical).
		WithHint("Run a wear-leveling pass or erase blocks to reclaim space.")
}

func BlockFullError(logical, block int) *Error {
	return Newf(BlockFull, "no free page in block %d", block).
		WithOp("write").
		WithLogical(logical).
		WithLocation(block, -1).
		WithHint("The free-block policy selected a block without free pages.")
}

// Configuration errors
func InvalidConfigErrorf(format string, args ...interface{}) *Error {
	return Newf(InvalidConfig, format, args...)
}

func InvalidImageErrorf(format string, args ...interface{}) *Error {
	return Newf(InvalidImage, format, args...)
}

// InternalErrorf creates an internal error
func InternalErrorf(format string, args ...interface{}) *Error {
	return Newf(InternalError, format, args...)
}
