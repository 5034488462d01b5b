package errors

// FTL error codes.
//
// Codes are grouped by class the same way the device reports them: the first
// two characters name the class, the rest identify the condition.

// Class AD - Addressing
const (
	InvalidAddress = "AD001"
	Unmapped       = "AD002"
)

// Class MD - Media state
const (
	StalePage = "MD001"
)

// Class SP - Space allocation
const (
	DeviceFull = "SP001"
	BlockFull  = "SP002"
)

// Class CF - Configuration and images
const (
	InvalidConfig = "CF001"
	InvalidImage  = "CF002"
)

// Class XX - Internal
const (
	InternalError = "XX000"
)

// Retryable reports whether a caller may retry an operation that failed with code.
func Retryable(code string) bool {
	switch code {
	case DeviceFull, BlockFull:
		return true
	default:
		return false
	}
}
