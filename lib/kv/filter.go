package kv

import "bytes"

// --------------------------------------------------------------------------
// Listing Filter
// --------------------------------------------------------------------------

// ListFilter decides which keys a listing emits. The pattern is matched as
// a prefix by default, as a suffix under ModeSuffix, and not at all under
// ModeNoPrefix.
type ListFilter struct {
	mode    Mode
	pattern []byte
}

// NewListFilter builds the filter for a listing call.
func NewListFilter(mode Mode, pattern []byte) ListFilter {
	return ListFilter{mode: mode, pattern: pattern}
}

// Match reports whether key passes the filter.
func (f ListFilter) Match(key []byte) bool {
	if len(f.pattern) == 0 || f.mode.Has(ModeNoPrefix) {
		return true
	}
	if len(f.pattern) > len(key) {
		return false
	}
	if f.mode.Has(ModeSuffix) {
		return bytes.HasSuffix(key, f.pattern)
	}
	return bytes.HasPrefix(key, f.pattern)
}
