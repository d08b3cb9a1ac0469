package kv

// --------------------------------------------------------------------------
// Listing Output Emitter
// --------------------------------------------------------------------------

// ListEmitter writes listing results into caller memory, implementing the
// canonical packed and unpacked output semantics shared by every sorted
// backend:
//
//   - unpacked: slot i has fixed capacity sizes[i]; the cursor advances by
//     that capacity whether or not the item fit;
//   - packed: items are concatenated; once an item does not fit, every
//     subsequent slot is marked BufTooSmall;
//   - trailing unused slots receive NoMoreKeys and the UserMem sizes are
//     updated to the bytes actually consumed.
//
// ModeIgnoreKeys suppresses key bytes (sizes become 0); ModeKeepLast still
// writes the final emitted key, which the emitter defers until Finish.
//
// Under ModeKeepLast the emitter keeps the last key slice passed to Emit
// and copies it in Finish, so that slice must stay valid until Finish
// returns. The in-memory backends ensure this by holding their read lock
// across the whole listing; the disk backends pass a copy of each key in
// that mode.
type ListEmitter struct {
	mode   Mode
	packed bool

	keys   *UserMem
	ksizes []uint64
	vals   *UserMem // nil for key-only listings
	vsizes []uint64

	i           int
	keyOff      uint64
	valOff      uint64
	keyTooSmall bool // packed: key buffer exhausted
	valTooSmall bool // packed: value buffer exhausted

	lastKey    []byte // ModeKeepLast: final emitted key
	lastSlot   int
	lastKeyOff uint64
	lastKeyCap uint64
}

// NewListEmitter prepares an emitter for ListKeys (vals == nil) or
// ListKeyValues output buffers.
func NewListEmitter(mode Mode, packed bool, keys *UserMem, ksizes []uint64,
	vals *UserMem, vsizes []uint64) *ListEmitter {
	return &ListEmitter{
		mode:     mode,
		packed:   packed,
		keys:     keys,
		ksizes:   ksizes,
		vals:     vals,
		vsizes:   vsizes,
		lastSlot: -1,
	}
}

// Full reports whether every output slot has been consumed.
func (e *ListEmitter) Full() bool {
	return e.i >= len(e.ksizes)
}

// Emit writes one key (and value, for ListKeyValues) into the next output
// slot. The caller must have checked Full first.
func (e *ListEmitter) Emit(key, val []byte) {
	e.emitKey(key)
	if e.vals != nil {
		e.emitVal(val)
	}
	e.i++
}

func (e *ListEmitter) emitKey(key []byte) {
	if e.mode.Has(ModeIgnoreKeys) {
		cap := e.ksizes[e.i]
		if e.mode.Has(ModeKeepLast) {
			e.lastKey = key
			e.lastSlot = e.i
			e.lastKeyOff = e.keyOff
			e.lastKeyCap = cap
		}
		e.ksizes[e.i] = 0
		if !e.packed {
			e.keyOff += cap
		}
		return
	}
	n := uint64(len(key))
	if !e.packed {
		cap := e.ksizes[e.i]
		if cap < n {
			e.ksizes[e.i] = BufTooSmall
		} else {
			copy(e.keys.Data[e.keyOff:], key)
			e.ksizes[e.i] = n
		}
		e.keyOff += cap
	} else {
		if e.keyTooSmall || e.keys.Size-e.keyOff < n {
			e.ksizes[e.i] = BufTooSmall
			e.keyTooSmall = true
		} else {
			copy(e.keys.Data[e.keyOff:], key)
			e.ksizes[e.i] = n
			e.keyOff += n
		}
	}
}

func (e *ListEmitter) emitVal(val []byte) {
	n := uint64(len(val))
	if !e.packed {
		cap := e.vsizes[e.i]
		if cap < n {
			e.vsizes[e.i] = BufTooSmall
		} else {
			copy(e.vals.Data[e.valOff:], val)
			e.vsizes[e.i] = n
		}
		e.valOff += cap
	} else {
		if e.valTooSmall || e.vals.Size-e.valOff < n {
			e.vsizes[e.i] = BufTooSmall
			e.valTooSmall = true
		} else {
			copy(e.vals.Data[e.valOff:], val)
			e.vsizes[e.i] = n
			e.valOff += n
		}
	}
}

// Finish resolves the deferred ModeKeepLast key, fills the trailing slots
// with NoMoreKeys and updates the UserMem sizes.
func (e *ListEmitter) Finish() {
	if e.mode.Has(ModeKeepLast) && e.lastSlot >= 0 {
		n := uint64(len(e.lastKey))
		if !e.packed {
			if e.lastKeyCap < n {
				e.ksizes[e.lastSlot] = BufTooSmall
			} else {
				copy(e.keys.Data[e.lastKeyOff:], e.lastKey)
				e.ksizes[e.lastSlot] = n
			}
		} else {
			// No later key bytes were written (all keys ignored), so the
			// recorded offset is still the current end of the key buffer.
			if e.keys.Size-e.lastKeyOff < n {
				e.ksizes[e.lastSlot] = BufTooSmall
			} else {
				copy(e.keys.Data[e.lastKeyOff:], e.lastKey)
				e.ksizes[e.lastSlot] = n
				e.keyOff = e.lastKeyOff + n
			}
		}
	}
	e.keys.Size = e.keyOff
	if e.vals != nil {
		e.vals.Size = e.valOff
	}
	for ; e.i < len(e.ksizes); e.i++ {
		e.ksizes[e.i] = NoMoreKeys
		if e.vsizes != nil {
			e.vsizes[e.i] = NoMoreKeys
		}
	}
}
