package strbuf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"strbuf/limits"
)

// ErrCorrupt marks a persisted form whose framing cannot be read:
// a missing or truncated length prefix, or a payload shorter than
// the length it claims.
var ErrCorrupt = errors.New("corrupt persisted buffer")

// MarshalBinary encodes the buffer as its logical length, as a
// uvarint, followed by the logical prefix bytes. Capacity beyond the
// logical length is not persisted.
func (u *Utf8) MarshalBinary() ([]byte, error) {
	out := binary.AppendUvarint(nil, uint64(u.length))
	return append(out, u.buf[:u.length]...), nil
}

// UnmarshalBinary reconstructs a buffer persisted by MarshalBinary.
//
// The claimed length is routed through the guarded growth path before
// the payload is trusted, so a corrupted stream claiming an oversized
// length fails exactly as a direct SetByteLength call would, without
// triggering the allocation. On any failure the receiver keeps its
// previous content.
func (u *Utf8) UnmarshalBinary(data []byte) error {
	claimed, n := binary.Uvarint(data)
	if n <= 0 {
		return fmt.Errorf("%w: unreadable length prefix", ErrCorrupt)
	}

	// Saturate absurd claims above the hard ceiling so the guard
	// reports them as the unsupported-operation kind.
	length := limits.MaxArrayVMLimit + 1
	if claimed <= uint64(limits.MaxArrayVMLimit) {
		length = int(claimed)
	}
	if err := u.limiter().CheckStringLength(length); err != nil {
		return err
	}

	payload := data[n:]
	if len(payload) < length {
		return fmt.Errorf("%w: payload holds %d of %d claimed bytes",
			ErrCorrupt, len(payload), length)
	}
	return u.setRaw(payload[:length])
}
