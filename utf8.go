// Package strbuf provides Utf8, a mutable, resizable byte-string
// buffer used on the hot path of row-oriented binary decode/encode
// cycles. Repeated decodes reuse the backing array instead of
// reallocating on every length change, while the value still behaves
// like an immutable string for equality, hashing and ordering.
package strbuf

import (
	"bytes"

	"strbuf/limits"
)

// Utf8 owns a backing byte array and a logical length that may be
// smaller than the array. Equality, hashing and ordering consider
// only the logical prefix; the physical capacity is never part of
// the value.
//
// A Utf8 is not safe for concurrent mutation. Share instances across
// goroutines only with external synchronization.
type Utf8 struct {
	buf    []byte // backing array; len(buf) is the physical capacity
	length int    // logical length, 0 <= length <= len(buf)

	hash      int32
	hashValid bool

	guard *limits.Guard // nil means limits.Default
}

// New returns an empty buffer with zero capacity.
func New() *Utf8 {
	return &Utf8{}
}

// NewBytes returns a buffer holding a copy of b. Mutating b after the
// call is not observable through the buffer.
func NewBytes(b []byte) *Utf8 {
	buf := make([]byte, len(b))
	copy(buf, b)
	return &Utf8{buf: buf, length: len(buf)}
}

// NewString returns a buffer holding the UTF-8 bytes of s.
func NewString(s string) *Utf8 {
	return NewBytes([]byte(s))
}

// NewStringCap returns a buffer holding the UTF-8 bytes of s in a
// backing array of at least capacity bytes. The logical length stays
// the encoded length of s; the extra capacity is reused by later
// growth within it.
func NewStringCap(s string, capacity int) *Utf8 {
	if capacity < len(s) {
		capacity = len(s)
	}
	buf := make([]byte, capacity)
	copy(buf, s)
	return &Utf8{buf: buf, length: len(s)}
}

// SetGuard routes this buffer's guarded growth through g instead of
// the process-wide limits.Default.
func (u *Utf8) SetGuard(g *limits.Guard) {
	u.guard = g
}

func (u *Utf8) limiter() *limits.Guard {
	if u.guard != nil {
		return u.guard
	}
	return limits.Default
}

// Bytes returns the live backing array, with no defensive copy. Its
// length may exceed ByteLength; only the first ByteLength bytes are
// part of the value. The returned slice is invalidated by any later
// call that grows the buffer beyond its current capacity.
func (u *Utf8) Bytes() []byte {
	return u.buf
}

// ByteLength returns the logical length in bytes.
func (u *Utf8) ByteLength() int {
	return u.length
}

// SetByteLength grows or shrinks the logical length to n.
//
// Any request that does not strictly shrink the buffer is checked
// against the limit guard; strict shrinks reuse the array and cannot
// fail. Within the current capacity the backing array is kept as is:
// shrinking never zeroes or releases the tail, and growing back
// re-exposes whatever bytes were there. Beyond the current capacity a
// new array of exactly n bytes is allocated and only the previous
// logical prefix is copied forward. On a guard rejection the buffer
// is unmodified.
func (u *Utf8) SetByteLength(n int) error {
	if n >= u.length || n < 0 {
		if err := u.limiter().CheckStringLength(n); err != nil {
			return err
		}
	}
	if n > len(u.buf) {
		grown := make([]byte, n)
		copy(grown, u.buf[:u.length])
		u.buf = grown
	}
	u.length = n
	u.hashValid = false
	return nil
}

// SetBytes replaces the content with a copy of b, as if the buffer
// were reconstructed. The backing array is reused when its capacity
// suffices, otherwise growth goes through the guarded path.
func (u *Utf8) SetBytes(b []byte) error {
	return u.setRaw(b)
}

// SetString replaces the content with the UTF-8 bytes of s.
func (u *Utf8) SetString(s string) error {
	return u.setRaw([]byte(s))
}

// Set replaces the content with the logical prefix of o.
func (u *Utf8) Set(o *Utf8) error {
	return u.setRaw(o.buf[:o.length])
}

func (u *Utf8) setRaw(b []byte) error {
	if len(b) >= u.length {
		if err := u.limiter().CheckStringLength(len(b)); err != nil {
			return err
		}
	}
	if len(b) > len(u.buf) {
		u.buf = make([]byte, len(b))
	}
	copy(u.buf, b)
	u.length = len(b)
	u.hashValid = false
	return nil
}

// Hash returns the hash of the logical prefix, computed lazily and
// cached until the next mutation. The value depends only on the bytes
// in [0, ByteLength): two buffers with equal logical content hash
// identically whatever their capacities. The algorithm is the
// 31-multiplier signed-byte hash used by the wire format's reference
// implementation, so values round-trip across language boundaries.
func (u *Utf8) Hash() int32 {
	if !u.hashValid {
		h := int32(1)
		for _, v := range u.buf[:u.length] {
			h = 31*h + int32(int8(v))
		}
		u.hash = h
		u.hashValid = true
	}
	return u.hash
}

// Equal reports whether o holds the same logical byte sequence.
func (u *Utf8) Equal(o *Utf8) bool {
	if o == nil {
		return false
	}
	return bytes.Equal(u.buf[:u.length], o.buf[:o.length])
}

// Compare orders buffers lexicographically over their logical
// prefixes, consistent with Equal.
func (u *Utf8) Compare(o *Utf8) int {
	return bytes.Compare(u.buf[:u.length], o.buf[:o.length])
}

// String returns the logical prefix decoded as a Go string. Bytes are
// preserved as-is; malformed UTF-8 is substituted with replacement
// characters only when the string is rendered, per Go's usual policy.
func (u *Utf8) String() string {
	return string(u.buf[:u.length])
}
