// Package limits guards allocation sizes requested while decoding
// untrusted binary input. A corrupt or hostile stream can claim an
// enormous length for a string or byte block; every length-driven
// growth in this module routes through a Guard so the claim is
// rejected before any allocation happens.
package limits

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// MaxArrayVMLimit is the hard ceiling on any single contiguous
// allocation, matching the array ceiling of the runtimes this wire
// format interoperates with. It is not configurable; requests above
// it indicate a protocol error, not a resource decision.
const MaxArrayVMLimit = math.MaxInt32 - 8

// Environment keys controlling the soft ceilings. Each is read once
// per Guard and cached until Reset.
const (
	EnvMaxStringLength     = "STRBUF_MAX_STRING_LENGTH"
	EnvMaxBytesLength      = "STRBUF_MAX_BYTES_LENGTH"
	EnvMaxCollectionLength = "STRBUF_MAX_COLLECTION_LENGTH"
)

// ErrExceeded marks a request above a configured soft ceiling.
// Callers may reject the offending input and continue; the buffer
// that requested the growth is left unmodified.
var ErrExceeded = errors.New("system limit exceeded")

// Guard holds the resolved soft ceilings. Zero configuration means
// effectively unbounded (the hard ceiling still applies).
type Guard struct {
	lookup func(string) (string, bool)
	logger zerolog.Logger

	mu            sync.Mutex
	resolved      bool
	maxString     int
	maxBytes      int
	maxCollection int
}

// NewGuard returns a Guard that resolves its ceilings through lookup,
// usually os.LookupEnv. Resolution is lazy and cached.
func NewGuard(lookup func(string) (string, bool)) *Guard {
	return &Guard{
		lookup: lookup,
		logger: zerolog.Nop(),
	}
}

// Default is the process-wide guard, reading the real environment.
// Buffers that were not given an explicit guard use this one.
var Default = NewGuard(os.LookupEnv)

// SetLogger attaches a logger for limit rejections and malformed
// configuration values. The default is a no-op logger.
func (g *Guard) SetLogger(logger zerolog.Logger) {
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
}

// Reset drops the cached ceilings so the next check re-reads the
// environment. Tests change the environment and call this.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.resolved = false
	g.mu.Unlock()
}

// MaxStringLength returns the configured ceiling for string buffers.
func (g *Guard) MaxStringLength() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolve()
	return g.maxString
}

// MaxBytesLength returns the configured ceiling for raw byte blocks.
func (g *Guard) MaxBytesLength() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolve()
	return g.maxBytes
}

// MaxCollectionLength returns the configured ceiling for accumulated
// collection allocations during a decode.
func (g *Guard) MaxCollectionLength() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolve()
	return g.maxCollection
}

// resolve reads the environment once. Callers hold g.mu.
func (g *Guard) resolve() {
	if g.resolved {
		return
	}
	g.maxString = g.readLimit(EnvMaxStringLength)
	g.maxBytes = g.readLimit(EnvMaxBytesLength)
	g.maxCollection = g.readLimit(EnvMaxCollectionLength)
	g.resolved = true
}

func (g *Guard) readLimit(key string) int {
	raw, ok := g.lookup(key)
	if !ok || raw == "" {
		return MaxArrayVMLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		g.logger.Warn().Str("key", key).Str("value", raw).
			Msg("ignoring unparseable limit, using hard ceiling")
		return MaxArrayVMLimit
	}
	if n > MaxArrayVMLimit {
		return MaxArrayVMLimit
	}
	return n
}

// CheckStringLength validates a requested string buffer length. It
// returns an error wrapping errors.ErrUnsupported above the hard
// ceiling, or wrapping ErrExceeded above the configured maximum or
// for a negative (malformed) length. On nil return the caller may
// allocate n bytes.
func (g *Guard) CheckStringLength(n int) error {
	return g.check(n, "string", g.MaxStringLength())
}

// CheckBytesLength validates a requested byte-block length, against
// the bytes ceiling instead of the string one.
func (g *Guard) CheckBytesLength(n int) error {
	return g.check(n, "bytes", g.MaxBytesLength())
}

// CheckCollectionLength accumulates extra items onto current and
// validates the total against the collection ceiling, guarding
// against overflow of the running count. It returns the new total.
func (g *Guard) CheckCollectionLength(current, extra int) (int, error) {
	total := current + extra
	if extra > 0 && total < current {
		total = MaxArrayVMLimit + 1
	}
	if err := g.check(total, "collection", g.MaxCollectionLength()); err != nil {
		return current, err
	}
	return total, nil
}

func (g *Guard) check(n int, kind string, max int) error {
	if n < 0 {
		return fmt.Errorf("%w: malformed data, length is negative: %d", ErrExceeded, n)
	}
	if n > MaxArrayVMLimit {
		return fmt.Errorf("%w: cannot allocate %s longer than %d bytes",
			errors.ErrUnsupported, kind, MaxArrayVMLimit)
	}
	if n > max {
		g.mu.Lock()
		logger := g.logger
		g.mu.Unlock()
		logger.Debug().Str("kind", kind).Int("requested", n).Int("limit", max).
			Msg("allocation rejected")
		return fmt.Errorf("%w: %s length %d exceeds configured maximum %d",
			ErrExceeded, kind, n, max)
	}
	return nil
}
