package limits

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaultsAreUnbounded(t *testing.T) {
	g := NewGuard(mapLookup(nil))

	require.Equal(t, MaxArrayVMLimit, g.MaxStringLength())
	require.Equal(t, MaxArrayVMLimit, g.MaxBytesLength())
	require.Equal(t, MaxArrayVMLimit, g.MaxCollectionLength())

	require.NoError(t, g.CheckStringLength(0))
	require.NoError(t, g.CheckStringLength(MaxArrayVMLimit))
}

func TestReadsConfiguredLimits(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{
		EnvMaxStringLength:     "1000",
		EnvMaxBytesLength:      "2000",
		EnvMaxCollectionLength: "3000",
	}))

	require.Equal(t, 1000, g.MaxStringLength())
	require.Equal(t, 2000, g.MaxBytesLength())
	require.Equal(t, 3000, g.MaxCollectionLength())
}

func TestLimitsAreCachedUntilReset(t *testing.T) {
	env := map[string]string{EnvMaxStringLength: "1000"}
	g := NewGuard(mapLookup(env))

	require.Equal(t, 1000, g.MaxStringLength())

	env[EnvMaxStringLength] = "500"
	require.Equal(t, 1000, g.MaxStringLength(), "cached value must survive an environment change")

	g.Reset()
	require.Equal(t, 500, g.MaxStringLength())
}

func TestUnparseableValueFallsBackAndWarns(t *testing.T) {
	var out bytes.Buffer

	g := NewGuard(mapLookup(map[string]string{EnvMaxStringLength: "not-a-number"}))
	g.SetLogger(zerolog.New(&out))

	require.Equal(t, MaxArrayVMLimit, g.MaxStringLength())
	require.Contains(t, out.String(), "not-a-number")
	require.Contains(t, out.String(), EnvMaxStringLength)
}

func TestNegativeConfiguredValueFallsBack(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{EnvMaxStringLength: "-5"}))
	require.Equal(t, MaxArrayVMLimit, g.MaxStringLength())
}

func TestCheckStringLength(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{EnvMaxStringLength: "1000"}))

	require.NoError(t, g.CheckStringLength(0))
	require.NoError(t, g.CheckStringLength(1000))

	err := g.CheckStringLength(1024)
	require.ErrorIs(t, err, ErrExceeded)
	require.Contains(t, err.Error(), "1024")
	require.Contains(t, err.Error(), "1000")

	err = g.CheckStringLength(-1)
	require.ErrorIs(t, err, ErrExceeded)
	require.Contains(t, err.Error(), "negative")

	err = g.CheckStringLength(MaxArrayVMLimit + 1)
	require.ErrorIs(t, err, errors.ErrUnsupported)
	require.NotErrorIs(t, err, ErrExceeded)
}

func TestHardCeilingAppliesWithoutConfiguration(t *testing.T) {
	g := NewGuard(mapLookup(nil))

	err := g.CheckStringLength(MaxArrayVMLimit + 1)
	require.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestCheckBytesLengthUsesOwnCeiling(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{
		EnvMaxStringLength: "10",
		EnvMaxBytesLength:  "100",
	}))

	require.NoError(t, g.CheckBytesLength(50))
	require.ErrorIs(t, g.CheckStringLength(50), ErrExceeded)
	require.ErrorIs(t, g.CheckBytesLength(101), ErrExceeded)
}

func TestCheckCollectionLength(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{EnvMaxCollectionLength: "100"}))

	total, err := g.CheckCollectionLength(0, 60)
	require.NoError(t, err)
	require.Equal(t, 60, total)

	total, err = g.CheckCollectionLength(total, 40)
	require.NoError(t, err)
	require.Equal(t, 100, total)

	total, err = g.CheckCollectionLength(total, 1)
	require.ErrorIs(t, err, ErrExceeded)
	require.Equal(t, 100, total, "rejection must return the prior total")
}

func TestCheckCollectionLengthOverflow(t *testing.T) {
	g := NewGuard(mapLookup(nil))

	_, err := g.CheckCollectionLength(MaxArrayVMLimit, MaxArrayVMLimit)
	require.Error(t, err)
}

func TestRejectionLogsRequestAndLimit(t *testing.T) {
	var out bytes.Buffer

	g := NewGuard(mapLookup(map[string]string{EnvMaxStringLength: "1000"}))
	g.SetLogger(zerolog.New(&out))

	require.Error(t, g.CheckStringLength(1024))
	require.Contains(t, out.String(), `"requested":1024`)
	require.Contains(t, out.String(), `"limit":1000`)
}

func TestConfiguredValueAboveHardCeilingIsClamped(t *testing.T) {
	g := NewGuard(mapLookup(map[string]string{EnvMaxStringLength: "99999999999999999999"}))
	require.Equal(t, MaxArrayVMLimit, g.MaxStringLength())
}
