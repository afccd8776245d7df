package liquidity

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivRounding(t *testing.T) {
	tests := []struct {
		a, b, d     uint64
		floor, ceil uint64
	}{
		{a: 7, b: 3, d: 2, floor: 10, ceil: 11},
		{a: 6, b: 1, d: 2, floor: 3, ceil: 3},
		{a: 1030, b: 3, d: 100, floor: 30, ceil: 31},
		{a: 0, b: 99, d: 7, floor: 0, ceil: 0},
		{a: stdmath.MaxUint64, b: stdmath.MaxUint64, d: stdmath.MaxUint64, floor: stdmath.MaxUint64, ceil: stdmath.MaxUint64},
	}

	for _, tt := range tests {
		floor, err := mulDivFloor(tt.a, tt.b, tt.d)
		require.NoError(t, err)
		assert.Equal(t, tt.floor, floor, "floor(%d*%d/%d)", tt.a, tt.b, tt.d)

		ceil, err := mulDivCeil(tt.a, tt.b, tt.d)
		require.NoError(t, err)
		assert.Equal(t, tt.ceil, ceil, "ceil(%d*%d/%d)", tt.a, tt.b, tt.d)
	}
}

func TestMulDivOverflowAndZeroDivisor(t *testing.T) {
	_, err := mulDivFloor(stdmath.MaxUint64, 2, 1)
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = mulDivCeil(stdmath.MaxUint64, stdmath.MaxUint64, 2)
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = mulDivFloor(1, 1, 0)
	require.True(t, errors.Is(err, ErrInvariantViolated))
}

func TestScaledValue(t *testing.T) {
	v := scaledValue(6001, 1030, Rate{Numerator: 3, Denominator: 2})
	assert.Equal(t, uint64(6001*2+1030*3), v.Uint64())
}

func TestCheckedAddSub(t *testing.T) {
	_, err := addU64(stdmath.MaxUint64, 1, "test")
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = subU64(5, 6, "test", AssetWSOL)
	require.True(t, errors.Is(err, ErrUnderflow))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, uint64(6), e.Requested)
	assert.Equal(t, uint64(5), e.Available)
}
