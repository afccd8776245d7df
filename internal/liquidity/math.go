package liquidity

import (
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

// mulDivFloor returns floor(a*b/d). The product is carried in 256 bits.
func mulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, newError(KindInvariantViolated, "", "division by zero")
	}
	q, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if overflow || !q.IsUint64() {
		return 0, newError(KindOverflow, "", "result exceeds u64")
	}
	return q.Uint64(), nil
}

// mulDivCeil returns ceil(a*b/d).
func mulDivCeil(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, newError(KindInvariantViolated, "", "division by zero")
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	divisor := uint256.NewInt(d)
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(product, divisor, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	if !q.IsUint64() {
		return 0, newError(KindOverflow, "", "result exceeds u64")
	}
	return q.Uint64(), nil
}

// scaledValue returns wsol*D + stsol*N, the pool value multiplied by the rate denominator.
func scaledValue(wsol, stsol uint64, rate Rate) *uint256.Int {
	v := new(uint256.Int).Mul(uint256.NewInt(wsol), uint256.NewInt(rate.Denominator))
	s := new(uint256.Int).Mul(uint256.NewInt(stsol), uint256.NewInt(rate.Numerator))
	return v.Add(v, s)
}

func addU64(x, y uint64, op string) (uint64, error) {
	sum, overflow := math.SafeAdd(x, y)
	if overflow {
		return 0, newError(KindOverflow, op, "")
	}
	return sum, nil
}

func subU64(x, y uint64, op string, asset AssetKind) (uint64, error) {
	diff, underflow := math.SafeSub(x, y)
	if underflow {
		return 0, amountError(KindUnderflow, op, asset, y, x)
	}
	return diff, nil
}
