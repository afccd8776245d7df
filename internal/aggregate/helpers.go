package aggregate

import (
	"math/big"
	"strconv"
	"time"
)

const ratioScale = 18

func formatRat(value *big.Rat) *string {
	if value == nil {
		return nil
	}
	text := value.FloatString(ratioScale)
	return &text
}

func formatUint(value uint64) string {
	return strconv.FormatUint(value, 10)
}

// computeSharePrice returns value / lp in wSOL per share.
func computeSharePrice(value *big.Rat, lpSupply uint64) *big.Rat {
	if value == nil || lpSupply == 0 {
		return nil
	}
	return new(big.Rat).Quo(value, new(big.Rat).SetInt(new(big.Int).SetUint64(lpSupply)))
}

// computeFeeRate returns fees / value for the window.
func computeFeeRate(fees *big.Int, value *big.Rat) *big.Rat {
	if fees == nil || fees.Sign() == 0 || value == nil || value.Sign() == 0 {
		return nil
	}
	rate := new(big.Rat).SetInt(fees)
	return rate.Quo(rate, value)
}

// computeAPR scales a window fee rate to a year.
func computeAPR(feeRate *big.Rat, windowSeconds uint64) *big.Rat {
	if feeRate == nil || windowSeconds == 0 {
		return nil
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(feeRate, yearSeconds)
	return apr.Quo(apr, window)
}
