package aggregate

import (
	"fmt"
	"math/big"

	"metapool/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	Pool          string
	WindowStart   uint64
	WindowEnd     uint64
	FirstSequence uint64
	LastSequence  uint64

	AddCount    uint64
	RemoveCount uint64
	SellCount   uint64

	WSOLDeposited  *big.Int
	WSOLWithdrawn  *big.Int
	StSOLWithdrawn *big.Int
	StSOLSold      *big.Int
	WSOLPaidOut    *big.Int
	Fees           *big.Int

	// Closing reserves after the last record in the window.
	Closing model.ReserveSnapshot

	// Last sampled rate; zero denominator when no record carried one.
	RateNumerator   uint64
	RateDenominator uint64
}

func NewAccumulator(record model.OperationRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Pool:           record.Pool,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		FirstSequence:  record.Sequence,
		LastSequence:   record.Sequence,
		WSOLDeposited:  big.NewInt(0),
		WSOLWithdrawn:  big.NewInt(0),
		StSOLWithdrawn: big.NewInt(0),
		StSOLSold:      big.NewInt(0),
		WSOLPaidOut:    big.NewInt(0),
		Fees:           big.NewInt(0),
	}
}

// AddRecord folds one journal record into the window.
func (a *Accumulator) AddRecord(record model.OperationRecord) error {
	if record.Pool != a.Pool {
		return fmt.Errorf("record for pool %s in window of %s", record.Pool, a.Pool)
	}

	switch record.Operation {
	case model.OpCreatePool:
	case model.OpAddLiquidity:
		a.AddCount++
		addU64(a.WSOLDeposited, record.WSOLIn)
	case model.OpRemoveLiquidity:
		a.RemoveCount++
		addU64(a.WSOLWithdrawn, record.WSOLOut)
		addU64(a.StSOLWithdrawn, record.StSOLOut)
	case model.OpSellStSOL:
		a.SellCount++
		addU64(a.StSOLSold, record.StSOLIn)
		addU64(a.WSOLPaidOut, record.WSOLOut)
		addU64(a.Fees, record.Fee)
	default:
		return fmt.Errorf("unknown operation %q", record.Operation)
	}

	if record.Sequence < a.FirstSequence {
		a.FirstSequence = record.Sequence
	}
	if record.Sequence >= a.LastSequence {
		a.LastSequence = record.Sequence
		a.Closing = record.After
		if record.RateDenominator != 0 {
			a.RateNumerator = record.RateNumerator
			a.RateDenominator = record.RateDenominator
		}
	}
	return nil
}

// Value returns the closing pool value in wSOL at the last sampled rate.
func (a *Accumulator) Value() *big.Rat {
	if a.RateDenominator == 0 {
		return nil
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(a.Closing.WSOLReserve), new(big.Int).SetUint64(a.RateDenominator))
	stsol := new(big.Int).Mul(new(big.Int).SetUint64(a.Closing.StSOLReserve), new(big.Int).SetUint64(a.RateNumerator))
	num.Add(num, stsol)
	return new(big.Rat).SetFrac(num, new(big.Int).SetUint64(a.RateDenominator))
}

func addU64(target *big.Int, value uint64) {
	if value == 0 {
		return
	}
	target.Add(target, new(big.Int).SetUint64(value))
}
