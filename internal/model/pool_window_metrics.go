package model

import "time"

// PoolWindowMetrics stores aggregated operation metrics for a pool window.
type PoolWindowMetrics struct {
	Pool            string
	WindowSizeSecs  int64
	WindowStart     time.Time
	WindowEnd       time.Time
	FirstSequence   uint64
	LastSequence    uint64
	AddCount        uint64
	RemoveCount     uint64
	SellCount       uint64
	WSOLDeposited   string
	WSOLWithdrawn   string
	StSOLWithdrawn  string
	StSOLSold       string
	WSOLPaidOut     string
	Fees            string
	WSOLReserve     string
	StSOLReserve    string
	LPSupply        string
	PoolValue       *string
	SharePrice      *string
	FeeRate         *string
	APR             *string
}
