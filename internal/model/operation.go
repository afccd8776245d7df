package model

// Operation names as they appear in the journal.
const (
	OpCreatePool      = "create_pool"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSellStSOL       = "sell_stsol"
)

// OperationRecord is one committed pool operation.
type OperationRecord struct {
	Sequence  uint64 `json:"sequence"`
	Pool      string `json:"pool"`
	Operation string `json:"operation"`
	Account   string `json:"account"`
	Amount    uint64 `json:"amount"`

	WSOLIn   uint64 `json:"wsol_in"`
	WSOLOut  uint64 `json:"wsol_out"`
	StSOLIn  uint64 `json:"stsol_in"`
	StSOLOut uint64 `json:"stsol_out"`
	LPMinted uint64 `json:"lp_minted"`
	LPBurned uint64 `json:"lp_burned"`
	Fee      uint64 `json:"fee"`

	RateNumerator   uint64 `json:"rate_numerator,omitempty"`
	RateDenominator uint64 `json:"rate_denominator,omitempty"`

	Before ReserveSnapshot `json:"before"`
	After  ReserveSnapshot `json:"after"`

	// ValueAfter is floor(V) after the operation; empty when no rate was sampled.
	ValueAfter string `json:"value_after,omitempty"`
	Timestamp  uint64 `json:"timestamp"`
}

// ReserveSnapshot captures reserves and share supply at one point.
type ReserveSnapshot struct {
	WSOLReserve  uint64 `json:"wsol_reserve"`
	StSOLReserve uint64 `json:"stsol_reserve"`
	LPSupply     uint64 `json:"lp_supply"`
}
